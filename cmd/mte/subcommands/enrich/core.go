//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package enrich implements the one-shot enrichment subcommand: load a
// service definition and a tags snapshot, run a single lookup, and print
// the matched tags as JSON.
package enrich

import (
	"context"
	"strings"

	"github.com/manetu/tagenricher/cmd/mte/common"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	pkgcommon "github.com/manetu/tagenricher/pkg/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// Execute runs one enrichment query against the tags file and prints the
// matched tags.
func Execute(ctx context.Context, cmd *cli.Command) error {
	e, err := common.NewCliEnricher(cmd)
	if err != nil {
		return err
	}
	defer e.PreCleanup()

	resource := model.NewAccessResource()
	for _, element := range cmd.StringSlice("resource") {
		name, value, found := strings.Cut(element, "=")
		if !found {
			return errors.Errorf("malformed --resource %q, expected name=value", element)
		}
		resource.SetValue(name, value)
	}

	request := model.NewAccessRequest(resource, cmd.String("access-type"))
	e.Enrich(request)

	tags := model.GetRequestTags(request)
	if tags == nil {
		tags = []*model.TagForEval{}
	}
	pkgcommon.PrettyPrint(tags)

	return nil
}
