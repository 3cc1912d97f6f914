//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common holds helpers shared by the mte subcommands.
package common

import (
	"github.com/manetu/tagenricher/pkg/enricher"
	"github.com/manetu/tagenricher/pkg/enricher/model/parsers"
	"github.com/manetu/tagenricher/pkg/enricher/retriever"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// NewCliEnricher builds and initializes a TagEnricher from the common CLI
// flags: the service definition comes from --service-def, and tags are
// served through the file retriever from --tags.
func NewCliEnricher(cmd *cli.Command) (*enricher.TagEnricher, error) {
	serviceDefPath := cmd.String("service-def")
	if serviceDefPath == "" {
		return nil, errors.New("--service-def is required")
	}
	tagsPath := cmd.String("tags")
	if tagsPath == "" {
		return nil, errors.New("--tags is required")
	}

	serviceDef, err := parsers.ParseServiceDefFile(serviceDefPath)
	if err != nil {
		return nil, err
	}

	options := map[string]string{
		enricher.OptionTagRetrieverClassName: "file",
		retriever.OptionServiceTagsFileName:  tagsPath,
	}
	if v := cmd.String("polling-interval"); v != "" {
		options[enricher.OptionRefresherPollingInterval] = v
	}

	e, err := enricher.New(serviceDef.Name, "mte", serviceDef, options)
	if err != nil {
		return nil, err
	}
	if err := e.Init(); err != nil {
		return nil, err
	}

	return e, nil
}
