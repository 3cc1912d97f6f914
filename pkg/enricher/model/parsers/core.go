//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package parsers loads service definitions from YAML or JSON documents.
//
// A service definition names the resource dimensions of a service and the
// parent links from which its hierarchies derive:
//
//	name: hive
//	resources:
//	  - name: database
//	    level: 10
//	    matcherOptions:
//	      wildCard: "true"
//	      ignoreCase: "true"
//	  - name: table
//	    parent: database
//	    level: 20
//	  - name: column
//	    parent: table
//	    level: 30
package parsers

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseServiceDef decodes a service definition from a reader. YAML and JSON
// documents are both accepted (JSON being a YAML subset).
func ParseServiceDef(reader io.Reader) (*model.ServiceDef, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "error reading service-def")
	}

	serviceDef := &model.ServiceDef{}
	if err := yaml.Unmarshal(data, serviceDef); err != nil {
		return nil, errors.Wrap(err, "error parsing service-def")
	}

	if serviceDef.Name == "" {
		return nil, errors.New("service-def has no name")
	}
	if len(serviceDef.Resources) == 0 {
		return nil, errors.Errorf("service-def %s has no resources", serviceDef.Name)
	}

	return serviceDef, nil
}

// ParseServiceDefFile loads a service definition from a file.
func ParseServiceDefFile(path string) (*model.ServiceDef, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening service-def %s", path)
	}
	defer func() { _ = file.Close() }()

	return ParseServiceDef(file)
}

// ParseServiceTags decodes a service-tags snapshot from a reader. Snapshots
// travel as JSON, both on the admin channel and in the local cache file.
func ParseServiceTags(reader io.Reader) (*model.ServiceTags, error) {
	serviceTags := &model.ServiceTags{}

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(serviceTags); err != nil {
		return nil, errors.Wrap(err, "error parsing service-tags")
	}

	return serviceTags, nil
}

// ParseServiceTagsFile loads a service-tags snapshot from a file.
func ParseServiceTagsFile(path string) (*model.ServiceTags, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening service-tags %s", path)
	}
	defer func() { _ = file.Close() }()

	return ParseServiceTags(file)
}

// WriteServiceTags encodes a service-tags snapshot as JSON.
func WriteServiceTags(writer io.Writer, serviceTags *model.ServiceTags) error {
	encoder := json.NewEncoder(writer)
	if err := encoder.Encode(serviceTags); err != nil {
		return errors.Wrap(err, "error encoding service-tags")
	}

	return nil
}

// IsYAMLPath reports whether the path carries a YAML extension.
func IsYAMLPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
