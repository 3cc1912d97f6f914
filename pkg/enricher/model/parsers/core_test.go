//
//  Copyright © Manetu Inc. All rights reserved.
//

package parsers_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/model/parsers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hiveYAML = `
name: hive
resources:
  - name: database
    level: 10
    matcherOptions:
      wildCard: "true"
      ignoreCase: "true"
  - name: table
    parent: database
    level: 20
  - name: column
    parent: table
    level: 30
`

func TestParseServiceDefYAML(t *testing.T) {
	serviceDef, err := parsers.ParseServiceDef(strings.NewReader(hiveYAML))
	require.Nil(t, err)

	assert.Equal(t, "hive", serviceDef.Name)
	require.Len(t, serviceDef.Resources, 3)
	assert.Equal(t, "database", serviceDef.Resources[0].Name)
	assert.True(t, serviceDef.Resources[0].OptionBool(model.OptionWildcard, false))
	assert.Equal(t, "table", serviceDef.Resources[1].Name)
	assert.Equal(t, "database", serviceDef.Resources[1].Parent)
}

func TestParseServiceDefRejectsEmpty(t *testing.T) {
	_, err := parsers.ParseServiceDef(strings.NewReader("name: hive\n"))
	assert.NotNil(t, err)

	_, err = parsers.ParseServiceDef(strings.NewReader("resources:\n  - name: db\n"))
	assert.NotNil(t, err)
}

func TestServiceTagsRoundTrip(t *testing.T) {
	serviceTags := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       7,
		TagsChangeExtent: model.TagsChangeExtentAll,
		Tags: map[int64]*model.Tag{
			1: {ID: 1, Type: "PII", Attributes: map[string]string{"level": "high"}},
		},
		ServiceResources: []*model.ServiceResource{
			{
				ID:                1,
				ResourceSignature: "sig-1",
				ResourceElements: map[string]*model.PolicyResource{
					"database": {Values: []string{"sales"}},
				},
			},
		},
		ResourceToTagIds: map[int64][]int64{1: {1}},
	}

	var buf bytes.Buffer
	require.Nil(t, parsers.WriteServiceTags(&buf, serviceTags))

	parsed, err := parsers.ParseServiceTags(&buf)
	require.Nil(t, err)

	assert.Equal(t, serviceTags.ServiceName, parsed.ServiceName)
	assert.Equal(t, serviceTags.TagVersion, parsed.TagVersion)
	assert.Equal(t, model.TagsChangeExtentAll, parsed.TagsChangeExtent)
	require.Len(t, parsed.ServiceResources, 1)
	assert.Equal(t, []int64{1}, parsed.ResourceToTagIds[1])
	assert.Equal(t, "PII", parsed.Tags[1].Type)
}

func TestParseServiceTagsRejectsGarbage(t *testing.T) {
	_, err := parsers.ParseServiceTags(strings.NewReader("not json"))
	assert.NotNil(t, err)
}
