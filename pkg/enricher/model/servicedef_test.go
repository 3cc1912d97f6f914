//
//  Copyright © Manetu Inc. All rights reserved.
//

package model_test

import (
	"testing"

	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hiveServiceDef() *model.ServiceDef {
	return &model.ServiceDef{
		Name: "hive",
		Resources: []model.ResourceDef{
			{Name: "database", Level: 10},
			{Name: "table", Parent: "database", Level: 20},
			{Name: "column", Parent: "table", Level: 30},
			{Name: "url", Level: 10},
		},
	}
}

func TestHierarchies(t *testing.T) {
	helper := model.NewServiceDefHelper(hiveServiceDef())

	hierarchies := helper.Hierarchies(model.PolicyTypeAccess)
	require.Len(t, hierarchies, 2)

	var paths [][]string
	for _, hierarchy := range hierarchies {
		var names []string
		for _, def := range hierarchy {
			names = append(names, def.Name)
		}
		paths = append(paths, names)
	}

	assert.Contains(t, paths, []string{"database", "table", "column"})
	assert.Contains(t, paths, []string{"url"})
}

func TestHierarchyHasAllResources(t *testing.T) {
	helper := model.NewServiceDefHelper(hiveServiceDef())
	hierarchies := helper.HierarchiesForKeys(model.PolicyTypeAccess, []string{"database", "table"})
	require.Len(t, hierarchies, 1)
	assert.Equal(t, "column", helper.LeafOf(hierarchies[0]).Name)

	assert.Empty(t, helper.HierarchiesForKeys(model.PolicyTypeAccess, []string{"database", "url"}))
}

func TestLeafNameOf(t *testing.T) {
	helper := model.NewServiceDefHelper(hiveServiceDef())

	tests := []struct {
		name     string
		elements map[string]interface{}
		expected string
	}{
		{"db only", map[string]interface{}{"database": "sales"}, "database"},
		{"db and table", map[string]interface{}{"database": "sales", "table": "orders"}, "table"},
		{"full path", map[string]interface{}{"database": "sales", "table": "orders", "column": "ssn"}, "column"},
		{"url", map[string]interface{}{"url": "s3://bucket/a"}, "url"},
		{"empty", map[string]interface{}{}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resource := model.NewAccessResourceFromMap(tc.elements)
			assert.Equal(t, tc.expected, helper.LeafNameOf(resource))
		})
	}
}

func TestKeySetSignatureIsOrderInsensitive(t *testing.T) {
	a := model.KeySetSignature([]string{"table", "database"})
	b := model.KeySetSignature([]string{"database", "table"})
	assert.Equal(t, a, b)
}
