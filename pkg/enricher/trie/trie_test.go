//
//  Copyright © Manetu Inc. All rights reserved.
//

package trie_test

import (
	"testing"

	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/trie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvaluator struct {
	name      string
	resources map[string]*model.PolicyResource
}

func (s *stubEvaluator) PolicyResource(dimension string) *model.PolicyResource {
	return s.resources[dimension]
}

func stub(name string, values ...string) *stubEvaluator {
	return &stubEvaluator{
		name: name,
		resources: map[string]*model.PolicyResource{
			"database": {Values: values},
		},
	}
}

func databaseDef() *model.ResourceDef {
	return &model.ResourceDef{
		Name: "database",
		MatcherOptions: map[string]string{
			model.OptionWildcard:   "true",
			model.OptionIgnoreCase: "true",
		},
	}
}

func names(evaluators []*stubEvaluator) []string {
	var ret []string
	for _, e := range evaluators {
		ret = append(ret, e.name)
	}
	return ret
}

func TestExactLookup(t *testing.T) {
	sales := stub("sales", "sales")
	finance := stub("finance", "finance")

	aTrie := trie.New(databaseDef(), []*stubEvaluator{sales, finance}, true, true)

	found := aTrie.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf)
	assert.Equal(t, []string{"sales"}, names(found))

	assert.Empty(t, aTrie.GetEvaluatorsForResource("hr", model.ElementMatchingScopeSelf))
}

func TestCaseFolding(t *testing.T) {
	sales := stub("sales", "Sales")
	aTrie := trie.New(databaseDef(), []*stubEvaluator{sales}, true, true)

	assert.Len(t, aTrie.GetEvaluatorsForResource("SALES", model.ElementMatchingScopeSelf), 1)
}

func TestWildcardLookup(t *testing.T) {
	all := stub("all", "*")
	prefixed := stub("prefixed", "sales_*")
	exact := stub("exact", "sales_eu")

	aTrie := trie.New(databaseDef(), []*stubEvaluator{all, prefixed, exact}, true, true)

	found := aTrie.GetEvaluatorsForResource("sales_eu", model.ElementMatchingScopeSelf)
	assert.ElementsMatch(t, []string{"all", "prefixed", "exact"}, names(found))

	found = aTrie.GetEvaluatorsForResource("hr", model.ElementMatchingScopeSelf)
	assert.ElementsMatch(t, []string{"all"}, names(found))
}

func TestEvaluatorWithoutDimensionMatchesAnyValue(t *testing.T) {
	unscoped := &stubEvaluator{name: "unscoped", resources: map[string]*model.PolicyResource{}}
	aTrie := trie.New(databaseDef(), []*stubEvaluator{unscoped}, true, true)

	found := aTrie.GetEvaluatorsForResource("anything", model.ElementMatchingScopeSelf)
	assert.Equal(t, []string{"unscoped"}, names(found))
}

func TestAddDelete(t *testing.T) {
	sales := stub("sales", "sales")
	aTrie := trie.New(databaseDef(), []*stubEvaluator{}, true, true)

	aTrie.Add(sales.PolicyResource("database"), sales)
	aTrie.WrapUpUpdate()
	assert.Len(t, aTrie.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf), 1)

	aTrie.Delete(sales.PolicyResource("database"), sales)
	aTrie.WrapUpUpdate()
	assert.Empty(t, aTrie.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf))

	// deleting again is a no-op
	aTrie.Delete(sales.PolicyResource("database"), sales)
	aTrie.WrapUpUpdate()
}

func TestCopyIsIndependent(t *testing.T) {
	sales := stub("sales", "sales")
	finance := stub("finance", "finance")

	original := trie.New(databaseDef(), []*stubEvaluator{sales, finance}, true, true)
	clone := original.Copy()

	clone.Delete(sales.PolicyResource("database"), sales)
	clone.WrapUpUpdate()

	assert.Len(t, original.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf), 1)
	assert.Empty(t, clone.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf))
}

func TestRecursiveValueCoversDescendants(t *testing.T) {
	def := &model.ResourceDef{
		Name: "path",
		MatcherOptions: map[string]string{
			model.OptionPathSeparator: "/",
		},
	}
	home := &stubEvaluator{
		name: "home",
		resources: map[string]*model.PolicyResource{
			"path": {Values: []string{"/home"}, IsRecursive: true},
		},
	}

	aTrie := trie.New(def, []*stubEvaluator{home}, true, true)

	found := aTrie.GetEvaluatorsForResource("/home/alice", model.ElementMatchingScopeSelf)
	assert.Equal(t, []string{"home"}, names(found))
}

func TestScopeSelfOrPrefix(t *testing.T) {
	deep := stub("deep", "sales_eu")
	aTrie := trie.New(databaseDef(), []*stubEvaluator{deep}, true, true)

	assert.Empty(t, aTrie.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelf))

	found := aTrie.GetEvaluatorsForResource("sales", model.ElementMatchingScopeSelfOrPrefix)
	assert.Equal(t, []string{"deep"}, names(found))
}

func TestMultiValueLookupIsDeduplicated(t *testing.T) {
	both := stub("both", "sales", "finance")
	aTrie := trie.New(databaseDef(), []*stubEvaluator{both}, true, true)

	found := aTrie.GetEvaluatorsForResource([]string{"sales", "finance"}, model.ElementMatchingScopeSelf)
	assert.Len(t, found, 1)
}

func TestGetEvaluatorsIntersection(t *testing.T) {
	dbOnly := &stubEvaluator{
		name: "dbOnly",
		resources: map[string]*model.PolicyResource{
			"database": {Values: []string{"sales"}},
		},
	}
	dbAndTable := &stubEvaluator{
		name: "dbAndTable",
		resources: map[string]*model.PolicyResource{
			"database": {Values: []string{"sales"}},
			"table":    {Values: []string{"orders"}},
		},
	}

	tableDef := &model.ResourceDef{Name: "table"}
	evaluators := []*stubEvaluator{dbOnly, dbAndTable}

	tries := map[string]*trie.Trie[*stubEvaluator]{
		"database": trie.New(databaseDef(), evaluators, true, true),
		"table":    trie.New(tableDef, evaluators, true, true),
	}

	// dbOnly sits at the table trie root and intersects with any table value
	found := trie.GetEvaluators(tries, map[string]interface{}{
		"database": "sales",
		"table":    "orders",
	}, nil, nil)
	assert.ElementsMatch(t, []string{"dbOnly", "dbAndTable"}, names(found))

	found = trie.GetEvaluators(tries, map[string]interface{}{
		"database": "sales",
		"table":    "lineitems",
	}, nil, nil)
	assert.ElementsMatch(t, []string{"dbOnly"}, names(found))

	found = trie.GetEvaluators(tries, map[string]interface{}{
		"database": "hr",
	}, nil, nil)
	assert.Empty(t, found)
}

func TestGetEvaluatorsPredicate(t *testing.T) {
	sales := stub("sales", "sales")
	finance := stub("finance", "*")

	tries := map[string]*trie.Trie[*stubEvaluator]{
		"database": trie.New(databaseDef(), []*stubEvaluator{sales, finance}, true, true),
	}

	found := trie.GetEvaluators(tries, map[string]interface{}{"database": "sales"},
		nil, func(e *stubEvaluator) bool { return e.name == "sales" })
	require.Len(t, found, 1)
	assert.Equal(t, "sales", found[0].name)
}
