//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher_test

import (
	"testing"

	"github.com/manetu/tagenricher/pkg/enricher"
	"github.com/manetu/tagenricher/pkg/enricher/config"
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
		},
	}
}

func piiSnapshot() *model.ServiceTags {
	return &model.ServiceTags{
		ServiceName: "dev_hive",
		TagVersion:  1,
		Tags: map[int64]*model.Tag{
			1: {ID: 1, Type: "PII"},
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
}

func newTestEnricher(t *testing.T) *enricher.TagEnricher {
	t.Helper()
	config.ResetConfig()

	e, err := enricher.New("dev_hive", "hiveServer2", hiveServiceDef(), nil)
	require.Nil(t, err)
	require.Nil(t, e.Init())

	return e
}

func enrich(e *enricher.TagEnricher, elements map[string]interface{}, accessType string) []*model.TagForEval {
	request := model.NewAccessRequest(model.NewAccessResourceFromMap(elements), accessType)
	e.Enrich(request)
	return model.GetRequestTags(request)
}

func TestAncestorMatch(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	tags := enrich(e, map[string]interface{}{"database": "sales", "table": "orders"}, "select")
	require.Len(t, tags, 1)
	assert.Equal(t, "PII", tags[0].Tag.Type)
	assert.Equal(t, model.MatchTypeAncestor, tags[0].MatchType)
}

func TestEmptyResourceAnyAccess(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	tags := enrich(e, map[string]interface{}{}, model.AccessTypeAny)
	require.Len(t, tags, 1)
	assert.Equal(t, "PII", tags[0].Tag.Type)
	assert.Equal(t, model.MatchTypeDescendant, tags[0].MatchType)
}

func TestNoMatchOnForeignDatabase(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	assert.Empty(t, enrich(e, map[string]interface{}{"database": "hr"}, "select"))
}

func TestDescendantNotMatchedForConcreteAccess(t *testing.T) {
	e := newTestEnricher(t)

	st := piiSnapshot()
	st.ServiceResources[0].ResourceElements["table"] = &model.PolicyResource{Values: []string{"orders"}}
	e.SetServiceTags(st)

	// a deeper service resource is only visible to 'any' access
	assert.Empty(t, enrich(e, map[string]interface{}{"database": "sales"}, "select"))

	tags := enrich(e, map[string]interface{}{"database": "sales"}, model.AccessTypeAny)
	require.Len(t, tags, 1)
	assert.Equal(t, model.MatchTypeDescendant, tags[0].MatchType)
}

func TestSelfOrDescendantsScopeMatchesDescendants(t *testing.T) {
	e := newTestEnricher(t)

	st := piiSnapshot()
	st.ServiceResources[0].ResourceElements["table"] = &model.PolicyResource{Values: []string{"orders"}}
	e.SetServiceTags(st)

	request := model.NewAccessRequest(model.NewAccessResourceFromMap(map[string]interface{}{"database": "sales"}), "select")
	request.MatchingScope = model.ResourceMatchingScopeSelfOrDescendants
	model.SetIsAnyAccessInContext(request, true)
	e.Enrich(request)

	require.Len(t, model.GetRequestTags(request), 1)
}

func TestVersionAccessors(t *testing.T) {
	e := newTestEnricher(t)

	assert.EqualValues(t, -1, e.GetServiceTagsVersion())
	assert.EqualValues(t, -1, e.GetResourceTrieVersion())

	e.SetServiceTags(piiSnapshot())

	assert.EqualValues(t, 1, e.GetServiceTagsVersion())
	assert.EqualValues(t, 1, e.GetResourceTrieVersion())

	e.SetServiceTags(nil)
	assert.EqualValues(t, -1, e.GetServiceTagsVersion())
	assert.Nil(t, e.GetEnrichedServiceTags())
	assert.Empty(t, enrich(e, map[string]interface{}{"database": "sales"}, "select"))
}

func TestInvalidResourceDroppedOnFullRebuild(t *testing.T) {
	e := newTestEnricher(t)

	st := piiSnapshot()
	st.ServiceResources = append(st.ServiceResources, &model.ServiceResource{
		ID:                2,
		ResourceSignature: "sig-2",
		ResourceElements: map[string]*model.PolicyResource{
			"bucket": {Values: []string{"b1"}},
		},
	})
	st.Tags[2] = &model.Tag{ID: 2, Type: "PCI"}
	st.ResourceToTagIds[2] = []int64{2}

	e.SetServiceTags(st)

	enriched := e.GetEnrichedServiceTags()
	require.NotNil(t, enriched)
	assert.Len(t, enriched.ServiceResourceMatchers(), 1)
	assert.NotContains(t, enriched.ServiceTags().ResourceToTagIds, int64(2))

	// the sane resource still serves
	assert.Len(t, enrich(e, map[string]interface{}{"database": "sales"}, "select"), 1)
}

func TestDeltaReplacesResource(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentServiceResources,
		Tags: map[int64]*model.Tag{
			1: {ID: 1, Type: "PII"},
		},
		ServiceResources: []*model.ServiceResource{
			{
				ID:                1,
				ResourceSignature: "sig-2",
				ResourceElements: map[string]*model.PolicyResource{
					"database": {Values: []string{"sales"}},
					"table":    {Values: []string{"orders"}},
				},
			},
		},
		ResourceToTagIds: map[int64][]int64{1: {1}},
	}

	e.SetServiceTags(delta)

	assert.EqualValues(t, 2, e.GetServiceTagsVersion())

	tags := enrich(e, map[string]interface{}{"database": "sales", "table": "orders", "column": "ssn"}, "select")
	require.Len(t, tags, 1)
	assert.Equal(t, "PII", tags[0].Tag.Type)
	assert.Equal(t, model.MatchTypeAncestor, tags[0].MatchType)

	// the prior matcher covered {database: sales} exactly; it must be gone
	assert.Empty(t, enrich(e, map[string]interface{}{"database": "sales"}, "select"))
}

func TestDeltaDeletesResource(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentServiceResources,
		ServiceResources: []*model.ServiceResource{
			{
				ID:                1,
				ResourceSignature: "",
				ResourceElements: map[string]*model.PolicyResource{
					"database": {Values: []string{"sales"}},
				},
			},
		},
	}

	e.SetServiceTags(delta)

	assert.EqualValues(t, 2, e.GetServiceTagsVersion())
	assert.Empty(t, enrich(e, map[string]interface{}{"database": "sales", "table": "orders"}, "select"))
}

func TestDeltaTagsOnlyChange(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentTags,
		Tags: map[int64]*model.Tag{
			1: {ID: 1, Type: "PII", Attributes: map[string]string{"level": "high"}},
		},
	}

	e.SetServiceTags(delta)

	assert.EqualValues(t, 2, e.GetServiceTagsVersion())

	tags := enrich(e, map[string]interface{}{"database": "sales", "table": "orders"}, "select")
	require.Len(t, tags, 1)
	assert.Equal(t, "high", tags[0].Tag.Attributes["level"])
}

func TestDeltaVersionOnlyChange(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentNone,
	}

	e.SetServiceTags(delta)

	// nothing installed; the prior snapshot keeps serving
	assert.EqualValues(t, 1, e.GetServiceTagsVersion())
	assert.Len(t, enrich(e, map[string]interface{}{"database": "sales"}, "select"), 1)
}

func TestDeltaAbortPreservesState(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	before := enrich(e, map[string]interface{}{"database": "sales"}, "select")
	require.Len(t, before, 1)

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentServiceResources,
		ServiceResources: []*model.ServiceResource{
			{
				ID:                7,
				ResourceSignature: "sig-7",
				ResourceElements: map[string]*model.PolicyResource{
					"bucket": {Values: []string{"b1"}},
				},
			},
		},
	}

	e.SetServiceTags(delta)

	// the delta is rejected wholesale and marked for full redownload
	assert.EqualValues(t, -1, delta.TagVersion)
	assert.EqualValues(t, 1, e.GetServiceTagsVersion())

	after := enrich(e, map[string]interface{}{"database": "sales"}, "select")
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Tag, after[0].Tag)
	assert.Equal(t, before[0].MatchType, after[0].MatchType)
}

func TestFullRebuildEquivalence(t *testing.T) {
	eDelta := newTestEnricher(t)
	eDelta.SetServiceTags(piiSnapshot())

	delta := &model.ServiceTags{
		ServiceName:      "dev_hive",
		TagVersion:       2,
		IsDelta:          true,
		TagsChangeExtent: model.TagsChangeExtentAll,
		Tags: map[int64]*model.Tag{
			2: {ID: 2, Type: "PCI"},
		},
		ServiceResources: []*model.ServiceResource{
			{
				ID:                2,
				ResourceSignature: "sig-2",
				ResourceElements: map[string]*model.PolicyResource{
					"database": {Values: []string{"finance"}},
				},
			},
		},
		ResourceToTagIds: map[int64][]int64{2: {2}},
	}
	eDelta.SetServiceTags(delta)

	eFull := newTestEnricher(t)
	full := piiSnapshot()
	full.TagVersion = 2
	full.Tags[2] = &model.Tag{ID: 2, Type: "PCI"}
	full.ServiceResources = append(full.ServiceResources, &model.ServiceResource{
		ID:                2,
		ResourceSignature: "sig-2",
		ResourceElements: map[string]*model.PolicyResource{
			"database": {Values: []string{"finance"}},
		},
	})
	full.ResourceToTagIds[2] = []int64{2}
	eFull.SetServiceTags(full)

	grid := []map[string]interface{}{
		{"database": "sales"},
		{"database": "finance"},
		{"database": "sales", "table": "orders"},
		{"database": "finance", "table": "ledgers", "column": "card"},
		{"database": "hr"},
		{},
	}

	for _, elements := range grid {
		for _, accessType := range []string{"select", model.AccessTypeAny} {
			fromDelta := enrich(eDelta, elements, accessType)
			fromFull := enrich(eFull, elements, accessType)

			require.Equal(t, len(fromFull), len(fromDelta), "grid %v/%s", elements, accessType)
			for i := range fromFull {
				assert.Equal(t, fromFull[i].EvalKey(), fromDelta[i].EvalKey(), "grid %v/%s", elements, accessType)
			}
		}
	}

	assert.Equal(t, eFull.GetServiceTagsVersion(), eDelta.GetServiceTagsVersion())
}

func TestEnrichWithDataStore(t *testing.T) {
	e := newTestEnricher(t)
	e.SetServiceTags(piiSnapshot())

	pinned := e.GetEnrichedServiceTags()
	require.NotNil(t, pinned)

	e.SetServiceTags(nil)

	request := model.NewAccessRequest(model.NewAccessResourceFromMap(map[string]interface{}{"database": "sales"}), "select")
	e.EnrichWithDataStore(request, pinned)
	assert.Len(t, model.GetRequestTags(request), 1)

	// an unexpected dataStore type falls back to the current snapshot
	request = model.NewAccessRequest(model.NewAccessResourceFromMap(map[string]interface{}{"database": "sales"}), "select")
	e.EnrichWithDataStore(request, "bogus")
	assert.Empty(t, model.GetRequestTags(request))
}

func TestAuthContextObserver(t *testing.T) {
	config.ResetConfig()

	var observed []*enricher.EnrichedServiceTags
	e, err := enricher.New("dev_hive", "hiveServer2", hiveServiceDef(), nil,
		enricher.WithAuthContextObserver(func(enriched *enricher.EnrichedServiceTags) {
			observed = append(observed, enriched)
		}))
	require.Nil(t, err)
	require.Nil(t, e.Init())

	e.SetServiceTags(piiSnapshot())
	e.SetServiceTags(nil)

	require.Len(t, observed, 2)
	assert.NotNil(t, observed[0])
	assert.Nil(t, observed[1])
}

func TestTrieLookupPrefilterDisabled(t *testing.T) {
	config.ResetConfig()

	e, err := enricher.New("dev_hive", "hiveServer2", hiveServiceDef(), map[string]string{
		enricher.OptionDisableTrieLookupPrefilter: "true",
	})
	require.Nil(t, err)
	require.Nil(t, e.Init())

	e.SetServiceTags(piiSnapshot())
	assert.Nil(t, e.GetEnrichedServiceTags().ServiceResourceTrie())

	tags := enrich(e, map[string]interface{}{"database": "sales", "table": "orders"}, "select")
	require.Len(t, tags, 1)
	assert.Equal(t, model.MatchTypeAncestor, tags[0].MatchType)
}
