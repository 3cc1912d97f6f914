//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"sort"

	"github.com/manetu/tagenricher/pkg/enricher/matcher"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/trie"
)

// resourceTrie is the per-dimension index over service-resource matchers.
type resourceTrie = trie.Trie[*matcher.ServiceResourceMatcher]

// EnrichedServiceTags is the immutable in-memory indexed form of a
// service-tags snapshot: the payload itself, one matcher per retained
// service resource, the per-dimension tries over those matchers, and the
// precomputed tag set served when the accessed resource is empty and the
// access type is 'any'.
//
// Readers treat the bundle as immutable; in-place mutation happens only
// under the enricher's write lock, and only when in-place updates are
// enabled.
type EnrichedServiceTags struct {
	serviceTags             *model.ServiceTags
	serviceResourceMatchers []*matcher.ServiceResourceMatcher
	serviceResourceTrie     map[string]*resourceTrie

	// served when the accessed resource is empty and access type is 'any'
	tagsForEmptyResourceAndAnyAccess []*model.TagForEval

	resourceTrieVersion int64
}

func newEnrichedServiceTags(serviceTags *model.ServiceTags, matchers []*matcher.ServiceResourceMatcher, tries map[string]*resourceTrie) *EnrichedServiceTags {
	return &EnrichedServiceTags{
		serviceTags:                      serviceTags,
		serviceResourceMatchers:          matchers,
		serviceResourceTrie:              tries,
		tagsForEmptyResourceAndAnyAccess: createTagsForEmptyResourceAndAnyAccess(serviceTags),
		resourceTrieVersion:              serviceTags.TagVersion,
	}
}

func createTagsForEmptyResourceAndAnyAccess(serviceTags *model.ServiceTags) []*model.TagForEval {
	ids := make([]int64, 0, len(serviceTags.Tags))
	for id := range serviceTags.Tags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	ret := make([]*model.TagForEval, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, model.NewTagForEval(serviceTags.Tags[id], model.MatchTypeDescendant))
	}

	return ret
}

// ServiceTags returns the wrapped snapshot payload.
func (e *EnrichedServiceTags) ServiceTags() *model.ServiceTags {
	return e.serviceTags
}

// ServiceResourceMatchers returns one matcher per retained service resource.
func (e *EnrichedServiceTags) ServiceResourceMatchers() []*matcher.ServiceResourceMatcher {
	return e.serviceResourceMatchers
}

// ServiceResourceTrie returns the per-dimension matcher index, or nil when
// the trie pre-filter is disabled.
func (e *EnrichedServiceTags) ServiceResourceTrie() map[string]*resourceTrie {
	return e.serviceResourceTrie
}

// ResourceTrieVersion returns the tag version of the payload this enriched
// snapshot was built from. A tags-only delta carries the tries over while
// still advancing this version.
func (e *EnrichedServiceTags) ResourceTrieVersion() int64 {
	return e.resourceTrieVersion
}

// TagsForEmptyResourceAndAnyAccess returns the precomputed DESCENDANT
// wrapping of every tag in the snapshot.
func (e *EnrichedServiceTags) TagsForEmptyResourceAndAnyAccess() []*model.TagForEval {
	return e.tagsForEmptyResourceAndAnyAccess
}
