//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"github.com/manetu/tagenricher/pkg/enricher/matcher"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/trie"
)

// processServiceTags rebuilds the enriched snapshot from a full payload:
// one matcher per service resource (resources whose matcher cannot be built
// are dropped along with their tag associations), and one trie per
// dimension over the surviving matchers.
func (e *TagEnricher) processServiceTags(serviceTags *model.ServiceTags) {
	if len(serviceTags.ServiceResources) == 0 {
		logger.SysInfof("there are no tagged resources for service %s", e.serviceName)
		e.enriched.Store(nil)
		return
	}

	hierarchies := matcher.NewResourceHierarchies()
	matchers := make([]*matcher.ServiceResourceMatcher, 0, len(serviceTags.ServiceResources))
	retained := make([]*model.ServiceResource, 0, len(serviceTags.ServiceResources))

	for _, serviceResource := range serviceTags.ServiceResources {
		resourceMatcher := matcher.NewServiceResourceMatcher(serviceResource, e.defHelper, hierarchies)
		if resourceMatcher == nil {
			tagIds := serviceTags.ResourceToTagIds[serviceResource.ID]
			delete(serviceTags.ResourceToTagIds, serviceResource.ID)
			logger.SysWarnf("invalid resource %s: failed to create resource-matcher; ignoring %d associated tags", serviceResource, len(tagIds))
			continue
		}

		matchers = append(matchers, resourceMatcher)
		retained = append(retained, serviceResource)
	}
	serviceTags.ServiceResources = retained

	var tries map[string]*resourceTrie
	if !e.disableTrieLookupPrefilter {
		tries = make(map[string]*resourceTrie, len(e.serviceDef.Resources))
		for i := range e.serviceDef.Resources {
			def := &e.serviceDef.Resources[i]
			tries[def.Name] = trie.New(def, matchers, true, true)
		}
	}

	e.enriched.Store(newEnrichedServiceTags(serviceTags, matchers, tries))
}

// processDelta evolves the current snapshot from an incremental payload.
// With rebuildOnlyIndex the prior payload is kept as-is and only the
// matchers and tries are brought in line with the delta.
func (e *TagEnricher) processDelta(deltas *model.ServiceTags, rebuildOnlyIndex bool) {
	old := e.enriched.Load()

	var oldServiceTags *model.ServiceTags
	if old != nil {
		oldServiceTags = old.ServiceTags()
	}

	var allServiceTags *model.ServiceTags
	if rebuildOnlyIndex && oldServiceTags != nil {
		allServiceTags = oldServiceTags
	} else {
		allServiceTags = model.ApplyDelta(oldServiceTags, deltas)
	}

	switch deltas.TagsChangeExtent {
	case model.TagsChangeExtentNone:
		logger.SysDebugf("no change to service-tags other than version change")

	case model.TagsChangeExtentTags:
		// attribute-only change: matchers and tries carry over
		var matchers []*matcher.ServiceResourceMatcher
		var tries map[string]*resourceTrie
		if old != nil {
			matchers = old.ServiceResourceMatchers()
			tries = old.ServiceResourceTrie()
		}
		e.enriched.Store(newEnrichedServiceTags(allServiceTags, matchers, tries))

	default:
		var tries map[string]*resourceTrie
		switch {
		case old == nil:
			tries = make(map[string]*resourceTrie)
		case e.lock.isLockingEnabled():
			tries = old.ServiceResourceTrie()
		default:
			tries = e.copyServiceResourceTrie()
		}

		e.processServiceTagDeltas(deltas, allServiceTags, tries)
	}
}

func (e *TagEnricher) processServiceTagDeltas(deltas *model.ServiceTags, allServiceTags *model.ServiceTags, tries map[string]*resourceTrie) {
	logger.SysDebugf("delta contains changes beyond tag attributes: %s", deltas.TagsChangeExtent)

	isInError := false

	hierarchies := matcher.NewResourceHierarchies()
	var matchers []*matcher.ServiceResourceMatcher
	if old := e.enriched.Load(); old != nil {
		matchers = append(matchers, old.ServiceResourceMatchers()...)
	}

	for _, serviceResource := range deltas.ServiceResources {
		removedOld := len(serviceResource.ResourceElements) == 0 ||
			e.removeOldServiceResource(serviceResource, &matchers, tries)

		switch {
		case !removedOld:
			isInError = true

		case serviceResource.ResourceSignature == "":
			logger.SysDebugf("service-resource id=%d is deleted as its resource-signature is empty", serviceResource.ID)

		default:
			resourceMatcher := matcher.NewServiceResourceMatcher(serviceResource, e.defHelper, hierarchies)
			if resourceMatcher == nil {
				logger.SysErrorf("could not create resource-matcher for resource %s; forcing tagVersion to -1 so that the next download is complete", serviceResource)
				isInError = true
				break
			}

			for i := range e.serviceDef.Resources {
				def := &e.serviceDef.Resources[i]
				policyResource := serviceResource.ResourceElements[def.Name]

				if aTrie := tries[def.Name]; aTrie != nil {
					aTrie.Add(policyResource, resourceMatcher)
					aTrie.WrapUpUpdate()
				} else {
					tries[def.Name] = trie.New(def, []*matcher.ServiceResourceMatcher{resourceMatcher}, true, true)
				}
			}
			matchers = append(matchers, resourceMatcher)
		}

		if isInError {
			break
		}
	}

	if isInError {
		logger.SysErrorf("error in processing tag-deltas; continuing to use the previous tags")
		deltas.TagVersion = -1
		return
	}

	for _, aTrie := range tries {
		aTrie.WrapUpUpdate()
	}
	e.enriched.Store(newEnrichedServiceTags(allServiceTags, matchers, tries))
}

// removeOldServiceResource unindexes the matcher previously covering the
// changed resource: the resource's own values are replayed as an access
// resource, candidates are narrowed to exact (SELF) matches, the matcher
// previously built for the same resource id is added to them, and each such
// matcher is deleted from every dimension's trie under its own values.
// Resources never indexed remove trivially.
func (e *TagEnricher) removeOldServiceResource(serviceResource *model.ServiceResource, matchers *[]*matcher.ServiceResourceMatcher, tries map[string]*resourceTrie) bool {
	old := e.enriched.Load()
	if old == nil {
		return true
	}

	accessResource := model.NewAccessResource()
	for name, policyResource := range serviceResource.ResourceElements {
		accessResource.SetValue(name, policyResource.Values)
	}

	request := model.NewAccessRequest(accessResource, model.AccessTypeAny)
	candidates := e.getEvaluators(request, old)

	var exact []*matcher.ServiceResourceMatcher
	for _, resourceMatcher := range candidates {
		if resourceMatcher.MatchType(accessResource, request.ElementMatchingScopes) == model.MatchTypeSelf {
			exact = append(exact, resourceMatcher)
		}
	}

	// the matcher previously built for the same resource id goes as well:
	// a changed resource no longer matches its old values exactly
	for _, resourceMatcher := range *matchers {
		skip := resourceMatcher.ServiceResource().ID != serviceResource.ID
		for _, listed := range exact {
			skip = skip || listed == resourceMatcher
		}
		if !skip {
			exact = append(exact, resourceMatcher)
		}
	}

	for _, resourceMatcher := range exact {
		for i := range e.serviceDef.Resources {
			name := e.serviceDef.Resources[i].Name

			aTrie := tries[name]
			if aTrie == nil {
				logger.SysErrorf("cannot find resource trie for dimension %s; forcing tagVersion to -1 so that the next download is complete", name)
				return false
			}
			aTrie.Delete(resourceMatcher.PolicyResource(name), resourceMatcher)
		}
	}

	if len(exact) > 0 {
		remaining := (*matchers)[:0]
		for _, resourceMatcher := range *matchers {
			removed := false
			for _, gone := range exact {
				if resourceMatcher == gone {
					removed = true
					break
				}
			}
			if !removed {
				remaining = append(remaining, resourceMatcher)
			}
		}
		*matchers = remaining

		logger.SysDebugf("removed %d matcher(s) for service-resource %s", len(exact), serviceResource)
	}

	return true
}

func (e *TagEnricher) copyServiceResourceTrie() map[string]*resourceTrie {
	ret := make(map[string]*resourceTrie)

	if old := e.enriched.Load(); old != nil {
		for name, aTrie := range old.ServiceResourceTrie() {
			ret[name] = aTrie.Copy()
		}
	}

	return ret
}
