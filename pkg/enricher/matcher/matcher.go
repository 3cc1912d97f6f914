//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package matcher decides how a concrete accessed resource relates to a
// tagged service resource: not at all, exactly, as a descendant, or as an
// ancestor on the dimension hierarchy.
//
// A [ServiceResourceMatcher] is built once per service resource when a
// snapshot is indexed, by selecting the first policy type whose hierarchy
// set fully covers the resource's dimension keys. Construction fails when no
// policy type admits the resource, in which case the caller drops the
// resource and its tag associations.
package matcher

import (
	"github.com/manetu/tagenricher/internal/logging"
	"github.com/manetu/tagenricher/pkg/enricher/model"
)

var logger = logging.GetLogger("tagenricher.matcher")

// ServiceResourceMatcher matches access resources against one tagged
// service resource. It is immutable after construction and safe for
// concurrent use.
type ServiceResourceMatcher struct {
	serviceResource *model.ServiceResource
	policyType      model.PolicyType
	hierarchy       []*model.ResourceDef
	leafIndex       int
	valueMatchers   map[string]*valueMatcher
}

// NewServiceResourceMatcher builds a matcher for the given service resource,
// selecting the first policy type (access, datamask, row-filter) with a
// hierarchy fully covering the resource's dimension keys. The hierarchies
// memo is consulted and updated across calls within one snapshot build.
//
// Returns nil when no policy type admits the resource.
func NewServiceResourceMatcher(serviceResource *model.ServiceResource, helper *model.ServiceDefHelper, hierarchies *ResourceHierarchies) *ServiceResourceMatcher {
	keys := serviceResource.Keys()

	for _, policyType := range model.PolicyTypes {
		valid, known := hierarchies.IsValid(policyType, keys)
		if !known {
			valid = false
			for _, hierarchy := range helper.Hierarchies(policyType) {
				if helper.HierarchyHasAllResources(hierarchy, keys) {
					valid = true
					break
				}
			}
			hierarchies.Add(policyType, keys, valid)
		}

		if !valid {
			continue
		}

		for _, hierarchy := range helper.Hierarchies(policyType) {
			if helper.HierarchyHasAllResources(hierarchy, keys) {
				return newMatcherOnHierarchy(serviceResource, policyType, hierarchy)
			}
		}
	}

	logger.SysWarnf("no hierarchy of any policy-type covers resource %s", serviceResource)

	return nil
}

func newMatcherOnHierarchy(serviceResource *model.ServiceResource, policyType model.PolicyType, hierarchy []*model.ResourceDef) *ServiceResourceMatcher {
	ret := &ServiceResourceMatcher{
		serviceResource: serviceResource,
		policyType:      policyType,
		hierarchy:       hierarchy,
		leafIndex:       -1,
		valueMatchers:   make(map[string]*valueMatcher),
	}

	for i, def := range hierarchy {
		policyResource := serviceResource.ResourceElements[def.Name]
		if policyResource == nil {
			continue
		}
		ret.valueMatchers[def.Name] = newValueMatcher(def, policyResource)
		ret.leafIndex = i
	}

	return ret
}

// ServiceResource returns the matched service resource.
func (m *ServiceResourceMatcher) ServiceResource() *model.ServiceResource {
	return m.serviceResource
}

// PolicyType returns the policy type whose hierarchy admitted the resource.
func (m *ServiceResourceMatcher) PolicyType() model.PolicyType {
	return m.policyType
}

// PolicyResource returns the value(s) the service resource carries for a
// dimension, or nil. This is the contract the resource tries index on.
func (m *ServiceResourceMatcher) PolicyResource(dimension string) *model.PolicyResource {
	return m.serviceResource.ResourceElements[dimension]
}

// IsLeaf reports whether the named dimension is the deepest one the service
// resource populates.
func (m *ServiceResourceMatcher) IsLeaf(dimension string) bool {
	return m.leafIndex >= 0 && m.hierarchy[m.leafIndex].Name == dimension
}

// IsAncestorOf reports whether the service resource sits strictly above the
// given dimension on its hierarchy.
func (m *ServiceResourceMatcher) IsAncestorOf(def *model.ResourceDef) bool {
	if def == nil {
		return false
	}
	for i := m.leafIndex + 1; i < len(m.hierarchy); i++ {
		if m.hierarchy[i].Name == def.Name {
			return true
		}
	}

	return false
}

// MatchType computes the relation between the accessed resource and the
// service resource, honoring per-dimension element matching scopes.
func (m *ServiceResourceMatcher) MatchType(resource *model.AccessResource, scopes map[string]model.ElementMatchingScope) model.MatchType {
	if resource == nil || resource.IsEmpty() {
		if m.leafIndex < 0 {
			return model.MatchTypeSelf
		}
		return model.MatchTypeDescendant
	}

	// values on dimensions outside the hierarchy can never match
	hierarchyDims := make(map[string]bool, len(m.hierarchy))
	for _, def := range m.hierarchy {
		hierarchyDims[def.Name] = true
	}
	for _, key := range resource.Keys() {
		if !hierarchyDims[key] {
			return model.MatchTypeNone
		}
	}

	accessIndex := -1
	for i, def := range m.hierarchy {
		if resource.Value(def.Name) != nil {
			accessIndex = i
		}
	}

	overlap := m.leafIndex
	if accessIndex < overlap {
		overlap = accessIndex
	}

	// every dimension populated by both sides must agree on values
	for i := 0; i <= overlap; i++ {
		def := m.hierarchy[i]
		aMatcher := m.valueMatchers[def.Name]
		if aMatcher == nil {
			continue
		}

		values := resource.ValueStrings(def.Name)
		if len(values) == 0 {
			continue
		}

		scope := model.ElementMatchingScopeSelf
		if scopes != nil {
			scope = scopes[def.Name]
		}

		matched := false
		for _, value := range values {
			if aMatcher.isMatch(value, scope) {
				matched = true
				break
			}
		}
		if !matched {
			return model.MatchTypeNone
		}
	}

	switch {
	case m.leafIndex == accessIndex:
		return model.MatchTypeSelf
	case m.leafIndex < accessIndex:
		return model.MatchTypeAncestor
	default:
		// the service resource reaches deeper; if every deeper level is a
		// full wildcard it covers the accessed resource and all descendants
		for i := accessIndex + 1; i <= m.leafIndex; i++ {
			aMatcher := m.valueMatchers[m.hierarchy[i].Name]
			if aMatcher != nil && !aMatcher.matchesAny() {
				return model.MatchTypeDescendant
			}
		}
		return model.MatchTypeSelfAndAllDescendants
	}
}

func (m *ServiceResourceMatcher) String() string {
	return m.serviceResource.String()
}
