//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"sort"
	"strings"
)

// Matcher option keys understood by [ResourceDef.MatcherOptions].
const (
	// OptionWildcard enables '*' and '?' wildcards in policy-resource values.
	OptionWildcard = "wildCard"
	// OptionIgnoreCase makes value comparison case-insensitive.
	OptionIgnoreCase = "ignoreCase"
	// OptionPathSeparator sets the separator character for path-valued
	// dimensions (e.g. "/" for filesystem paths).
	OptionPathSeparator = "pathSeparatorChar"
)

// ResourceDef describes one dimension of a service's resource space,
// e.g. "database", "table" or "column".
type ResourceDef struct {
	Name   string `json:"name" yaml:"name"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Level  int    `json:"level,omitempty" yaml:"level,omitempty"`
	// MatcherOptions defines the value grammar for this dimension. See the
	// Option* constants for recognized keys.
	MatcherOptions map[string]string `json:"matcherOptions,omitempty" yaml:"matcherOptions,omitempty"`
}

// OptionBool returns the named matcher option as a boolean, with a default
// when absent.
func (d *ResourceDef) OptionBool(name string, def bool) bool {
	v, ok := d.MatcherOptions[name]
	if !ok {
		return def
	}
	return strings.EqualFold(v, "true")
}

// PathSeparator returns the configured path separator, or 0 when the
// dimension is not path-valued.
func (d *ResourceDef) PathSeparator() byte {
	if v := d.MatcherOptions[OptionPathSeparator]; v != "" {
		return v[0]
	}
	return 0
}

// ServiceDef describes the resource dimensions of a service for each policy
// type. Resources holds the access-policy dimensions; the datamask and
// row-filter dimension lists are optional and default to empty.
type ServiceDef struct {
	Name               string        `json:"name" yaml:"name"`
	Resources          []ResourceDef `json:"resources" yaml:"resources"`
	DataMaskResources  []ResourceDef `json:"dataMaskResources,omitempty" yaml:"dataMaskResources,omitempty"`
	RowFilterResources []ResourceDef `json:"rowFilterResources,omitempty" yaml:"rowFilterResources,omitempty"`
}

// ResourcesForPolicyType returns the dimension list for the given policy type.
func (d *ServiceDef) ResourcesForPolicyType(policyType PolicyType) []ResourceDef {
	switch policyType {
	case PolicyTypeDataMask:
		return d.DataMaskResources
	case PolicyTypeRowFilter:
		return d.RowFilterResources
	default:
		return d.Resources
	}
}

// ServiceDefHelper answers hierarchy questions over a [ServiceDef]: which
// ordered dimension paths are legal for each policy type, whether a set of
// dimension names fully lies on some hierarchy, and which dimension is the
// leaf of a hierarchy.
//
// A hierarchy is a root-to-leaf path through the parent links of the policy
// type's resource dimensions. The helper is immutable after construction and
// safe for concurrent use.
type ServiceDefHelper struct {
	serviceDef   *ServiceDef
	hierarchies  map[PolicyType][][]*ResourceDef
	resourceDefs map[string]*ResourceDef
}

// NewServiceDefHelper builds a helper for the given service definition.
func NewServiceDefHelper(serviceDef *ServiceDef) *ServiceDefHelper {
	ret := &ServiceDefHelper{
		serviceDef:   serviceDef,
		hierarchies:  make(map[PolicyType][][]*ResourceDef),
		resourceDefs: make(map[string]*ResourceDef),
	}

	for _, policyType := range PolicyTypes {
		defs := serviceDef.ResourcesForPolicyType(policyType)
		ret.hierarchies[policyType] = buildHierarchies(defs)

		for i := range defs {
			def := &defs[i]
			if _, ok := ret.resourceDefs[def.Name]; !ok {
				ret.resourceDefs[def.Name] = def
			}
		}
	}

	return ret
}

// buildHierarchies derives all root-to-leaf dimension paths from parent links.
// Dimensions without a parent (or whose parent is not in the list) are roots.
func buildHierarchies(defs []ResourceDef) [][]*ResourceDef {
	byName := make(map[string]*ResourceDef, len(defs))
	children := make(map[string][]*ResourceDef)

	for i := range defs {
		byName[defs[i].Name] = &defs[i]
	}

	var roots []*ResourceDef
	for i := range defs {
		def := &defs[i]
		if def.Parent == "" || byName[def.Parent] == nil {
			roots = append(roots, def)
		} else {
			children[def.Parent] = append(children[def.Parent], def)
		}
	}

	var ret [][]*ResourceDef
	var walk func(path []*ResourceDef, def *ResourceDef)

	walk = func(path []*ResourceDef, def *ResourceDef) {
		path = append(path, def)
		kids := children[def.Name]
		if len(kids) == 0 {
			hierarchy := make([]*ResourceDef, len(path))
			copy(hierarchy, path)
			ret = append(ret, hierarchy)
			return
		}
		for _, kid := range kids {
			walk(path, kid)
		}
	}

	for _, root := range roots {
		walk(nil, root)
	}

	return ret
}

// ServiceDef returns the underlying service definition.
func (h *ServiceDefHelper) ServiceDef() *ServiceDef {
	return h.serviceDef
}

// ResourceDef returns the dimension definition with the given name, or nil.
func (h *ServiceDefHelper) ResourceDef(name string) *ResourceDef {
	return h.resourceDefs[name]
}

// Hierarchies returns all hierarchies admitted by the given policy type.
func (h *ServiceDefHelper) Hierarchies(policyType PolicyType) [][]*ResourceDef {
	return h.hierarchies[policyType]
}

// HierarchiesForKeys returns the hierarchies of the given policy type that
// contain every one of the given dimension names.
func (h *ServiceDefHelper) HierarchiesForKeys(policyType PolicyType, keys []string) [][]*ResourceDef {
	var ret [][]*ResourceDef

	for _, hierarchy := range h.hierarchies[policyType] {
		if h.HierarchyHasAllResources(hierarchy, keys) {
			ret = append(ret, hierarchy)
		}
	}

	return ret
}

// HierarchyHasAllResources reports whether every named dimension appears in
// the hierarchy.
func (h *ServiceDefHelper) HierarchyHasAllResources(hierarchy []*ResourceDef, keys []string) bool {
	for _, key := range keys {
		found := false
		for _, def := range hierarchy {
			if def.Name == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// LeafOf returns the deepest dimension of a hierarchy.
func (h *ServiceDefHelper) LeafOf(hierarchy []*ResourceDef) *ResourceDef {
	if len(hierarchy) == 0 {
		return nil
	}
	return hierarchy[len(hierarchy)-1]
}

// LeafNameOf derives the leaf name of an access resource: the deepest
// populated dimension on a hierarchy containing all of the resource's keys.
// Returns "" when the resource is empty or lies on no hierarchy.
func (h *ServiceDefHelper) LeafNameOf(resource *AccessResource) string {
	if resource == nil || resource.IsEmpty() {
		return ""
	}

	keys := resource.Keys()

	for _, policyType := range PolicyTypes {
		for _, hierarchy := range h.HierarchiesForKeys(policyType, keys) {
			leaf := ""
			for _, def := range hierarchy {
				if resource.Value(def.Name) != nil {
					leaf = def.Name
				}
			}
			if leaf != "" {
				return leaf
			}
		}
	}

	return ""
}

// KeySetSignature returns a canonical string for a set of dimension names,
// used to memoize hierarchy-validity answers.
func KeySetSignature(keys []string) string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
