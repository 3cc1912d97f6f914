//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mohae/deepcopy"
)

// TagsChangeExtent describes how much of a delta snapshot changed relative
// to its predecessor.
type TagsChangeExtent int

// Change extents.
const (
	// TagsChangeExtentNone - nothing changed beyond the version.
	TagsChangeExtentNone TagsChangeExtent = iota
	// TagsChangeExtentTags - only tag attributes changed.
	TagsChangeExtentTags
	// TagsChangeExtentServiceResources - the resource set changed.
	TagsChangeExtentServiceResources
	// TagsChangeExtentAll - both tags and resources changed.
	TagsChangeExtentAll
)

var tagsChangeExtentNames = map[TagsChangeExtent]string{
	TagsChangeExtentNone:             "NONE",
	TagsChangeExtentTags:             "TAGS",
	TagsChangeExtentServiceResources: "SERVICE_RESOURCES",
	TagsChangeExtentAll:              "ALL",
}

// String returns the symbolic name of the change extent.
func (e TagsChangeExtent) String() string {
	if name, ok := tagsChangeExtentNames[e]; ok {
		return name
	}
	return "NONE"
}

// MarshalJSON encodes the extent by its symbolic name.
func (e TagsChangeExtent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes the extent from its symbolic name.
func (e *TagsChangeExtent) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	for extent, extentName := range tagsChangeExtentNames {
		if extentName == name {
			*e = extent
			return nil
		}
	}

	return fmt.Errorf("unknown tagsChangeExtent %q", name)
}

// ServiceTags is a versioned snapshot of (resource, tags) mappings for one
// service, as published by the admin service and persisted in the local
// cache file. A snapshot is either full (IsDelta=false) or an incremental
// delta over its predecessor.
type ServiceTags struct {
	ServiceName      string             `json:"serviceName"`
	TagVersion       int64              `json:"tagVersion"`
	IsDelta          bool               `json:"isDelta,omitempty"`
	TagsChangeExtent TagsChangeExtent   `json:"tagsChangeExtent,omitempty"`
	Tags             map[int64]*Tag     `json:"tags"`
	ServiceResources []*ServiceResource `json:"serviceResources"`
	ResourceToTagIds map[int64][]int64  `json:"resourceToTagIds"`
	IsDeduped        bool               `json:"isDeduped,omitempty"`
	IsTagsDeduped    bool               `json:"isTagsDeduped,omitempty"`
}

// NewServiceTags creates an empty full snapshot at version -1.
func NewServiceTags() *ServiceTags {
	return &ServiceTags{
		TagVersion:       -1,
		Tags:             make(map[int64]*Tag),
		ResourceToTagIds: make(map[int64][]int64),
	}
}

func (s *ServiceTags) ensureMaps() {
	if s.Tags == nil {
		s.Tags = make(map[int64]*Tag)
	}
	if s.ResourceToTagIds == nil {
		s.ResourceToTagIds = make(map[int64][]int64)
	}
}

// DedupStrings interns duplicate strings across resource elements, tag types
// and attributes. Large snapshots repeat dimension names and attribute keys
// heavily; interning collapses them to single instances.
func (s *ServiceTags) DedupStrings() {
	if s.IsDeduped {
		return
	}

	pool := make(map[string]string)
	intern := func(v string) string {
		if cached, ok := pool[v]; ok {
			return cached
		}
		pool[v] = v
		return v
	}

	for _, resource := range s.ServiceResources {
		elements := make(map[string]*PolicyResource, len(resource.ResourceElements))
		for name, policyResource := range resource.ResourceElements {
			values := make([]string, len(policyResource.Values))
			for i, v := range policyResource.Values {
				values[i] = intern(v)
			}
			policyResource.Values = values
			elements[intern(name)] = policyResource
		}
		resource.ResourceElements = elements
		resource.ResourceSignature = intern(resource.ResourceSignature)
	}

	for _, tag := range s.Tags {
		tag.Type = intern(tag.Type)
		attributes := make(map[string]string, len(tag.Attributes))
		for name, value := range tag.Attributes {
			attributes[intern(name)] = intern(value)
		}
		tag.Attributes = attributes
	}

	s.IsDeduped = true
}

// DedupTags collapses value-identical tags to a single id, rewriting the
// resource-to-tag mapping accordingly. Returns the number of tags removed.
func (s *ServiceTags) DedupTags() int {
	s.ensureMaps()

	ids := make([]int64, 0, len(s.Tags))
	for id := range s.Tags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	canonical := make(map[string]int64)
	replaced := make(map[int64]int64)

	for _, id := range ids {
		sig := s.Tags[id].signature()
		if keep, ok := canonical[sig]; ok {
			replaced[id] = keep
			delete(s.Tags, id)
		} else {
			canonical[sig] = id
		}
	}

	if len(replaced) == 0 {
		return 0
	}

	for resourceID, tagIds := range s.ResourceToTagIds {
		seen := make(map[int64]bool, len(tagIds))
		rewritten := make([]int64, 0, len(tagIds))
		for _, tagID := range tagIds {
			if keep, ok := replaced[tagID]; ok {
				tagID = keep
			}
			if !seen[tagID] {
				seen[tagID] = true
				rewritten = append(rewritten, tagID)
			}
		}
		s.ResourceToTagIds[resourceID] = rewritten
	}

	return len(replaced)
}

// ApplyDelta merges a delta snapshot onto a base snapshot and returns the
// merged full snapshot. The base is not modified; resources named in the
// delta replace (or, with an empty signature, remove) their counterparts in
// the base, tags are merged by id, and tags left unreferenced are pruned.
func ApplyDelta(base *ServiceTags, delta *ServiceTags) *ServiceTags {
	var ret *ServiceTags
	if base == nil {
		ret = NewServiceTags()
		ret.ServiceName = delta.ServiceName
	} else {
		ret = deepcopy.Copy(base).(*ServiceTags)
	}
	ret.ensureMaps()

	ret.TagVersion = delta.TagVersion
	ret.IsDelta = false
	ret.TagsChangeExtent = TagsChangeExtentNone

	for _, resource := range delta.ServiceResources {
		for i, existing := range ret.ServiceResources {
			if existing.ID == resource.ID {
				ret.ServiceResources = append(ret.ServiceResources[:i], ret.ServiceResources[i+1:]...)
				break
			}
		}
		delete(ret.ResourceToTagIds, resource.ID)

		if resource.ResourceSignature == "" {
			continue
		}

		ret.ServiceResources = append(ret.ServiceResources, resource)
		if tagIds, ok := delta.ResourceToTagIds[resource.ID]; ok {
			ret.ResourceToTagIds[resource.ID] = append([]int64(nil), tagIds...)
		}
	}

	for id, tag := range delta.Tags {
		if tag == nil {
			delete(ret.Tags, id)
		} else {
			ret.Tags[id] = tag
		}
	}

	// Drop tags no longer referenced by any resource
	referenced := make(map[int64]bool)
	for _, tagIds := range ret.ResourceToTagIds {
		for _, tagID := range tagIds {
			referenced[tagID] = true
		}
	}
	for id := range ret.Tags {
		if !referenced[id] {
			delete(ret.Tags, id)
		}
	}

	if delta.IsTagsDeduped {
		_ = ret.DedupTags()
		ret.IsTagsDeduped = true
	}

	return ret
}
