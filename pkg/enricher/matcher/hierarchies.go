//
//  Copyright © Manetu Inc. All rights reserved.
//

package matcher

import (
	"github.com/manetu/tagenricher/pkg/enricher/model"
)

// ResourceHierarchies memoizes hierarchy-validity answers for dimension key
// sets within one snapshot build. With a large number of tagged resources
// the cardinality of distinct key sets is far smaller than the number of
// resources, so the memo caps matcher-construction cost. The memo is shared
// across resources within one build and discarded afterward.
type ResourceHierarchies struct {
	valid map[model.PolicyType]map[string]bool
}

// NewResourceHierarchies creates an empty memo.
func NewResourceHierarchies() *ResourceHierarchies {
	return &ResourceHierarchies{valid: make(map[model.PolicyType]map[string]bool)}
}

// IsValid returns the memoized answer for (policyType, keys). The second
// return reports whether an answer has been recorded.
func (h *ResourceHierarchies) IsValid(policyType model.PolicyType, keys []string) (bool, bool) {
	byKeys, ok := h.valid[policyType]
	if !ok {
		return false, false
	}
	valid, known := byKeys[model.KeySetSignature(keys)]

	return valid, known
}

// Add records the answer for (policyType, keys).
func (h *ResourceHierarchies) Add(policyType model.PolicyType, keys []string, valid bool) {
	byKeys, ok := h.valid[policyType]
	if !ok {
		byKeys = make(map[string]bool)
		h.valid[policyType] = byKeys
	}
	byKeys[model.KeySetSignature(keys)] = valid
}
