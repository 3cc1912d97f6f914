//
//  Copyright © Manetu Inc. All rights reserved.
//

package trie

import (
	"sort"

	"github.com/manetu/tagenricher/pkg/enricher/model"
)

// GetEvaluators intersects per-dimension trie lookups for a concrete
// resource: an evaluator is a candidate only if every populated dimension
// with a trie returns it. Smaller candidate sets are intersected first.
// Dimensions in the resource without a trie are not filtered on. An optional
// predicate narrows the final result.
func GetEvaluators[T Indexed](tries map[string]*Trie[T], resource map[string]interface{}, scopes map[string]model.ElementMatchingScope, predicate func(T) bool) []T {
	var perDimension [][]T

	for name, value := range resource {
		aTrie := tries[name]
		if aTrie == nil {
			continue
		}

		scope := model.ElementMatchingScopeSelf
		if scopes != nil {
			scope = scopes[name]
		}

		candidates := aTrie.GetEvaluatorsForResource(value, scope)
		if len(candidates) == 0 {
			return nil
		}
		perDimension = append(perDimension, candidates)
	}

	if len(perDimension) == 0 {
		return nil
	}

	sort.Slice(perDimension, func(i, j int) bool {
		return len(perDimension[i]) < len(perDimension[j])
	})

	ret := perDimension[0]
	for _, candidates := range perDimension[1:] {
		members := make(map[T]bool, len(candidates))
		for _, evaluator := range candidates {
			members[evaluator] = true
		}

		var intersected []T
		for _, evaluator := range ret {
			if members[evaluator] {
				intersected = append(intersected, evaluator)
			}
		}
		if ret = intersected; len(ret) == 0 {
			return nil
		}
	}

	if predicate != nil {
		var filtered []T
		for _, evaluator := range ret {
			if predicate(evaluator) {
				filtered = append(filtered, evaluator)
			}
		}
		ret = filtered
	}

	return ret
}
