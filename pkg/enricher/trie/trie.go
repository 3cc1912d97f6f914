//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package trie implements the per-dimension resource index used by the tag
// enricher to pre-filter candidate matchers.
//
// A Trie maps the values a dimension can take - including wildcarded and
// recursive values - to the evaluators indexed under them. Lookups return a
// candidate superset: every evaluator whose value could stand in the queried
// relation is returned, and the caller re-verifies each candidate against
// the full resource.
//
// The value grammar (wildcards, case folding, path separator) is taken from
// the dimension's [model.ResourceDef] matcher options.
package trie

import (
	"strings"

	"github.com/manetu/tagenricher/pkg/enricher/model"
)

// Indexed is implemented by values stored in a Trie. PolicyResource reports
// the value(s) the evaluator carries for a dimension, or nil when the
// evaluator does not populate it.
type Indexed interface {
	comparable
	PolicyResource(dimension string) *model.PolicyResource
}

type node[T Indexed] struct {
	children map[rune]*node[T]

	// evaluators whose literal value ends exactly at this node
	evaluators []T
	// evaluators whose wildcard or recursive value covers this node's
	// entire subtree
	wildcardEvaluators []T
	// accumulated wildcard evaluators from the root through this node;
	// populated by WrapUpUpdate when the trie is optimized for retrieval
	inherited []T
}

func newNode[T Indexed]() *node[T] {
	return &node[T]{children: make(map[rune]*node[T])}
}

// Trie indexes evaluators under the values they carry for one dimension.
//
// A Trie is not safe for concurrent mutation; the enricher serializes
// Add/Delete/WrapUpUpdate under its write lock, and readers only ever see a
// trie after WrapUpUpdate has finalized it.
type Trie[T Indexed] struct {
	dimension string
	root      *node[T]

	wildcardEnabled bool
	ignoreCase      bool
	separator       byte

	optimizedForRetrieval bool
	optimizedForSpace     bool
}

// New builds a trie for the given dimension over a batch of evaluators.
// Evaluators that do not populate the dimension are indexed at the root and
// match any value; this keeps cross-dimension intersection sound.
func New[T Indexed](resourceDef *model.ResourceDef, evaluators []T, optimizeForRetrieval, optimizeForSpace bool) *Trie[T] {
	ret := &Trie[T]{
		dimension:             resourceDef.Name,
		root:                  newNode[T](),
		wildcardEnabled:       resourceDef.OptionBool(model.OptionWildcard, true),
		ignoreCase:            resourceDef.OptionBool(model.OptionIgnoreCase, true),
		separator:             resourceDef.PathSeparator(),
		optimizedForRetrieval: optimizeForRetrieval,
		optimizedForSpace:     optimizeForSpace,
	}

	for _, evaluator := range evaluators {
		ret.Add(evaluator.PolicyResource(ret.dimension), evaluator)
	}
	ret.WrapUpUpdate()

	return ret
}

// Dimension returns the dimension this trie indexes.
func (t *Trie[T]) Dimension() string {
	return t.dimension
}

// Copy returns a structural copy suitable for copy-on-write updates. Node
// structure is duplicated; the indexed evaluators are shared.
func (t *Trie[T]) Copy() *Trie[T] {
	clone := *t
	clone.root = t.root.copy()

	return &clone
}

func (n *node[T]) copy() *node[T] {
	ret := &node[T]{
		children:           make(map[rune]*node[T], len(n.children)),
		evaluators:         append([]T(nil), n.evaluators...),
		wildcardEvaluators: append([]T(nil), n.wildcardEvaluators...),
		inherited:          append([]T(nil), n.inherited...),
	}
	for r, child := range n.children {
		ret.children[r] = child.copy()
	}

	return ret
}

func (t *Trie[T]) fold(value string) string {
	if t.ignoreCase {
		return strings.ToLower(value)
	}
	return value
}

// literalPrefix splits a value at its first wildcard character. The second
// return is true when the value carries a wildcard tail.
func (t *Trie[T]) literalPrefix(value string) (string, bool) {
	if !t.wildcardEnabled {
		return value, false
	}
	if idx := strings.IndexAny(value, "*?"); idx >= 0 {
		return value[:idx], true
	}

	return value, false
}

func (t *Trie[T]) walkOrCreate(value string) *node[T] {
	n := t.root
	for _, r := range value {
		child := n.children[r]
		if child == nil {
			child = newNode[T]()
			n.children[r] = child
		}
		n = child
	}

	return n
}

// Add indexes evaluator under the values of policyResource. A nil or empty
// policyResource indexes the evaluator at the root, matching any value.
func (t *Trie[T]) Add(policyResource *model.PolicyResource, evaluator T) {
	if policyResource == nil || len(policyResource.Values) == 0 {
		t.root.wildcardEvaluators = append(t.root.wildcardEvaluators, evaluator)
		return
	}

	for _, value := range policyResource.Values {
		prefix, isWildcard := t.literalPrefix(t.fold(value))
		n := t.walkOrCreate(prefix)

		if isWildcard || policyResource.IsRecursive {
			n.wildcardEvaluators = append(n.wildcardEvaluators, evaluator)
		}
		if !isWildcard {
			n.evaluators = append(n.evaluators, evaluator)
		}
	}
}

// Delete removes one indexed entry for evaluator under policyResource.
// Deleting an entry that was never indexed is a no-op.
func (t *Trie[T]) Delete(policyResource *model.PolicyResource, evaluator T) {
	if policyResource == nil || len(policyResource.Values) == 0 {
		t.root.wildcardEvaluators = remove(t.root.wildcardEvaluators, evaluator)
		return
	}

	for _, value := range policyResource.Values {
		prefix, isWildcard := t.literalPrefix(t.fold(value))

		n := t.root
		for _, r := range prefix {
			if n = n.children[r]; n == nil {
				break
			}
		}
		if n == nil {
			continue
		}

		if isWildcard || policyResource.IsRecursive {
			n.wildcardEvaluators = remove(n.wildcardEvaluators, evaluator)
		}
		if !isWildcard {
			n.evaluators = remove(n.evaluators, evaluator)
		}
	}
}

func remove[T comparable](list []T, target T) []T {
	for i, e := range list {
		if e == target {
			return append(list[:i], list[i+1:]...)
		}
	}

	return list
}

// WrapUpUpdate finalizes the trie after a batch of adds and deletes: empty
// subtrees are pruned and, when the trie is optimized for retrieval, the
// per-node inherited wildcard chains are rebuilt. Must be called before the
// trie is queried again.
func (t *Trie[T]) WrapUpUpdate() {
	if t.optimizedForSpace {
		prune(t.root)
	}
	if t.optimizedForRetrieval {
		accumulate(t.root, nil)
	}
}

// prune drops child subtrees holding no evaluators. Returns whether the
// subtree rooted at n holds any.
func prune[T Indexed](n *node[T]) bool {
	for r, child := range n.children {
		if !prune(child) {
			delete(n.children, r)
		}
	}

	return len(n.children) > 0 || len(n.evaluators) > 0 || len(n.wildcardEvaluators) > 0
}

func accumulate[T Indexed](n *node[T], fromRoot []T) {
	n.inherited = append(append([]T(nil), fromRoot...), n.wildcardEvaluators...)
	for _, child := range n.children {
		accumulate(child, n.inherited)
	}
}

// GetEvaluatorsForResource returns the candidate evaluator set for a value
// under a per-dimension matching scope. The value may be a string or a list
// of strings; list values return the union of per-value candidates.
func (t *Trie[T]) GetEvaluatorsForResource(value interface{}, scope model.ElementMatchingScope) []T {
	seen := make(map[T]bool)
	var ret []T

	for _, v := range model.NormalizeValue(value) {
		for _, evaluator := range t.lookup(v, scope) {
			if !seen[evaluator] {
				seen[evaluator] = true
				ret = append(ret, evaluator)
			}
		}
	}

	return ret
}

func (t *Trie[T]) lookup(value string, scope model.ElementMatchingScope) []T {
	var ret []T

	n := t.root
	if !t.optimizedForRetrieval {
		ret = append(ret, n.wildcardEvaluators...)
	}

	complete := true
	for _, r := range t.fold(value) {
		child := n.children[r]
		if child == nil {
			complete = false
			break
		}
		n = child
		if !t.optimizedForRetrieval {
			ret = append(ret, n.wildcardEvaluators...)
		}
	}

	if t.optimizedForRetrieval {
		ret = append(ret, n.inherited...)
	}

	if complete {
		ret = append(ret, n.evaluators...)

		switch scope {
		case model.ElementMatchingScopeSelfOrPrefix:
			ret = collectSubtree(n, -1, t.separator, ret)
		case model.ElementMatchingScopeSelfOrChild:
			maxSeparators := -1
			if t.separator != 0 {
				maxSeparators = 1
			}
			ret = collectSubtree(n, maxSeparators, t.separator, ret)
		}
	}

	return ret
}

// collectSubtree gathers the evaluators indexed below n. When maxSeparators
// is non-negative, descent stops after crossing that many separator runes.
func collectSubtree[T Indexed](n *node[T], maxSeparators int, separator byte, ret []T) []T {
	for r, child := range n.children {
		remaining := maxSeparators
		if maxSeparators >= 0 && r == rune(separator) {
			if remaining = maxSeparators - 1; remaining < 0 {
				continue
			}
		}
		ret = append(ret, child.evaluators...)
		ret = append(ret, child.wildcardEvaluators...)
		ret = collectSubtree(child, remaining, separator, ret)
	}

	return ret
}
