//
//  Copyright © Manetu Inc. All rights reserved.
//

package matcher

import (
	"strings"

	"github.com/manetu/tagenricher/pkg/enricher/model"
)

// valueMatcher decides whether a concrete dimension value matches the
// value(s) a service resource carries for that dimension, honoring the
// dimension's wildcard, case-sensitivity and separator options.
type valueMatcher struct {
	policyResource *model.PolicyResource
	values         []string

	wildcardEnabled bool
	ignoreCase      bool
	separator       byte
}

func newValueMatcher(def *model.ResourceDef, policyResource *model.PolicyResource) *valueMatcher {
	ret := &valueMatcher{
		policyResource:  policyResource,
		wildcardEnabled: def.OptionBool(model.OptionWildcard, true),
		ignoreCase:      def.OptionBool(model.OptionIgnoreCase, true),
		separator:       def.PathSeparator(),
	}

	for _, value := range policyResource.Values {
		ret.values = append(ret.values, ret.fold(value))
	}

	return ret
}

func (m *valueMatcher) fold(value string) string {
	if m.ignoreCase {
		return strings.ToLower(value)
	}
	return value
}

// matchesAny reports whether the matcher covers every possible value.
func (m *valueMatcher) matchesAny() bool {
	if m.policyResource.IsExcludes {
		return false
	}
	for _, value := range m.values {
		if m.wildcardEnabled && value == "*" {
			return true
		}
	}

	return false
}

// isMatch reports whether the concrete value matches under the given scope.
func (m *valueMatcher) isMatch(value string, scope model.ElementMatchingScope) bool {
	value = m.fold(value)

	matched := false
	for _, pattern := range m.values {
		if m.isValueMatch(pattern, value, scope) {
			matched = true
			break
		}
	}

	if m.policyResource.IsExcludes {
		return !matched
	}

	return matched
}

func (m *valueMatcher) isValueMatch(pattern, value string, scope model.ElementMatchingScope) bool {
	if m.wildcardEnabled {
		if wildcardMatch(pattern, value) {
			return true
		}
	} else if pattern == value {
		return true
	}

	// a recursive value covers everything beneath it on the path separator
	if m.policyResource.IsRecursive && m.separator != 0 &&
		strings.HasPrefix(value, pattern+string(m.separator)) {
		return true
	}

	// widened scopes also accept values the query is a prefix of
	if scope != model.ElementMatchingScopeSelf && strings.HasPrefix(pattern, value) {
		return true
	}

	return false
}

// wildcardMatch reports whether value matches pattern, where '*' matches any
// run of characters and '?' matches exactly one.
func wildcardMatch(pattern, value string) bool {
	p, v := 0, 0
	star, vBackup := -1, 0

	for v < len(value) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == value[v]):
			p++
			v++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			vBackup = v
			p++
		case star >= 0:
			p = star + 1
			vBackup++
			v = vBackup
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}

	return p == len(pattern)
}
