//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/manetu/tagenricher/pkg/enricher/matcher"
	"github.com/manetu/tagenricher/pkg/enricher/model"
)

// cachedResourceEvaluators memoizes trie lookups for the self-or-ancestor
// read path: (resource cache key, element matching scopes) -> matcher set.
// The cache is cleared on every snapshot install, so entries never outlive
// the matchers they reference.
type cachedResourceEvaluators struct {
	mu    sync.RWMutex
	cache map[string]map[string][]*matcher.ServiceResourceMatcher
}

func newCachedResourceEvaluators() *cachedResourceEvaluators {
	return &cachedResourceEvaluators{
		cache: make(map[string]map[string][]*matcher.ServiceResourceMatcher),
	}
}

// scopesKey canonicalizes an element-matching-scopes map for use as a cache
// key.
func scopesKey(scopes map[string]model.ElementMatchingScope) string {
	if len(scopes) == 0 {
		return ""
	}

	keys := make([]string, 0, len(scopes))
	for key := range scopes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(int(scopes[key])))
	}

	return sb.String()
}

func (c *cachedResourceEvaluators) get(resourceKey string, scopes map[string]model.ElementMatchingScope) ([]*matcher.ServiceResourceMatcher, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byScopes, ok := c.cache[resourceKey]
	if !ok {
		return nil, false
	}
	evaluators, ok := byScopes[scopesKey(scopes)]

	return evaluators, ok
}

func (c *cachedResourceEvaluators) put(resourceKey string, scopes map[string]model.ElementMatchingScope, evaluators []*matcher.ServiceResourceMatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byScopes, ok := c.cache[resourceKey]
	if !ok {
		byScopes = make(map[string][]*matcher.ServiceResourceMatcher)
		c.cache[resourceKey] = byScopes
	}
	byScopes[scopesKey(scopes)] = evaluators
}

func (c *cachedResourceEvaluators) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]map[string][]*matcher.ServiceResourceMatcher)
}
