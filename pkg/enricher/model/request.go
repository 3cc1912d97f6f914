//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"time"
)

// AccessTypeAny is the access type meaning "any operation"; requests with an
// empty access type are treated the same way.
const AccessTypeAny = "any"

// ContextKeyTags is the request-context key under which the enricher
// publishes matched tags for the downstream policy evaluator.
const ContextKeyTags = "TAGS"

// ContextKeyIsAnyAccess is the request-context key marking an evaluation
// that has been widened to any access type (e.g. a self-or-descendants
// sweep), regardless of the literal access type on the request.
const ContextKeyIsAnyAccess = "isAnyAccess"

// AccessRequest is an authorization request to enrich with tags.
type AccessRequest struct {
	Resource   *AccessResource
	AccessType string
	// AccessTime bounds tag validity; nil means "now".
	AccessTime *time.Time
	// Context carries enrichment results and evaluator-specific state.
	Context map[string]interface{}

	MatchingScope         ResourceMatchingScope
	ElementMatchingScopes map[string]ElementMatchingScope
}

// NewAccessRequest creates a request for the given resource and access type.
func NewAccessRequest(resource *AccessResource, accessType string) *AccessRequest {
	return &AccessRequest{
		Resource:   resource,
		AccessType: accessType,
		Context:    make(map[string]interface{}),
	}
}

// IsAccessTypeAny reports whether the request asks about any operation.
func (r *AccessRequest) IsAccessTypeAny() bool {
	return r.AccessType == "" || r.AccessType == AccessTypeAny
}

// ElementScope returns the matching scope for a dimension, defaulting to SELF.
func (r *AccessRequest) ElementScope(name string) ElementMatchingScope {
	if r.ElementMatchingScopes == nil {
		return ElementMatchingScopeSelf
	}
	return r.ElementMatchingScopes[name]
}

// SetRequestTags publishes matched tags into the request context.
func SetRequestTags(request *AccessRequest, tags []*TagForEval) {
	if request.Context == nil {
		request.Context = make(map[string]interface{})
	}
	request.Context[ContextKeyTags] = tags
}

// SetIsAnyAccessInContext marks (or unmarks) the request as an any-access
// evaluation.
func SetIsAnyAccessInContext(request *AccessRequest, isAnyAccess bool) {
	if request.Context == nil {
		request.Context = make(map[string]interface{})
	}
	request.Context[ContextKeyIsAnyAccess] = isAnyAccess
}

// GetIsAnyAccessInContext reports whether the request has been marked as an
// any-access evaluation.
func GetIsAnyAccessInContext(request *AccessRequest) bool {
	if request.Context == nil {
		return false
	}
	if isAnyAccess, ok := request.Context[ContextKeyIsAnyAccess].(bool); ok {
		return isAnyAccess
	}

	return false
}

// GetRequestTags returns the tags previously published into the request
// context, or nil.
func GetRequestTags(request *AccessRequest) []*TagForEval {
	if request.Context == nil {
		return nil
	}
	if tags, ok := request.Context[ContextKeyTags].([]*TagForEval); ok {
		return tags
	}

	return nil
}
