//
//  Copyright © Manetu Inc. All rights reserved.
//

package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ValidityPeriod bounds when a tag applies. A nil StartTime means "since
// forever"; a nil EndTime means "until forever".
type ValidityPeriod struct {
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty" yaml:"endTime,omitempty"`
}

// Contains reports whether the instant falls within the period.
func (p *ValidityPeriod) Contains(at time.Time) bool {
	if p.StartTime != nil && at.Before(*p.StartTime) {
		return false
	}
	if p.EndTime != nil && at.After(*p.EndTime) {
		return false
	}

	return true
}

// Tag is an identified classification record carrying attributes and
// optional validity periods.
type Tag struct {
	ID              int64             `json:"id"`
	Type            string            `json:"type"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	ValidityPeriods []ValidityPeriod  `json:"validityPeriods,omitempty"`
}

// IsApplicable reports whether the tag applies at the given access time.
// A tag with no validity periods always applies.
func (t *Tag) IsApplicable(at time.Time) bool {
	if len(t.ValidityPeriods) == 0 {
		return true
	}

	for i := range t.ValidityPeriods {
		if t.ValidityPeriods[i].Contains(at) {
			return true
		}
	}

	return false
}

// signature returns a canonical string of the tag's content (excluding its
// id), used to collapse value-identical tags.
func (t *Tag) signature() string {
	var sb strings.Builder
	sb.WriteString(t.Type)

	keys := make([]string, 0, len(t.Attributes))
	for key := range t.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteByte(';')
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(t.Attributes[key])
	}

	for i := range t.ValidityPeriods {
		p := &t.ValidityPeriods[i]
		sb.WriteByte(';')
		if p.StartTime != nil {
			sb.WriteString(p.StartTime.UTC().Format(time.RFC3339))
		}
		sb.WriteByte('~')
		if p.EndTime != nil {
			sb.WriteString(p.EndTime.UTC().Format(time.RFC3339))
		}
	}

	return sb.String()
}

// TagForEval wraps a matched tag with the relation in which it matched, as
// handed to the downstream policy evaluator.
type TagForEval struct {
	Tag       *Tag      `json:"tag"`
	MatchType MatchType `json:"matchType"`
}

// NewTagForEval creates a TagForEval for the given tag and match relation.
func NewTagForEval(tag *Tag, matchType MatchType) *TagForEval {
	return &TagForEval{Tag: tag, MatchType: matchType}
}

// IsApplicable reports whether the wrapped tag applies at the given time.
func (t *TagForEval) IsApplicable(at time.Time) bool {
	return t.Tag.IsApplicable(at)
}

// EvalKey identifies the TagForEval within a deduplicated result set:
// distinct tag ids stay distinct even when their content is identical.
func (t *TagForEval) EvalKey() string {
	return fmt.Sprintf("%d:%s", t.Tag.ID, t.MatchType)
}
