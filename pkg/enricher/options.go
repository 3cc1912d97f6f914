//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"github.com/manetu/tagenricher/pkg/enricher/retriever"
)

// Enricher option keys, as supplied in the options map passed to [New].
const (
	// OptionTagRetrieverClassName names the registered retriever to pull
	// snapshots with. Without it the enricher serves no tags.
	OptionTagRetrieverClassName = "tagRetrieverClassName"

	// OptionRefresherPollingInterval is the poll interval in milliseconds
	// (default 60000).
	OptionRefresherPollingInterval = "tagRefresherPollingInterval"

	// OptionDisableTrieLookupPrefilter disables the per-dimension trie
	// pre-filter; every matcher is then evaluated on every request.
	OptionDisableTrieLookupPrefilter = "disableTrieLookupPrefilter"
)

// Option is a function that customizes a TagEnricher at construction.
type Option func(*TagEnricher)

// WithRetriever injects a retriever instance directly, bypassing the named
// registry lookup. Useful for embedding and for tests.
func WithRetriever(tagRetriever retriever.Retriever) Option {
	return func(e *TagEnricher) {
		e.tagRetriever = tagRetriever
	}
}

// WithAuthContextObserver registers a callback invoked - under the write
// lock - after every snapshot install, with the newly installed enriched
// snapshot (nil when the snapshot was cleared). The host plugin uses this to
// refresh its auth context.
func WithAuthContextObserver(observer func(*EnrichedServiceTags)) Option {
	return func(e *TagEnricher) {
		e.authContextObserver = observer
	}
}
