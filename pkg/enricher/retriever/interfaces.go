//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package retriever defines the interface for service-tags sources and a
// registry of named implementations.
//
// A retriever pulls versioned service-tags snapshots from wherever they are
// authored - the admin service, a local file, or a custom source. The
// enricher's refresher owns the retriever and is the only caller of
// [Retriever.RetrieveTags].
//
// # Built-in Retrievers
//
//   - "file": reads a service-tags JSON document from a local file
//   - "admin": polls the admin REST endpoint
//
// # Implementing a Custom Retriever
//
// Register a factory under a name and select it via the enricher's
// tagRetrieverClassName option:
//
//	retriever.Register("kafka", func() retriever.Retriever {
//	    return &kafkaRetriever{}
//	})
package retriever

import (
	"sync"

	"github.com/manetu/tagenricher/pkg/common"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/spf13/viper"
)

// Retriever pulls service-tags snapshots from an external source.
//
// The setters are invoked once, before Init; RetrieveTags is called only
// from the refresher goroutine, so implementations need not be safe for
// concurrent use.
type Retriever interface {
	// SetServiceName identifies the service whose tags are pulled.
	SetServiceName(serviceName string)

	// SetServiceDef provides the service definition.
	SetServiceDef(serviceDef *model.ServiceDef)

	// SetAppID identifies the plugin instance, for source-side bookkeeping.
	SetAppID(appID string)

	// SetPluginConfig provides the plugin configuration.
	SetPluginConfig(pluginConfig *viper.Viper)

	// SetPluginContext provides ambient plugin state shared with the host.
	SetPluginContext(pluginContext map[string]interface{})

	// Init finalizes the retriever from its enricher options.
	Init(options map[string]string) error

	// RetrieveTags returns the snapshot newer than lastKnownVersion, or nil
	// when nothing changed. Returns an error with
	// [common.ReasonServiceNotFound] when the service has been deleted
	// upstream.
	RetrieveTags(lastKnownVersion int64, lastActivationTimeMs int64) (*model.ServiceTags, error)
}

// Factory creates an uninitialized [Retriever] instance.
type Factory func() Retriever

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named retriever factory. Registration typically happens
// from an init function; re-registering a name replaces the factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New instantiates the retriever registered under name.
func New(name string) (Retriever, error) {
	registryMu.RLock()
	factory := registry[name]
	registryMu.RUnlock()

	if factory == nil {
		return nil, common.NewErrorf(common.ReasonRetrieverNotFound, "no retriever registered under %q", name)
	}

	return factory(), nil
}
