//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package enrichpoint defines the interface for servers exposing tag
// enrichment over a network surface.
package enrichpoint

import (
	"context"
)

// Server represents a running enrichment endpoint.
type Server interface {
	// Stop gracefully shuts the server down.
	Stop(ctx context.Context) error
}
