//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"sync"

	"github.com/google/uuid"
)

// DownloadTrigger is a one-shot token enqueued to wake the refresher. The
// enqueuer can block on completion; the refresher signals it once the
// triggered download attempt has finished, successfully or not.
type DownloadTrigger struct {
	id   string
	done chan struct{}
	once sync.Once
}

// NewDownloadTrigger creates a trigger with a fresh correlation id.
func NewDownloadTrigger() *DownloadTrigger {
	return &DownloadTrigger{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

// ID returns the trigger's correlation id.
func (t *DownloadTrigger) ID() string {
	return t.id
}

// WaitForCompletion blocks until the refresher has processed the trigger.
func (t *DownloadTrigger) WaitForCompletion() {
	<-t.done
}

func (t *DownloadTrigger) signalCompletion() {
	t.once.Do(func() { close(t.done) })
}
