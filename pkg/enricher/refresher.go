//
//  Copyright © Manetu Inc. All rights reserved.
//

package enricher

import (
	"fmt"
	"os"
	"time"

	"github.com/manetu/tagenricher/internal/logging"
	"github.com/manetu/tagenricher/pkg/common"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/model/parsers"
	"github.com/manetu/tagenricher/pkg/enricher/retriever"
)

var refresherLogger = logging.GetLogger("tagenricher.refresher")

// tagRefresher is the background worker driving the pull loop: it blocks on
// the trigger queue, calls the retriever, maintains the local cache file,
// and hands snapshots to the enricher.
type tagRefresher struct {
	tagRetriever retriever.Retriever
	tagEnricher  *TagEnricher

	lastKnownVersion          int64
	lastActivationTimeMs      int64
	hasProvidedTagsToReceiver bool

	cacheFile string

	queue  chan *DownloadTrigger
	stopCh chan struct{}
	doneCh chan struct{}
}

func newTagRefresher(tagRetriever retriever.Retriever, tagEnricher *TagEnricher, lastKnownVersion int64, queue chan *DownloadTrigger, cacheFile string) *tagRefresher {
	return &tagRefresher{
		tagRetriever:     tagRetriever,
		tagEnricher:      tagEnricher,
		lastKnownVersion: lastKnownVersion,
		cacheFile:        cacheFile,
		queue:            queue,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

func (r *tagRefresher) start() {
	go r.run()
}

func (r *tagRefresher) run() {
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			refresherLogger.SysInfof("refresher(%s) stopping", r.tagEnricher.serviceName)
			return
		case trigger := <-r.queue:
			r.populateTags()
			if trigger != nil {
				trigger.signalCompletion()
			}
		}
	}
}

// stop shuts the refresher down and waits for the loop to exit. Triggers
// still queued are signaled so their enqueuers unblock.
func (r *tagRefresher) stop() {
	close(r.stopCh)
	<-r.doneCh

	for {
		select {
		case trigger := <-r.queue:
			trigger.signalCompletion()
		default:
			return
		}
	}
}

// populateTags runs one pull cycle. Errors other than service-not-found are
// logged and swallowed; the next trigger retries.
func (r *tagRefresher) populateTags() {
	serviceTags, err := r.tagRetriever.RetrieveTags(r.lastKnownVersion, r.lastActivationTimeMs)
	if err != nil {
		if common.IsServiceNotFound(err) {
			refresherLogger.SysErrorf("service %s not found upstream: %v", r.tagEnricher.serviceName, err)

			if r.tagEnricher.disableCacheIfServiceNotFound {
				r.disableCache()
				r.tagEnricher.SetServiceTags(nil)
				r.lastKnownVersion = -1
				r.lastActivationTimeMs = time.Now().UnixMilli()
			}
		} else {
			refresherLogger.SysErrorf("refresher(%s) encountered unexpected error, ignoring: %v", r.tagEnricher.serviceName, err)
		}
		return
	}

	if serviceTags == nil {
		if !r.hasProvidedTagsToReceiver {
			serviceTags = r.loadFromCache()
		}
	} else if !serviceTags.IsDelta {
		r.saveToCache(serviceTags)
	}

	if serviceTags == nil {
		refresherLogger.SysDebugf("refresher(%s): no need to update tags, lastKnownVersion=%d", r.tagEnricher.serviceName, r.lastKnownVersion)
		return
	}

	wasDelta := serviceTags.IsDelta

	r.tagEnricher.SetServiceTags(serviceTags)

	if wasDelta && serviceTags.TagVersion != -1 {
		// persist the merged payload so a restart resumes from the delta
		if enriched := r.tagEnricher.GetEnrichedServiceTags(); enriched != nil {
			r.saveToCache(enriched.ServiceTags())
		}
	}

	refresherLogger.SysInfof("refresher(%s): updated tags, lastKnownVersion=%d newVersion=%d", r.tagEnricher.serviceName, r.lastKnownVersion, serviceTags.TagVersion)

	r.hasProvidedTagsToReceiver = true
	r.lastKnownVersion = serviceTags.TagVersion
	r.lastActivationTimeMs = time.Now().UnixMilli()
}

// loadFromCache reads the persisted snapshot, tolerating a missing or
// unparsable file. A cache file written for a differently named service is
// adopted with a warning rather than rejected.
func (r *tagRefresher) loadFromCache() *model.ServiceTags {
	if r.cacheFile == "" {
		return nil
	}

	serviceTags, err := parsers.ParseServiceTagsFile(r.cacheFile)
	if err != nil {
		refresherLogger.SysWarnf("failed to load service-tags from cache file %s: %v", r.cacheFile, err)
		return nil
	}

	if serviceTags.ServiceName != r.tagEnricher.serviceName {
		refresherLogger.SysWarnf("ignoring unexpected serviceName %q in cache file %s", serviceTags.ServiceName, r.cacheFile)
		serviceTags.ServiceName = r.tagEnricher.serviceName
	}

	return serviceTags
}

func (r *tagRefresher) saveToCache(serviceTags *model.ServiceTags) {
	if serviceTags == nil {
		refresherLogger.SysInfof("service-tags is null for service %s, nothing to save in cache", r.tagEnricher.serviceName)
		return
	}
	if r.cacheFile == "" {
		return
	}

	file, err := os.Create(r.cacheFile)
	if err != nil {
		refresherLogger.SysErrorf("failed to create cache file %s: %v", r.cacheFile, err)
		return
	}
	defer func() { _ = file.Close() }()

	if err := parsers.WriteServiceTags(file, serviceTags); err != nil {
		refresherLogger.SysErrorf("failed to save service-tags to cache file %s: %v", r.cacheFile, err)
	}
}

// disableCache renames the cache file out of the way so a stale snapshot of
// a deleted service cannot be resurrected on restart.
func (r *tagRefresher) disableCache() {
	if r.cacheFile == "" {
		return
	}

	if _, err := os.Stat(r.cacheFile); err != nil {
		refresherLogger.SysDebugf("no local tags cache found, no need to disable it")
		return
	}

	renamed := fmt.Sprintf("%s_%d", r.cacheFile, time.Now().UnixMilli())
	if err := os.Rename(r.cacheFile, renamed); err != nil {
		refresherLogger.SysErrorf("failed to move %s to %s: %v", r.cacheFile, renamed, err)
	} else {
		refresherLogger.SysWarnf("moved %s to %s", r.cacheFile, renamed)
	}
}
