//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package enricher implements the tag-context enricher of a policy-based
// authorization plugin: for each authorization request it attaches the set
// of tags that apply to the accessed resource, so a downstream policy
// evaluator can run tag-scoped rules.
//
// A central service publishes versioned snapshots of (resource, tags)
// mappings. The enricher pulls these snapshots through a [retriever],
// indexes them into per-dimension tries for fast lookup, and serves
// enrichment queries from memory while a background refresher keeps the
// snapshot current.
//
// # Quick Start
//
//	e, err := enricher.New("dev_hive", "hiveServer2", serviceDef, map[string]string{
//	    enricher.OptionTagRetrieverClassName: "admin",
//	    retriever.OptionAdminURL:             "https://admin.example.com",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := e.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.PreCleanup()
//
// Enrich a request:
//
//	request := model.NewAccessRequest(resource, "select")
//	e.Enrich(request)
//	tags := model.GetRequestTags(request)
//
// # Configuration
//
// Behavior toggles (string interning, cache directory, delta handling) come
// from the plugin configuration; see the [config] package. The enricher
// options map selects the retriever and polling interval; see the Option*
// constants.
package enricher

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/manetu/tagenricher/internal/logging"
	"github.com/manetu/tagenricher/pkg/enricher/config"
	"github.com/manetu/tagenricher/pkg/enricher/matcher"
	"github.com/manetu/tagenricher/pkg/enricher/model"
	"github.com/manetu/tagenricher/pkg/enricher/retriever"
	"github.com/manetu/tagenricher/pkg/enricher/trie"
	"github.com/pkg/errors"
)

var logger = logging.GetLogger("tagenricher")

const defaultPollingInterval = 60 * time.Second

// TagEnricher is the public entry point of the tag-context enricher. It owns
// the current enriched snapshot, serves [TagEnricher.Enrich] under the read
// lock, and installs new snapshots under the write lock.
//
// A TagEnricher is safe for concurrent use once [TagEnricher.Init] returns.
type TagEnricher struct {
	serviceName string
	appID       string
	serviceDef  *model.ServiceDef
	defHelper   *model.ServiceDefHelper
	options     map[string]string

	pollingInterval            time.Duration
	disableTrieLookupPrefilter bool

	dedupStrings                  bool
	disableCacheIfServiceNotFound bool

	lock  *readWriteLock
	cache *cachedResourceEvaluators

	enriched atomic.Pointer[EnrichedServiceTags]

	tagRetriever        retriever.Retriever
	refresher           *tagRefresher
	downloadQueue       chan *DownloadTrigger
	timerStop           chan struct{}
	authContextObserver func(*EnrichedServiceTags)
}

// New creates a TagEnricher for one service. The options map selects the
// retriever and polling interval (see the Option* constants); behavior
// toggles come from the plugin configuration. Call [TagEnricher.Init] to
// start serving.
func New(serviceName, appID string, serviceDef *model.ServiceDef, options map[string]string, opts ...Option) (*TagEnricher, error) {
	if err := config.Load(); err != nil {
		return nil, errors.Wrap(err, "error loading config")
	}
	if serviceDef == nil {
		return nil, errors.New("service definition is required")
	}

	if options == nil {
		options = map[string]string{}
	}

	ret := &TagEnricher{
		serviceName:     serviceName,
		appID:           appID,
		serviceDef:      serviceDef,
		defHelper:       model.NewServiceDefHelper(serviceDef),
		options:         options,
		pollingInterval: defaultPollingInterval,
		cache:           newCachedResourceEvaluators(),
		downloadQueue:   make(chan *DownloadTrigger, 16),
		timerStop:       make(chan struct{}),
	}

	if v := options[OptionRefresherPollingInterval]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", OptionRefresherPollingInterval)
		}
		ret.pollingInterval = time.Duration(ms) * time.Millisecond
	}
	ret.disableTrieLookupPrefilter = strings.EqualFold(options[OptionDisableTrieLookupPrefilter], "true")

	ret.dedupStrings = config.VConfig.GetBool(config.DedupStrings)
	ret.disableCacheIfServiceNotFound = config.VConfig.GetBool(config.DisableCacheIfServiceNotFound)

	for _, o := range opts {
		o(ret)
	}

	return ret, nil
}

// Init instantiates the retriever, performs the initial synchronous
// populate, and starts the refresher and its periodic trigger timer.
//
// A missing or misconfigured retriever is logged and leaves the enricher
// running without a refresher; Enrich then attaches no tags.
func (e *TagEnricher) Init() error {
	e.lock = e.createLock()

	if e.tagRetriever == nil {
		retrieverName := e.options[OptionTagRetrieverClassName]
		if retrieverName == "" {
			logger.SysErrorf("no value specified for %s in the enricher options", OptionTagRetrieverClassName)
			return nil
		}

		tagRetriever, err := retriever.New(retrieverName)
		if err != nil {
			logger.SysErrorf("retriever %q could not be instantiated: %v", retrieverName, err)
			return nil
		}
		e.tagRetriever = tagRetriever
	}

	e.tagRetriever.SetServiceName(e.serviceName)
	e.tagRetriever.SetServiceDef(e.serviceDef)
	e.tagRetriever.SetAppID(e.appID)
	e.tagRetriever.SetPluginConfig(config.VConfig)
	e.tagRetriever.SetPluginContext(map[string]interface{}{})

	if err := e.tagRetriever.Init(e.options); err != nil {
		logger.SysErrorf("retriever initialization failed: %v", err)
		e.tagRetriever = nil
		return nil
	}

	e.refresher = newTagRefresher(e.tagRetriever, e, -1, e.downloadQueue, e.cacheFilePath())
	logger.SysInfof("created tag refresher for service %s", e.serviceName)

	// initial populate, so the first request sees a populated snapshot
	e.refresher.populateTags()

	e.refresher.start()
	e.startDownloadTimer()

	return nil
}

// cacheFilePath derives the cache file location from the configured cache
// directory. Path separators in the name are flattened to keep the file
// directly under the cache directory.
func (e *TagEnricher) cacheFilePath() string {
	cacheDir := config.VConfig.GetString(config.PolicyCacheDir)
	if cacheDir == "" {
		return ""
	}

	name := fmt.Sprintf("%s_%s_tag.json", e.appID, e.serviceName)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, string(os.PathListSeparator), "_")

	return filepath.Join(cacheDir, name)
}

func (e *TagEnricher) createLock() *readWriteLock {
	deltasEnabled := config.VConfig.GetBool(config.TagDeltaEnabled)
	inPlaceUpdatesEnabled := config.VConfig.GetBool(config.InPlaceTagUpdateEnabled)
	useReadWriteLock := deltasEnabled && inPlaceUpdatesEnabled

	if useReadWriteLock {
		logger.SysInfof("enricher will use read-write locking to update tags in place when tag-deltas are provided")
	} else {
		logger.SysInfof("enricher will not use read-write locking to update tags in place when tag-deltas are provided")
	}

	return newReadWriteLock(useReadWriteLock)
}

func (e *TagEnricher) startDownloadTimer() {
	go func() {
		ticker := time.NewTicker(e.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-e.timerStop:
				return
			case <-ticker.C:
				select {
				case e.downloadQueue <- NewDownloadTrigger():
				default:
					// refresher is behind; this tick is redundant anyway
				}
			}
		}
	}()
}

// Enrich computes the tags matching the request's resource and attaches
// them to the request context under [model.ContextKeyTags]. It never fails;
// an empty or unmatched resource yields no tags.
func (e *TagEnricher) Enrich(request *model.AccessRequest) {
	e.EnrichWithDataStore(request, nil)
}

// EnrichWithDataStore behaves like [TagEnricher.Enrich] but evaluates
// against the provided enriched snapshot instead of the enricher's current
// one, when dataStore is a *EnrichedServiceTags. Any other non-nil dataStore
// is ignored with a warning.
func (e *TagEnricher) EnrichWithDataStore(request *model.AccessRequest, dataStore interface{}) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	enriched, ok := dataStore.(*EnrichedServiceTags)
	if !ok {
		if dataStore != nil {
			logger.SysWarnf("incorrect type of dataStore %T, falling back to current snapshot", dataStore)
		}
		enriched = e.enriched.Load()
	}

	matchedTags := e.findMatchingTags(request, enriched)

	model.SetRequestTags(request, matchedTags)
}

// SetServiceTags replaces or updates the enriched snapshot from a full or
// delta service-tags payload. A nil payload clears the snapshot.
func (e *TagEnricher) SetServiceTags(serviceTags *model.ServiceTags) {
	e.setServiceTags(serviceTags, false)
}

func (e *TagEnricher) setServiceTags(serviceTags *model.ServiceTags, rebuildOnlyIndex bool) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if serviceTags == nil {
		logger.SysInfof("service-tags is null for service %s", e.serviceName)
		e.enriched.Store(nil)
	} else {
		if e.dedupStrings {
			serviceTags.DedupStrings()
		}

		if !serviceTags.IsDelta {
			if serviceTags.IsTagsDeduped {
				removed := serviceTags.DedupTags()
				logger.SysInfof("removed %d duplicate tags from the received service-tags; %d tags remain", removed, len(serviceTags.Tags))
			}
			e.processServiceTags(serviceTags)
		} else {
			e.processDelta(serviceTags, rebuildOnlyIndex)
		}
	}

	e.notifyAuthContextObserver()
	e.cache.clear()
}

func (e *TagEnricher) notifyAuthContextObserver() {
	if e.authContextObserver != nil {
		e.authContextObserver(e.enriched.Load())
	}
}

// GetServiceTagsVersion returns the current snapshot's tag version, or -1.
func (e *TagEnricher) GetServiceTagsVersion() int64 {
	if enriched := e.enriched.Load(); enriched != nil {
		return enriched.ServiceTags().TagVersion
	}
	return -1
}

// GetResourceTrieVersion returns the tag version of the payload the current
// enriched snapshot was built from, or -1.
func (e *TagEnricher) GetResourceTrieVersion() int64 {
	if enriched := e.enriched.Load(); enriched != nil {
		return enriched.ResourceTrieVersion()
	}
	return -1
}

// GetEnrichedServiceTags returns the current enriched snapshot, or nil.
func (e *TagEnricher) GetEnrichedServiceTags() *EnrichedServiceTags {
	return e.enriched.Load()
}

// ServiceName returns the service this enricher serves.
func (e *TagEnricher) ServiceName() string {
	return e.serviceName
}

// SyncTagsWithAdmin enqueues a download trigger and blocks until the
// refresher has processed it.
func (e *TagEnricher) SyncTagsWithAdmin(trigger *DownloadTrigger) error {
	if e.refresher == nil {
		return errors.New("enricher has no refresher")
	}

	e.downloadQueue <- trigger
	trigger.WaitForCompletion()

	return nil
}

// PreCleanup cancels the periodic trigger timer and stops the refresher,
// waiting for it to exit. Pending triggers are signaled so no caller stays
// blocked.
func (e *TagEnricher) PreCleanup() {
	select {
	case <-e.timerStop:
		// already stopped
	default:
		close(e.timerStop)
	}

	refresher := e.refresher
	e.refresher = nil

	if refresher != nil {
		refresher.stop()
	}
}

// findMatchingTags implements the read path: pre-filter candidates through
// the tries, compute each candidate's match type, classify, and resolve the
// matched resources' tags.
func (e *TagEnricher) findMatchingTags(request *model.AccessRequest, enriched *EnrichedServiceTags) []*model.TagForEval {
	if enriched == nil {
		return nil
	}

	resource := request.Resource

	if (resource == nil || resource.IsEmpty()) && request.IsAccessTypeAny() {
		return enriched.TagsForEmptyResourceAndAnyAccess()
	}

	accessTime := time.Now()
	if request.AccessTime != nil {
		accessTime = *request.AccessTime
	}

	var ret []*model.TagForEval
	seen := make(map[string]bool)

	for _, resourceMatcher := range e.getEvaluators(request, enriched) {
		matchType := resourceMatcher.MatchType(resource, request.ElementMatchingScopes)

		var isMatched bool
		if request.IsAccessTypeAny() || request.MatchingScope == model.ResourceMatchingScopeSelfOrDescendants {
			isMatched = matchType != model.MatchTypeNone
		} else {
			isMatched = matchType == model.MatchTypeSelf ||
				matchType == model.MatchTypeSelfAndAllDescendants ||
				matchType == model.MatchTypeAncestor
		}
		if !isMatched {
			continue
		}

		for _, tagForEval := range tagsForServiceResource(accessTime, enriched.ServiceTags(), resourceMatcher.ServiceResource(), matchType) {
			if key := tagForEval.EvalKey(); !seen[key] {
				seen[key] = true
				ret = append(ret, tagForEval)
			}
		}
	}

	if logger.IsDebugEnabled() {
		logger.SysDebugf("findMatchingTags(%s): %d tags found", resource, len(ret))
	}

	return ret
}

func tagsForServiceResource(accessTime time.Time, serviceTags *model.ServiceTags, serviceResource *model.ServiceResource, matchType model.MatchType) []*model.TagForEval {
	var ret []*model.TagForEval

	for _, tagID := range serviceTags.ResourceToTagIds[serviceResource.ID] {
		tag := serviceTags.Tags[tagID]
		if tag == nil {
			continue
		}

		tagForEval := model.NewTagForEval(tag, matchType)
		if tagForEval.IsApplicable(accessTime) {
			ret = append(ret, tagForEval)
		}
	}

	return ret
}

// getEvaluators returns the candidate matcher set for the request's
// resource. With the self-or-ancestor predicate in play, results are
// memoized in the evaluator cache until the next snapshot install.
func (e *TagEnricher) getEvaluators(request *model.AccessRequest, enriched *EnrichedServiceTags) []*matcher.ServiceResourceMatcher {
	resource := request.Resource
	tries := enriched.ServiceResourceTrie()

	if resource == nil || resource.IsEmpty() || tries == nil {
		return enriched.ServiceResourceMatchers()
	}

	var predicate func(*matcher.ServiceResourceMatcher) bool

	if e.excludeDescendantMatches(request) {
		leafDef := e.defHelper.ResourceDef(e.defHelper.LeafNameOf(resource))
		if leafDef != nil {
			predicate = func(m *matcher.ServiceResourceMatcher) bool {
				return m.IsLeaf(leafDef.Name) || m.IsAncestorOf(leafDef)
			}
		}
	}

	if predicate != nil {
		if cached, ok := e.cache.get(resource.CacheKey(), request.ElementMatchingScopes); ok {
			return cached
		}
	}

	ret := trie.GetEvaluators(tries, resource.AsMap(), request.ElementMatchingScopes, predicate)

	if predicate != nil {
		e.cache.put(resource.CacheKey(), request.ElementMatchingScopes, ret)
	}

	return ret
}

// excludeDescendantMatches reports whether the read path may narrow to
// self-or-ancestor matches. It does so for a concrete (non-any) access whose
// resource has a leaf, when the resource's keys lie on more than one access
// hierarchy or its leaf is not the leaf of its only hierarchy.
func (e *TagEnricher) excludeDescendantMatches(request *model.AccessRequest) bool {
	if request.IsAccessTypeAny() || model.GetIsAnyAccessInContext(request) {
		return false
	}

	resource := request.Resource
	leafName := e.defHelper.LeafNameOf(resource)
	if leafName == "" {
		return false
	}

	hierarchies := e.defHelper.HierarchiesForKeys(model.PolicyTypeAccess, resource.Keys())
	if len(hierarchies) == 1 {
		return e.defHelper.LeafOf(hierarchies[0]).Name != leafName
	}

	return true
}
