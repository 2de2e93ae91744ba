// Package lookup sequences cache and network access for aircraft lookups.
// The Orchestrator is the only component that touches both the cache store
// and the remote clients; tool handlers call Lookup and nothing else.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"airtrack-mcp/internal/cache"
	"airtrack-mcp/internal/record"
	"airtrack-mcp/internal/source"
)

// Result is a merged aircraft record with per-source freshness.
type Result struct {
	// Key is the canonical cache key the lookup resolved to.
	Key       string
	Record    record.Aircraft
	Freshness map[record.Source]Freshness
	Fetches   map[record.Source]record.Fetch
	// Degraded is set when the cache store is running without
	// persistence for this session.
	Degraded bool
}

// Orchestrator coordinates staleness checks, parallel remote fetches,
// reconciliation, and cache write-back.
type Orchestrator struct {
	store        *cache.Store
	clients      map[record.Source]source.Client
	policy       Policy
	fetchTimeout time.Duration
	log          *zap.SugaredLogger

	group singleflight.Group
	now   func() time.Time
}

// New returns an orchestrator over the given store and clients.
func New(store *cache.Store, clients []source.Client, policy Policy, fetchTimeout time.Duration, log *zap.SugaredLogger) *Orchestrator {
	bySource := make(map[record.Source]source.Client, len(clients))
	for _, c := range clients {
		bySource[c.Source()] = c
	}
	return &Orchestrator{
		store:        store,
		clients:      bySource,
		policy:       policy,
		fetchTimeout: fetchTimeout,
		log:          log,
		now:          time.Now,
	}
}

// Lookup resolves an identifier against the requested sources (all
// configured sources when empty). Concurrent lookups for the same
// identifier and source set share one execution. Only a malformed
// identifier or an unknown source is a hard failure; source and store
// trouble degrade to annotated cached data.
func (o *Orchestrator) Lookup(ctx context.Context, rawID string, sources []record.Source) (*Result, error) {
	id, err := record.ParseIdentifier(rawID)
	if err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		for src := range o.clients {
			sources = append(sources, src)
		}
	}
	for _, src := range sources {
		if _, ok := o.clients[src]; !ok {
			return nil, fmt.Errorf("unknown source %q", src)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = string(src)
	}
	key := id.Key() + "|" + strings.Join(names, ",")

	v, err, _ := o.group.Do(key, func() (any, error) {
		return o.lookup(ctx, id, sources)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

type fetchResult struct {
	src     record.Source
	partial record.Partial
	err     error
}

func (o *Orchestrator) lookup(ctx context.Context, id record.Identifier, sources []record.Source) (*Result, error) {
	key := id.Key()
	now := o.now()

	// fetchID carries identifier halves resolved from the cache so every
	// source can be queried. The entry stays keyed by the caller's
	// identifier: id is what Get, Put, and the re-read all derive key from,
	// so it must not change once the entry has learned the other half.
	fetchID := id
	entry, cached := o.store.Get(ctx, key)
	if cached {
		if fetchID.Tail == "" && entry.Record.Registration.Known() {
			fetchID.Tail = entry.Record.Registration.Value
		}
		if fetchID.ICAO == "" && entry.Record.ICAO != "" && entry.Record.ICAO != key {
			fetchID.ICAO = entry.Record.ICAO
		}
	}

	freshness := make(map[record.Source]Freshness, len(sources))
	var (
		mu      sync.Mutex
		results []fetchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		if !o.policy.IsStale(entry, src, now) {
			freshness[src] = servedFromCache(entry.Fetches[src])
			continue
		}
		client := o.clients[src]
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, o.fetchTimeout)
			defer cancel()
			p, err := client.Fetch(fctx, fetchID)
			mu.Lock()
			results = append(results, fetchResult{src: client.Source(), partial: p, err: err})
			mu.Unlock()
			// A failed fetch falls back to cache; it never aborts the
			// sibling fetches or the lookup.
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.err == nil:
			entry = o.store.Put(ctx, id, r.partial, o.now())
			freshness[r.src] = Fresh
		case errors.Is(r.err, source.ErrNotFound):
			notFound := record.Partial{Source: r.src, NotFound: true}
			entry = o.store.Put(ctx, id, notFound, o.now())
			freshness[r.src] = Missing
		default:
			o.log.Warnw("source fetch failed, serving cached data",
				"identifier", key, "source", r.src, "error", r.err)
			if f, ok := entry.Fetches[r.src]; ok {
				if f.Outcome == record.Missing {
					freshness[r.src] = Missing
				} else {
					freshness[r.src] = Stale
				}
			} else {
				freshness[r.src] = Unfetched
			}
		}
	}

	// Re-read so the result reflects every source's write-back.
	if final, ok := o.store.Get(ctx, key); ok {
		entry = final
	}
	if entry.Record.ICAO == "" {
		entry.Record.ICAO = id.ICAO
	}

	return &Result{
		Key:       key,
		Record:    entry.Record,
		Freshness: freshness,
		Fetches:   entry.Fetches,
		Degraded:  o.store.Degraded(),
	}, nil
}

// servedFromCache maps a within-threshold fetch outcome to its annotation.
func servedFromCache(f record.Fetch) Freshness {
	if f.Outcome == record.Missing {
		return Missing
	}
	return Fresh
}

// EvictExpired removes cache entries older than retention. Called at
// startup.
func (o *Orchestrator) EvictExpired(ctx context.Context, retention time.Duration) {
	n, err := o.store.EvictOlderThan(ctx, retention, o.now())
	if err != nil {
		o.log.Warnw("cache eviction failed", "error", err)
		return
	}
	if n > 0 {
		o.log.Infow("evicted expired cache entries", "count", n)
	}
}
