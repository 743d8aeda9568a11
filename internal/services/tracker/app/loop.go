// Package app runs the tracker service: the periodic snapshot cycle, the
// slot pool projecting sessions onto chat messages, and the supporting
// maintenance jobs.
package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
	"github.com/louisbranch/gamewatch/internal/services/tracker/settings"
	"github.com/louisbranch/gamewatch/internal/services/tracker/storage"
	"github.com/louisbranch/gamewatch/internal/services/tracker/ztcentral"
)

// State labels the phase the cycle loop is in, for logs and traces.
type State int

// Cycle states.
const (
	StateIdle State = iota
	StateFetching
	StateValidating
	StateMerging
	StateExpiring
	StateProjecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateValidating:
		return "validating"
	case StateMerging:
		return "merging"
	case StateExpiring:
		return "expiring"
	case StateProjecting:
		return "projecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Config tunes the cycle loop. TTL and refresh interval live in the settings
// store instead because admin commands change them at runtime.
type Config struct {
	FetchTimeout    time.Duration
	EmptyRetries    int
	EmptyRetryDelay time.Duration
}

func (c Config) normalized() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = timeouts.SnapshotFetch
	}
	if c.EmptyRetries <= 0 {
		c.EmptyRetries = 3
	}
	if c.EmptyRetryDelay <= 0 {
		c.EmptyRetryDelay = 5 * time.Second
	}
	return c
}

// Loop owns the tracker cycle: fetch a snapshot, validate it, merge it into
// the registry, expire stale sessions, and project the result onto the slot
// pool. Storage writes and presence updates run concurrently with the
// projection because they touch disjoint state.
type Loop struct {
	cfg      Config
	source   Source
	sink     Sink
	pool     *Pool
	registry *domain.Registry
	settings *settings.Store
	banlist  *BanlistWatcher
	store    storage.Store
	presence PresenceUpdater
	clock    func() time.Time
	tracer   trace.Tracer

	state      State
	lastOnline int
}

// NewLoop wires a cycle loop. store and presence may be nil, which disables
// sighting persistence and presence updates respectively.
func NewLoop(cfg Config, source Source, sink Sink, settingsStore *settings.Store, banlist *BanlistWatcher, store storage.Store, presence PresenceUpdater) *Loop {
	return &Loop{
		cfg:        cfg.normalized(),
		source:     source,
		sink:       sink,
		pool:       NewPool(sink),
		registry:   domain.NewRegistry(),
		settings:   settingsStore,
		banlist:    banlist,
		store:      store,
		presence:   presence,
		clock:      time.Now,
		tracer:     otel.Tracer("gamewatch/tracker"),
		lastOnline: -1,
	}
}

// Run executes cycles until ctx is canceled. The refresh interval counts
// from the start of each cycle, so slow cycles do not drift the schedule.
func (l *Loop) Run(ctx context.Context) error {
	for {
		started := l.clock()
		l.runCycle(ctx)

		if l.state == StateDisconnected {
			if ca, ok := l.sink.(ConnectionAware); ok {
				log.Printf("sink disconnected, waiting to resume")
				if err := ca.WaitConnected(ctx); err != nil {
					return err
				}
				l.state = StateIdle
			}
		}

		wait := l.settings.Current().Refresh - l.clock().Sub(started)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) {
	ctx, span := l.tracer.Start(ctx, "tracker.cycle")
	defer span.End()

	current := l.settings.Current()

	l.state = StateFetching
	report, ok := l.fetchWithRetries(ctx)
	if !ok {
		l.state = StateIdle
		return
	}

	l.state = StateValidating
	banlist := l.banlist.Current()
	valid := make([]domain.Snapshot, 0, len(report.Games))
	for _, snapshot := range report.Games {
		if !domain.ValidPlayerNames(snapshot.Players, banlist) {
			log.Printf("dropping game %s: invalid player name", domain.NormalizeKey(snapshot.ID))
			continue
		}
		valid = append(valid, snapshot)
	}

	l.state = StateMerging
	now := l.clock()
	merged := l.registry.Merge(valid, now)

	l.state = StateExpiring
	ended := l.registry.Expire(now, current.TTL)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		l.persistSightings(ctx, valid, report.Sightings, now)
	}()
	go func() {
		defer wg.Done()
		l.persistEnded(ctx, ended)
	}()
	go func() {
		defer wg.Done()
		l.updatePresence(ctx)
	}()

	l.project(ctx, ended, current.Tables)
	wg.Wait()

	span.SetAttributes(
		attribute.Int("tracker.games", len(valid)),
		attribute.Int("tracker.added", len(merged.Added)),
		attribute.Int("tracker.updated", len(merged.Updated)),
		attribute.Int("tracker.ended", len(ended)),
	)
	if l.state == StateProjecting {
		l.state = StateIdle
	}
}

// fetchWithRetries fetches a snapshot, re-fetching an empty result a few
// times before believing it. Public games disappear together when the last
// one closes, but a transiently deaf discovery run looks identical, so an
// empty report is only trusted after the retry budget is spent.
func (l *Loop) fetchWithRetries(ctx context.Context) (SnapshotReport, bool) {
	for attempt := 0; ; attempt++ {
		report, err := l.source.Fetch(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			log.Printf("snapshot fetch timed out, skipping cycle")
			return SnapshotReport{}, false
		case errors.Is(err, context.Canceled):
			return SnapshotReport{}, false
		case errors.Is(err, ErrMalformed):
			log.Printf("snapshot fetch: %v", err)
		default:
			log.Printf("snapshot fetch: %v", err)
		}

		if len(report.Games) > 0 || len(report.Sightings) > 0 {
			return report, true
		}
		if attempt >= l.cfg.EmptyRetries {
			return report, true
		}
		select {
		case <-ctx.Done():
			return SnapshotReport{}, false
		case <-time.After(l.cfg.EmptyRetryDelay):
		}
	}
}

func (l *Loop) project(ctx context.Context, ended []*domain.Session, tables domain.Tables) {
	l.state = StateProjecting
	endedTexts := make([]string, 0, len(ended))
	for _, session := range ended {
		endedTexts = append(endedTexts, domain.Render(session, tables))
	}

	// Expiry already removed these sessions from the registry, so their
	// terminal renders must survive a suspended projection or the pool
	// would never strike them through.
	if ca, ok := l.sink.(ConnectionAware); ok && !ca.Connected() {
		l.state = StateDisconnected
		l.pool.QueueTerminal(endedTexts)
		return
	}

	live := l.registry.Live()
	liveTexts := make([]string, 0, len(live))
	for _, session := range live {
		liveTexts = append(liveTexts, domain.Render(session, tables))
	}

	l.pool.Reconcile(ctx, endedTexts, liveTexts, domain.RenderStatus(len(live)))
}

func (l *Loop) persistSightings(ctx context.Context, games []domain.Snapshot, sightings []MemberSighting, now time.Time) {
	if l.store == nil {
		return
	}
	for _, game := range games {
		key := domain.NormalizeKey(game.ID)
		for _, player := range game.Players {
			if err := l.store.SavePlayerSighting(ctx, player, key, now); err != nil {
				log.Printf("save player sighting: %v", err)
			}
		}
	}
	for _, sighting := range sightings {
		memberID := ztcentral.MemberIDFromIPv6(sighting.Address)
		if memberID == "" {
			continue
		}
		if err := l.store.SaveMemberSighting(ctx, memberID, sighting.Name, now); err != nil {
			log.Printf("save member sighting: %v", err)
		}
	}
}

func (l *Loop) persistEnded(ctx context.Context, ended []*domain.Session) {
	if l.store == nil {
		return
	}
	for _, session := range ended {
		record := storage.SessionRecord{
			Key:       session.Key,
			Kind:      session.Kind,
			Version:   session.Version,
			Players:   session.Players,
			StartedAt: session.FirstSeenAt,
			EndedAt:   *session.EndedAt,
		}
		if err := l.store.RecordSessionEnd(ctx, record); err != nil {
			log.Printf("record session end: %v", err)
		}
	}
}

func (l *Loop) updatePresence(ctx context.Context) {
	if l.presence == nil {
		return
	}
	online := l.registry.Len()
	if online == l.lastOnline {
		return
	}
	if err := l.presence.UpdatePresence(ctx, online); err != nil {
		log.Printf("update presence: %v", err)
		return
	}
	l.lastOnline = online
}
