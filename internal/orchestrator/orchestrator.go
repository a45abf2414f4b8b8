// Package orchestrator runs the hourly acquisition loop: it polls the
// remote archive, triggers the fallback crawl when the archive goes stale,
// and settles each hour slot exactly once per source tier.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/fetch"
	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
	"github.com/TangyRyan/Weibo-project-zy/internal/source"
	"github.com/TangyRyan/Weibo-project-zy/internal/store"
)

// RemoteSource fetches the published archive for one hour slot.
type RemoteSource interface {
	FetchHourly(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error)
}

// FallbackSource reconstructs one hour slot by crawling the origin site.
type FallbackSource interface {
	CrawlHourly(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error)
}

// Committer receives every newly settled snapshot, including remote
// replacements of fallback data.
type Committer interface {
	Commit(snap *hotspot.Snapshot)
}

// Config holds the acquisition loop timings.
type Config struct {
	// PollInterval is the steady-state cadence for slots with no recent
	// activity.
	PollInterval time.Duration
	// RetryInterval is the faster cadence used while a slot near the top of
	// the hour is still unsettled.
	RetryInterval time.Duration
	// FallbackDeadline is how long past the top of the hour the remote
	// archive may stay absent before the fallback crawl fires.
	FallbackDeadline time.Duration
	// LookbackDays bounds how far back unsettled or fallback-settled slots
	// are tracked.
	LookbackDays int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Minute
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.FallbackDeadline <= 0 {
		c.FallbackDeadline = 45 * time.Minute
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 1
	}
	return c
}

// slotState tracks acquisition progress for one hour slot.
type slotState struct {
	settled           bool
	source            hotspot.Origin
	fallbackTriggered bool
	remoteFailures    int
}

// Orchestrator owns the per-slot acquisition state machine. All state is
// touched only from Run's goroutine (or from Tick in tests), so no locking
// is needed.
type Orchestrator struct {
	remote   RemoteSource
	fallback FallbackSource
	store    hotspot.Store
	cache    *hotspot.Cache
	comm     Committer
	clock    hotspot.Clock
	cfg      Config
	logger   *zap.Logger

	slots map[hotspot.Slot]*slotState
}

// New builds an Orchestrator. The committer may be nil when no push
// distribution is attached.
func New(remote RemoteSource, fallback FallbackSource, st hotspot.Store, cache *hotspot.Cache, comm Committer, clock hotspot.Clock, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		remote:   remote,
		fallback: fallback,
		store:    st,
		cache:    cache,
		comm:     comm,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		slots:    make(map[hotspot.Slot]*slotState),
	}
}

// Run drives the acquisition loop until ctx is cancelled. The first tick
// fires immediately so a restart recovers without waiting a full poll
// interval.
func (o *Orchestrator) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		o.Tick(ctx)
		timer.Reset(o.nextInterval())
	}
}

// nextInterval picks the faster retry cadence while the current slot is
// unsettled, matching the tighter loop a fresh hour deserves.
func (o *Orchestrator) nextInterval() time.Duration {
	current := hotspot.SlotOf(o.clock.Now())
	if st, ok := o.slots[current]; !ok || !st.settled {
		return o.cfg.RetryInterval
	}
	return o.cfg.PollInterval
}

// Tick performs one pass over every tracked slot: attempt the remote
// archive for anything not yet remote-settled, and fire the fallback for
// the current slot once its deadline passes. It returns the number of
// snapshots committed during this pass.
func (o *Orchestrator) Tick(ctx context.Context) int {
	now := o.clock.Now()
	o.trackWindow(now)

	committed := 0
	current := hotspot.SlotOf(now)
	for slot, st := range o.slots {
		if ctx.Err() != nil {
			return committed
		}
		if st.settled && st.source == hotspot.OriginRemote {
			continue
		}
		if o.tryRemote(ctx, slot, st) {
			committed++
			continue
		}
		if slot != current {
			// Past slots are remote-only: a late crawl of the live page
			// would capture the wrong hour's topics.
			continue
		}
		if st.settled || st.fallbackTriggered {
			continue
		}
		if now.Sub(slot.Start()) < o.cfg.FallbackDeadline {
			continue
		}
		if o.tryFallback(ctx, slot, st) {
			committed++
		}
	}
	o.prune(now)
	return committed
}

// trackWindow registers every slot inside the lookback window, from the
// start of the window through the current hour.
func (o *Orchestrator) trackWindow(now time.Time) {
	current := hotspot.SlotOf(now)
	cursor := current.Start()
	oldest := now.Add(-time.Duration(o.cfg.LookbackDays) * 24 * time.Hour)
	for !cursor.Before(oldest) {
		slot := hotspot.SlotOf(cursor)
		if _, ok := o.slots[slot]; !ok {
			o.slots[slot] = o.restore(slot)
		}
		cursor = cursor.Add(-time.Hour)
	}
}

// restore seeds a slot's state from the archive so restarts do not re-fetch
// or re-push hours that already settled.
func (o *Orchestrator) restore(slot hotspot.Slot) *slotState {
	if o.store == nil {
		return &slotState{}
	}
	snap, err := o.store.Load(context.Background(), slot.Date, slot.Hour)
	if err != nil {
		if !errors.Is(err, hotspot.ErrNotArchived) {
			o.logger.Warn("archive probe failed", zap.String("slot", slot.String()), zap.Error(err))
		}
		return &slotState{}
	}
	st := &slotState{settled: true, source: snap.Source}
	if snap.Source == hotspot.OriginFallback {
		st.fallbackTriggered = true
	}
	if o.cache != nil && slot == hotspot.SlotOf(o.clock.Now()) {
		o.cache.Set(snap)
	}
	return st
}

// tryRemote attempts the archive for one slot. A fallback-settled slot is
// still attempted: a later remote publication replaces the crawled data.
func (o *Orchestrator) tryRemote(ctx context.Context, slot hotspot.Slot, st *slotState) bool {
	snap, err := o.remote.FetchHourly(ctx, slot.Date, slot.Hour)
	if err != nil {
		var schemaErr *source.SchemaError
		switch {
		case fetch.IsNotFound(err):
			// Not published yet. Expected while the archive catches up.
			st.remoteFailures++
		case errors.As(err, &schemaErr):
			st.remoteFailures++
			o.logger.Warn("remote payload malformed", zap.String("slot", slot.String()), zap.Error(err))
		default:
			st.remoteFailures++
			o.logger.Warn("remote fetch failed", zap.String("slot", slot.String()), zap.Error(err))
		}
		return false
	}
	replacing := st.settled && st.source == hotspot.OriginFallback
	if !o.commit(ctx, slot, snap) {
		return false
	}
	st.settled = true
	st.source = hotspot.OriginRemote
	st.remoteFailures = 0
	if replacing {
		o.logger.Info("remote snapshot replaced fallback", zap.String("slot", slot.String()))
	} else {
		o.logger.Info("slot settled from remote archive", zap.String("slot", slot.String()))
	}
	return true
}

// tryFallback fires the fallback crawl for the current slot. The trigger
// flag is set before the crawl runs so a failed crawl is never retried;
// the slot simply stays pending for the remote archive.
func (o *Orchestrator) tryFallback(ctx context.Context, slot hotspot.Slot, st *slotState) bool {
	st.fallbackTriggered = true
	metrics.ObserveFallbackTrigger()
	o.logger.Info("fallback deadline passed, crawling origin site",
		zap.String("slot", slot.String()),
		zap.Int("remote_failures", st.remoteFailures))

	snap, err := o.fallback.CrawlHourly(ctx, slot.Date, slot.Hour)
	if err != nil {
		o.logger.Error("fallback crawl failed", zap.String("slot", slot.String()), zap.Error(err))
		return false
	}
	if !o.commit(ctx, slot, snap) {
		return false
	}
	st.settled = true
	st.source = hotspot.OriginFallback
	o.logger.Info("slot settled from fallback crawl", zap.String("slot", slot.String()))
	return true
}

// commit publishes a settled snapshot: memory cache first so readers see it
// immediately, then the archive, then the push distribution. An archive
// write failure is logged but does not block distribution.
func (o *Orchestrator) commit(ctx context.Context, slot hotspot.Slot, snap *hotspot.Snapshot) bool {
	if err := snap.Validate(); err != nil {
		o.logger.Error("refusing to commit invalid snapshot", zap.String("slot", slot.String()), zap.Error(err))
		return false
	}
	if o.cache != nil && slot == hotspot.SlotOf(o.clock.Now()) {
		o.cache.Set(snap)
	}
	if o.store != nil {
		if err := o.store.Persist(ctx, snap); err != nil {
			var storeErr *store.StorageError
			if errors.As(err, &storeErr) {
				o.logger.Error("archive write failed", zap.String("slot", slot.String()), zap.Error(err))
			} else {
				o.logger.Error("snapshot rejected by archive", zap.String("slot", slot.String()), zap.Error(err))
			}
		}
	}
	if o.comm != nil {
		o.comm.Commit(snap)
	}
	metrics.ObserveSettlement(string(snap.Source))
	return true
}

// prune drops slot state that has aged out of the lookback window. Remote
// publications older than the window are no longer awaited.
func (o *Orchestrator) prune(now time.Time) {
	oldest := now.Add(-time.Duration(o.cfg.LookbackDays) * 24 * time.Hour)
	for slot := range o.slots {
		start := slot.Start()
		if start.IsZero() || start.Before(oldest.Add(-time.Hour)) {
			delete(o.slots, slot)
		}
	}
}
