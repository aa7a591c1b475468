/*
scheduler.go - Background billing-run scheduler

PURPOSE:
  Periodically scans active contracts and materializes the cycles due
  inside the dashboard window, so GET /api/dashboard/upcoming reads a
  warm snapshot instead of walking every contract per request.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Refreshes a per-tenant snapshot of upcoming due cycles
  - Dashboard reads fall back to on-demand computation when the
    snapshot is cold or was built for a different window

CONFIGURATION:
  - CheckInterval: How often to refresh (default: 1 hour)
  - WindowDays: Due-date horizon of the snapshot
  - Enabled: Whether the scheduler is active

USAGE:
  scheduler := NewBillingScheduler(store, handler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ComputeUpcoming (shared scan) and the Upcoming handler
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/contract-engine/store/sqlite"
)

// BillingScheduler keeps the upcoming-due dashboard snapshot warm.
type BillingScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	Log           zerolog.Logger
	CheckInterval time.Duration
	WindowDays    int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	cacheMu    sync.RWMutex
	cache      map[string][]UpcomingDueDTO
	cachedAt   time.Time
	cachedDays int
}

// NewBillingScheduler creates a scheduler with default settings.
func NewBillingScheduler(store *sqlite.Store, handler *Handler, log zerolog.Logger) *BillingScheduler {
	return &BillingScheduler{
		Store:         store,
		Handler:       handler,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		WindowDays:    handler.UpcomingWindowDays,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (bs *BillingScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.Log.Info().Msg("billing scheduler disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)
	go bs.run()

	bs.Log.Info().Dur("interval", bs.CheckInterval).Int("window_days", bs.WindowDays).Msg("billing scheduler started")
}

// Stop stops the scheduler and waits for the current run to finish.
func (bs *BillingScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		bs.Log.Info().Msg("billing scheduler stopped")
	}
}

func (bs *BillingScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start
	bs.refresh()

	for {
		select {
		case <-bs.ticker.C:
			bs.refresh()
		case <-bs.stop:
			return
		}
	}
}

// RunNow triggers an immediate refresh (for testing/admin).
func (bs *BillingScheduler) RunNow() {
	bs.refresh()
}

// refresh rebuilds the per-tenant snapshot.
func (bs *BillingScheduler) refresh() {
	ctx := context.Background()
	started := time.Now()

	tenants, err := bs.Store.ListTenants(ctx)
	if err != nil {
		bs.Log.Error().Err(err).Msg("billing scheduler: failed to list tenants")
		return
	}

	snapshot := make(map[string][]UpcomingDueDTO, len(tenants))
	total := 0
	for _, tenant := range tenants {
		rows, err := bs.Handler.ComputeUpcoming(ctx, tenant, bs.WindowDays)
		if err != nil {
			bs.Log.Error().Err(err).Str("tenant", tenant).Msg("billing scheduler: failed to compute upcoming dues")
			continue
		}
		snapshot[tenant] = rows
		total += len(rows)
	}

	bs.cacheMu.Lock()
	bs.cache = snapshot
	bs.cachedAt = time.Now()
	bs.cachedDays = bs.WindowDays
	bs.cacheMu.Unlock()

	bs.Log.Info().
		Int("tenants", len(snapshot)).
		Int("cycles", total).
		Dur("took", time.Since(started)).
		Msg("billing scheduler: snapshot refreshed")
}

// Cached returns the tenant's snapshot when it matches the requested
// window and is younger than two check intervals.
func (bs *BillingScheduler) Cached(tenant string, days int) ([]UpcomingDueDTO, bool) {
	bs.cacheMu.RLock()
	defer bs.cacheMu.RUnlock()

	if bs.cache == nil || days != bs.cachedDays {
		return nil, false
	}
	if time.Since(bs.cachedAt) > 2*bs.CheckInterval {
		return nil, false
	}
	rows, ok := bs.cache[tenant]
	return rows, ok
}
