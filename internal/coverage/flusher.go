package coverage

import (
	"context"
	"log"
	"sync"
	"time"
)

// Persister is an interface for types that can persist their state.
// CoverageManager implements this interface.
type Persister interface {
	Persist(store SnapshotStore, reason string) error
}

// ChangeCounter reports how many cells changed since the last snapshot.
// Optional on the Persister; used to skip snapshots of an idle grid.
type ChangeCounter interface {
	ChangesSinceSnapshot() int
}

// SnapshotFlusher periodically flushes a CoverageManager to the database.
// It provides context-aware lifecycle management for snapshot persistence,
// skipping ticks where fewer cells changed than the configured threshold.
type SnapshotFlusher struct {
	manager   Persister
	store     SnapshotStore
	interval  time.Duration
	changeMin int
	reason    string
	logger    *log.Logger
	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// SnapshotFlusherConfig contains configuration for SnapshotFlusher.
type SnapshotFlusherConfig struct {
	// Manager is the Persister to flush (typically a CoverageManager)
	Manager Persister
	// Store is the database store for persistence
	Store SnapshotStore
	// Interval is how often to flush (e.g., 5*time.Minute)
	Interval time.Duration
	// ChangeThreshold is the minimum changed cells before a periodic flush
	// fires; the final flush on shutdown ignores it
	ChangeThreshold int
	// Reason is the reason string to use for flushes (e.g., "periodic_flush")
	Reason string
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// NewSnapshotFlusher creates a new SnapshotFlusher.
func NewSnapshotFlusher(cfg SnapshotFlusherConfig) *SnapshotFlusher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	reason := cfg.Reason
	if reason == "" {
		reason = "periodic_flush"
	}
	return &SnapshotFlusher{
		manager:   cfg.Manager,
		store:     cfg.Store,
		interval:  cfg.Interval,
		changeMin: cfg.ChangeThreshold,
		reason:    reason,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run starts the periodic flushing loop. It blocks until the context is
// cancelled or Stop() is called. Returns nil on clean shutdown.
func (f *SnapshotFlusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil // already running
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		f.logger.Printf("SnapshotFlusher: interval is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Printf("SnapshotFlusher started: interval=%v changeThreshold=%d", f.interval, f.changeMin)

	for {
		select {
		case <-ctx.Done():
			f.logger.Printf("SnapshotFlusher stopping due to context cancellation")
			f.flushFinal()
			return nil
		case <-f.stopCh:
			f.logger.Printf("SnapshotFlusher stopping due to Stop() call")
			f.flushFinal()
			return nil
		case <-ticker.C:
			f.flush()
		}
	}
}

// Stop requests the flusher to stop. It is safe to call multiple times.
func (f *SnapshotFlusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
		// already closed
	default:
		close(f.stopCh)
	}
	f.mu.Unlock()

	// Wait for completion
	<-f.doneCh
}

// IsRunning returns whether the flusher is currently running.
func (f *SnapshotFlusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// flush performs a single flush operation, skipped when too little changed.
func (f *SnapshotFlusher) flush() {
	if f.manager == nil || f.store == nil {
		return
	}
	if cc, ok := f.manager.(ChangeCounter); ok && cc.ChangesSinceSnapshot() < f.changeMin {
		return
	}
	if err := f.manager.Persist(f.store, f.reason); err != nil {
		f.logger.Printf("SnapshotFlusher: error flushing: %v", err)
	} else {
		f.logger.Printf("SnapshotFlusher: coverage snapshot flushed to database")
	}
}

// flushFinal performs a final flush before shutdown, regardless of how few
// cells changed.
func (f *SnapshotFlusher) flushFinal() {
	if f.manager == nil || f.store == nil {
		return
	}
	if err := f.manager.Persist(f.store, "final_flush"); err != nil {
		f.logger.Printf("SnapshotFlusher: error during final flush: %v", err)
	} else {
		f.logger.Printf("SnapshotFlusher: final coverage snapshot flushed to database")
	}
}

// FlushNow triggers an immediate flush outside the regular interval,
// bypassing the change threshold.
func (f *SnapshotFlusher) FlushNow() {
	if f.manager == nil || f.store == nil {
		return
	}
	if err := f.manager.Persist(f.store, "manual"); err != nil {
		f.logger.Printf("SnapshotFlusher: error flushing: %v", err)
	}
}
