package lease

import (
	"context"
	"log"
	"sync"
	"time"
)

// StaleCloser closes sessions that stopped receiving accounting updates;
// the session manager implements it.
type StaleCloser interface {
	CloseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Reaper periodically reclaims dynamic leases (and closes their sessions)
// that have seen no interim update for the threshold. This covers the BRAS
// losing a session without ever sending Accounting-Stop.
type Reaper struct {
	alloc     *Allocator
	sessions  StaleCloser
	threshold time.Duration
	interval  time.Duration

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewReaper(alloc *Allocator, sessions StaleCloser, threshold, interval time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{
		alloc:     alloc,
		sessions:  sessions,
		threshold: threshold,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background reap loop
func (r *Reaper) Start() {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()

	log.Printf("Reaper started (threshold: %v, interval: %v)", r.threshold, r.interval)
}

// Stop stops the reap loop and waits for the current pass to finish
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	log.Println("Reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reap()
		case <-r.stopChan:
			return
		}
	}
}

func (r *Reaper) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	closed, err := r.sessions.CloseStale(ctx, r.threshold)
	if err != nil {
		log.Printf("Reaper: failed to close stale sessions: %v", err)
	}

	reclaimed, err := r.alloc.ReapStale(ctx, r.threshold)
	if err != nil {
		log.Printf("Reaper: failed to reclaim stale leases: %v", err)
		return
	}

	if closed > 0 || reclaimed > 0 {
		log.Printf("Reaper: closed %d stale sessions, reclaimed %d leases", closed, reclaimed)
	}
}
