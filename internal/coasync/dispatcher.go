package coasync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ispkit/sessiond/internal/vendors"
)

// Sender delivers one CoA request to a NAS and waits for the answer.
type Sender interface {
	Send(ctx context.Context, nasIP string, kind vendors.CoAKind, username, sessionID string, params vendors.CoAParams) error
}

// Job is one service flip queued for a NAS.
type Job struct {
	NasIPAddress string
	Kind         vendors.CoAKind
	Username     string
	SessionID    string
	Params       vendors.CoAParams
}

// Dispatcher serializes CoA traffic to the BRAS fleet: one bounded FIFO
// queue, fixed pacing between requests so a batch disable of thousands of
// subscribers cannot flood a NAS. Enqueue blocks when the queue is full,
// pushing backpressure onto the producer.
type Dispatcher struct {
	sender   Sender
	queue    chan Job
	interval time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func NewDispatcher(sender Sender, queueSize int, interval, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan Job, queueSize),
		// Created once here and only ever closed: Enqueue may read it
		// concurrently with Start and Stop.
		stopChan: make(chan struct{}),
		interval: interval,
		timeout:  timeout,
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		log.Println("CoA: dispatcher already running")
		return
	}
	select {
	case <-d.stopChan:
		log.Println("CoA: dispatcher is stopped and cannot be restarted")
		return
	default:
	}

	d.isRunning = true

	d.wg.Add(1)
	go d.run()

	log.Printf("CoA: dispatcher started (queue=%d, interval=%v)", cap(d.queue), d.interval)
}

// Stop halts the dispatch loop. Queued jobs not yet sent are dropped and
// the dispatcher is finished: it cannot be started again.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}

	close(d.stopChan)
	d.wg.Wait()
	d.isRunning = false

	log.Println("CoA: dispatcher stopped")
}

// Enqueue queues a job, blocking while the queue is full.
func (d *Dispatcher) Enqueue(job Job) {
	select {
	case d.queue <- job:
	case <-d.stopChan:
		log.Printf("CoA: dispatcher stopping, dropped %s for session %s", job.Kind, job.SessionID)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			return
		case job := <-d.queue:
			d.dispatch(job)
			// Fixed spacing between requests regardless of outcome.
			select {
			case <-d.stopChan:
				return
			case <-time.After(d.interval):
			}
		}
	}
}

func (d *Dispatcher) dispatch(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.sender.Send(ctx, job.NasIPAddress, job.Kind, job.Username, job.SessionID, job.Params)
	if err != nil {
		log.Printf("CoA: %s for session %s on %s failed: %v", job.Kind, job.SessionID, job.NasIPAddress, err)
		return
	}
	log.Printf("CoA: %s applied to session %s on %s", job.Kind, job.SessionID, job.NasIPAddress)
}
