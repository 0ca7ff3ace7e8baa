package coasync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/sessiond/internal/directory"
	"github.com/ispkit/sessiond/internal/events"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/vendors"
)

func accessSnapshot() *directory.Snapshot {
	return &directory.Snapshot{
		SubscriberID: 7,
		IsActive:     true,
		HasService:   true,
		SpeedIn:      11000000,
		SpeedOut:     11000000,
		CalcType:     models.CalcTypeSubscription,
		TakenAt:      time.Now(),
	}
}

func TestDecide(t *testing.T) {
	access := accessSnapshot()
	expired := accessSnapshot()
	expired.HasService = false

	tests := []struct {
		name     string
		enforced string
		snap     *directory.Snapshot
		kind     vendors.CoAKind
		needed   bool
	}{
		{"inet matches entitlement", "SERVICE-INET(11000000,2062500,11000000,2062500)", access, "", false},
		{"guest matches no entitlement", "SERVICE-GUEST", expired, "", false},
		{"guest matches nil snapshot", "SERVICE-GUEST", nil, "", false},
		{"inet but entitlement expired", "SERVICE-INET(11000000,2062500,11000000,2062500)", expired, vendors.CoAInetToGuest, true},
		{"inet but snapshot nil", "SERVICE-INET(11000000,2062500,11000000,2062500)", nil, vendors.CoAInetToGuest, true},
		{"guest but entitled", "SERVICE-GUEST", access, vendors.CoAGuestToInet, true},
		{"unmanaged service ignored", "SVC-MGMT", access, "", false},
		{"empty service ignored", "", access, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, params, needed := Decide(tt.enforced, tt.snap)
			assert.Equal(t, tt.needed, needed)
			assert.Equal(t, tt.kind, kind)
			if kind == vendors.CoAGuestToInet {
				assert.Equal(t, int64(11000000), params.SpeedIn)
				assert.Equal(t, int64(11000000), params.SpeedOut)
			}
		})
	}
}

func TestDecideCarriesBurstOverrides(t *testing.T) {
	snap := accessSnapshot()
	snap.BurstIn = 1375000
	snap.BurstOut = 1375000

	kind, params, needed := Decide("SERVICE-GUEST", snap)
	require.True(t, needed)
	assert.Equal(t, vendors.CoAGuestToInet, kind)
	assert.Equal(t, int64(1375000), params.BurstIn)
	assert.Equal(t, int64(1375000), params.BurstOut)
}

type fakeSubscribers struct {
	snapshots map[uint]*directory.Snapshot
}

func (f *fakeSubscribers) ServiceSnapshot(ctx context.Context, id uint) (*directory.Snapshot, error) {
	return f.snapshots[id], nil
}

type fakeSessions struct {
	open map[uint][]models.Session
}

func (f *fakeSessions) OpenByCustomer(ctx context.Context, id uint) ([]models.Session, error) {
	return f.open[id], nil
}

// drain reads everything sitting in the dispatcher queue without running it.
func drain(d *Dispatcher) []Job {
	var jobs []Job
	for {
		select {
		case j := <-d.queue:
			jobs = append(jobs, j)
		default:
			return jobs
		}
	}
}

func TestSyncAccountingQueuesFlip(t *testing.T) {
	d := NewDispatcher(nil, 16, time.Second, time.Second)
	s := NewSynchronizer(d, &fakeSessions{}, &fakeSubscribers{}, events.NewBus())

	expired := accessSnapshot()
	expired.HasService = false
	s.SyncAccounting("SERVICE-INET(11000000,2062500,11000000,2062500)", expired, "8a3f0001", "user7", "192.0.2.1")

	jobs := drain(d)
	require.Len(t, jobs, 1)
	assert.Equal(t, vendors.CoAInetToGuest, jobs[0].Kind)
	assert.Equal(t, "8a3f0001", jobs[0].SessionID)
	assert.Equal(t, "192.0.2.1", jobs[0].NasIPAddress)
}

func TestSyncAccountingConvergedIsQuiet(t *testing.T) {
	d := NewDispatcher(nil, 16, time.Second, time.Second)
	s := NewSynchronizer(d, &fakeSessions{}, &fakeSubscribers{}, events.NewBus())

	s.SyncAccounting("SERVICE-INET(11000000,2062500,11000000,2062500)", accessSnapshot(), "8a3f0001", "user7", "192.0.2.1")
	s.SyncAccounting("", accessSnapshot(), "8a3f0001", "user7", "192.0.2.1")

	assert.Empty(t, drain(d))
}

func TestEntitlementChangeFlipsEverySession(t *testing.T) {
	d := NewDispatcher(nil, 16, time.Second, time.Second)
	bus := events.NewBus()

	expired := accessSnapshot()
	expired.HasService = false
	sessions := &fakeSessions{open: map[uint][]models.Session{
		7: {
			{SessionID: "8a3f0001", RadiusUsername: "user7", NasIPAddress: "192.0.2.1"},
			{SessionID: "8a3f0002", RadiusUsername: "user7", NasIPAddress: "192.0.2.2"},
		},
	}}
	NewSynchronizer(d, sessions, &fakeSubscribers{snapshots: map[uint]*directory.Snapshot{7: expired}}, bus)

	bus.PublishServiceStopped(events.ServiceStopped{SubscriberID: 7})

	jobs := drain(d)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, vendors.CoAInetToGuest, j.Kind)
	}
	assert.Equal(t, "192.0.2.1", jobs[0].NasIPAddress)
	assert.Equal(t, "192.0.2.2", jobs[1].NasIPAddress)
}

func TestEntitlementGrantFlipsToInet(t *testing.T) {
	d := NewDispatcher(nil, 16, time.Second, time.Second)
	bus := events.NewBus()

	sessions := &fakeSessions{open: map[uint][]models.Session{
		7: {{SessionID: "8a3f0001", RadiusUsername: "user7", NasIPAddress: "192.0.2.1"}},
	}}
	NewSynchronizer(d, sessions, &fakeSubscribers{snapshots: map[uint]*directory.Snapshot{7: accessSnapshot()}}, bus)

	bus.PublishServicePicked(events.ServicePicked{SubscriberID: 7})

	jobs := drain(d)
	require.Len(t, jobs, 1)
	assert.Equal(t, vendors.CoAGuestToInet, jobs[0].Kind)
	assert.Equal(t, int64(11000000), jobs[0].Params.SpeedIn)
}

func TestEntitlementChangeNoSessionsIsQuiet(t *testing.T) {
	d := NewDispatcher(nil, 16, time.Second, time.Second)
	bus := events.NewBus()
	NewSynchronizer(d, &fakeSessions{}, &fakeSubscribers{}, bus)

	bus.PublishServiceBatchStopped(events.ServiceBatchStopped{SubscriberIDs: []uint{1, 2, 3}})

	assert.Empty(t, drain(d))
}

type recordingSender struct {
	mu    sync.Mutex
	calls []Job
	times []time.Time
}

func (r *recordingSender) Send(ctx context.Context, nasIP string, kind vendors.CoAKind, username, sessionID string, params vendors.CoAParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Job{NasIPAddress: nasIP, Kind: kind, Username: username, SessionID: sessionID, Params: params})
	r.times = append(r.times, time.Now())
	return nil
}

func (r *recordingSender) snapshot() ([]Job, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Job(nil), r.calls...), append([]time.Time(nil), r.times...)
}

func TestDispatcherPacesInOrder(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 16, 20*time.Millisecond, time.Second)

	for _, id := range []string{"s1", "s2", "s3"} {
		d.Enqueue(Job{NasIPAddress: "192.0.2.1", Kind: vendors.CoAInetToGuest, SessionID: id})
	}

	d.Start()
	defer d.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, _ := sender.snapshot()
		if len(calls) == 3 {
			break
		}
		require.True(t, time.Now().Before(deadline), "dispatcher did not drain the queue")
		time.Sleep(5 * time.Millisecond)
	}

	calls, times := sender.snapshot()
	assert.Equal(t, "s1", calls[0].SessionID)
	assert.Equal(t, "s2", calls[1].SessionID)
	assert.Equal(t, "s3", calls[2].SessionID)
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), 40*time.Millisecond)
}

func TestDispatcherEnqueueBeforeStartAndAfterStop(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 1, time.Millisecond, time.Second)

	// Before Start the buffered queue absorbs the job.
	d.Enqueue(Job{SessionID: "s1", Kind: vendors.CoAInetToGuest})

	d.Start()
	d.Stop()

	// After Stop the full queue must not block the producer; the job is
	// dropped instead.
	done := make(chan struct{})
	go func() {
		d.Enqueue(Job{SessionID: "s2", Kind: vendors.CoAInetToGuest})
		d.Enqueue(Job{SessionID: "s3", Kind: vendors.CoAInetToGuest})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked after stop")
	}
}

func TestDispatcherStopDropsQueued(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 16, time.Hour, time.Second)

	d.Start()
	d.Enqueue(Job{SessionID: "s1", Kind: vendors.CoAInetToGuest})
	d.Enqueue(Job{SessionID: "s2", Kind: vendors.CoAInetToGuest})

	// Give the loop a moment to pick up the first job, then stop while the
	// pacing timer holds the second one back.
	time.Sleep(50 * time.Millisecond)
	d.Stop()

	calls, _ := sender.snapshot()
	assert.LessOrEqual(t, len(calls), 1)
}
