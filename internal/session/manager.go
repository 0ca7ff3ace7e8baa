package session

import (
	"context"
	"log"
	"time"

	"github.com/ispkit/sessiond/internal/events"
	"github.com/ispkit/sessiond/internal/lease"
	"github.com/ispkit/sessiond/internal/models"
)

// Manager drives the session state machine off normalized accounting
// records. Sessions are keyed by the vendor's unique session id; once
// closed a session is history and later events for it are dropped.
type Manager struct {
	sessions Store
	leases   lease.Store
	bus      *events.Bus
}

func NewManager(sessions Store, leases lease.Store, bus *events.Bus) *Manager {
	return &Manager{sessions: sessions, leases: leases, bus: bus}
}

// Start opens a session for rec. A Start seen twice for the same session id
// degrades to an interim update; a Start for an already-closed id is
// dropped.
func (m *Manager) Start(ctx context.Context, rec Record) error {
	existing, err := m.sessions.BySessionID(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Closed {
			log.Printf("Acct: start for closed session %s dropped", rec.SessionID)
			return nil
		}
		return m.update(ctx, existing, rec)
	}

	now := time.Now()
	sess := &models.Session{
		SessionID:       rec.SessionID,
		CustomerID:      rec.CustomerID,
		IPLeaseID:       rec.LeaseID,
		AssignTime:      now,
		LastEventTime:   now,
		RadiusUsername:  rec.RadiusUsername,
		NasIPAddress:    rec.NasIPAddress,
		SessionDuration: rec.SessionTime,
		InputOctets:     rec.Counters.InputOctets,
		OutputOctets:    rec.Counters.OutputOctets,
		InputPackets:    rec.Counters.InputPackets,
		OutputPackets:   rec.Counters.OutputPackets,
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		if m.sessions.IsDuplicate(err) {
			// Lost the create race; the row exists now, fold into it.
			existing, ferr := m.sessions.BySessionID(ctx, rec.SessionID)
			if ferr != nil || existing == nil {
				return err
			}
			return m.update(ctx, existing, rec)
		}
		return err
	}

	log.Printf("Acct: session %s started (user=%s, nas=%s)", rec.SessionID, rec.RadiusUsername, rec.NasIPAddress)
	m.bus.PublishSessionOpened(events.SessionOpened{SessionID: sess.SessionID, SubscriberID: sess.CustomerID})
	return nil
}

// Interim folds a periodic counter report into the session. A report for a
// session the store never saw synthesizes one, so a missed Start does not
// lose the accounting tail.
func (m *Manager) Interim(ctx context.Context, rec Record) error {
	sess, err := m.sessions.BySessionID(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		log.Printf("Acct: interim for unknown session %s, synthesizing", rec.SessionID)
		return m.Start(ctx, rec)
	}
	if sess.Closed {
		log.Printf("Acct: interim for closed session %s dropped", rec.SessionID)
		return nil
	}
	return m.update(ctx, sess, rec)
}

// Stop closes the session, freezes its counters and tears down the dynamic
// lease it held. Stops for unknown sessions are recorded as already-closed
// rows so history stays complete.
func (m *Manager) Stop(ctx context.Context, rec Record) error {
	sess, err := m.sessions.BySessionID(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		log.Printf("Acct: stop for unknown session %s, recording closed", rec.SessionID)
		now := time.Now()
		sess = &models.Session{
			SessionID:       rec.SessionID,
			CustomerID:      rec.CustomerID,
			IPLeaseID:       rec.LeaseID,
			AssignTime:      now,
			LastEventTime:   now,
			RadiusUsername:  rec.RadiusUsername,
			NasIPAddress:    rec.NasIPAddress,
			SessionDuration: rec.SessionTime,
			InputOctets:     rec.Counters.InputOctets,
			OutputOctets:    rec.Counters.OutputOctets,
			InputPackets:    rec.Counters.InputPackets,
			OutputPackets:   rec.Counters.OutputPackets,
			Closed:          true,
			TerminateCause:  rec.TerminateCause,
		}
		if err := m.sessions.Create(ctx, sess); err != nil && !m.sessions.IsDuplicate(err) {
			return err
		}
		return m.releaseLease(ctx, rec)
	}
	if sess.Closed {
		log.Printf("Acct: stop for closed session %s dropped", rec.SessionID)
		return nil
	}

	sess.LastEventTime = time.Now()
	sess.SessionDuration = rec.SessionTime
	sess.InputOctets = rec.Counters.InputOctets
	sess.OutputOctets = rec.Counters.OutputOctets
	sess.InputPackets = rec.Counters.InputPackets
	sess.OutputPackets = rec.Counters.OutputPackets
	sess.Closed = true
	sess.TerminateCause = rec.TerminateCause
	if err := m.sessions.Save(ctx, sess); err != nil {
		return err
	}

	if err := m.releaseLease(ctx, rec); err != nil {
		return err
	}

	log.Printf("Acct: session %s closed (cause=%s, in=%d out=%d)",
		rec.SessionID, rec.TerminateCause, rec.Counters.InputOctets, rec.Counters.OutputOctets)
	m.bus.PublishSessionClosed(events.SessionClosed{SessionID: sess.SessionID, SubscriberID: sess.CustomerID})
	return nil
}

// OpenByCustomer lists the customer's live sessions; the CoA synchronizer
// uses it to re-target flips after an entitlement change.
func (m *Manager) OpenByCustomer(ctx context.Context, customerID uint) ([]models.Session, error) {
	return m.sessions.OpenByCustomer(ctx, customerID)
}

// CloseStale lets the reaper close sessions whose NAS went silent.
func (m *Manager) CloseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return m.sessions.CloseStale(ctx, olderThan)
}

func (m *Manager) update(ctx context.Context, sess *models.Session, rec Record) error {
	sess.LastEventTime = time.Now()
	sess.SessionDuration = rec.SessionTime
	sess.InputOctets = rec.Counters.InputOctets
	sess.OutputOctets = rec.Counters.OutputOctets
	sess.InputPackets = rec.Counters.InputPackets
	sess.OutputPackets = rec.Counters.OutputPackets
	if sess.IPLeaseID == nil && rec.LeaseID != nil {
		sess.IPLeaseID = rec.LeaseID
	}
	if err := m.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return m.touchLease(ctx, sess.IPLeaseID, rec)
}

// touchLease mirrors the counters onto the lease and refreshes LastUpdate
// so the stale reaper sees activity.
func (m *Manager) touchLease(ctx context.Context, leaseID *uint, rec Record) error {
	if leaseID == nil {
		return nil
	}
	l, err := m.leases.ByID(ctx, *leaseID)
	if err != nil || l == nil {
		return err
	}
	l.InputOctets = rec.Counters.InputOctets
	l.OutputOctets = rec.Counters.OutputOctets
	l.InputPackets = rec.Counters.InputPackets
	l.OutputPackets = rec.Counters.OutputPackets
	l.LastUpdate = time.Now()
	return m.leases.Save(ctx, l)
}

func (m *Manager) releaseLease(ctx context.Context, rec Record) error {
	n, err := m.leases.ReleaseDynamic(ctx, lease.ReleaseFilter{SessionID: rec.SessionID})
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("Lease: released %d dynamic lease(s) for session %s", n, rec.SessionID)
	}
	return nil
}
