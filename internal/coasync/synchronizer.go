package coasync

import (
	"context"
	"log"

	"github.com/ispkit/sessiond/internal/directory"
	"github.com/ispkit/sessiond/internal/events"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/vendors"
)

// SessionSource lists a subscriber's live sessions.
type SessionSource interface {
	OpenByCustomer(ctx context.Context, customerID uint) ([]models.Session, error)
}

// Synchronizer keeps the BRAS-enforced service converged with the billing
// entitlement. It reacts along two paths: accounting events report which
// service the BRAS currently enforces, and directory events report
// entitlement changes for subscribers whose sessions may need a flip.
type Synchronizer struct {
	dispatcher *Dispatcher
	sessions   SessionSource
	subs       directory.Subscribers
}

func NewSynchronizer(dispatcher *Dispatcher, sessions SessionSource, subs directory.Subscribers, bus *events.Bus) *Synchronizer {
	s := &Synchronizer{dispatcher: dispatcher, sessions: sessions, subs: subs}

	bus.OnServicePicked(func(e events.ServicePicked) { s.onEntitlementChange(e.SubscriberID) })
	bus.OnServiceStopped(func(e events.ServiceStopped) { s.onEntitlementChange(e.SubscriberID) })
	bus.OnServiceBatchStopped(func(e events.ServiceBatchStopped) {
		for _, id := range e.SubscriberIDs {
			s.onEntitlementChange(id)
		}
	})

	return s
}

// Decide compares the BRAS-reported service against the entitlement
// snapshot. needed is false when the two already agree or the reported
// service is not one this core manages (admin profiles stay untouched).
func Decide(enforced string, snap *directory.Snapshot) (kind vendors.CoAKind, params vendors.CoAParams, needed bool) {
	inet, _, ok := vendors.ParseServiceToken(enforced)
	if !ok {
		return "", vendors.CoAParams{}, false
	}

	access := snap != nil && snap.IsAccess()

	switch {
	case inet && !access:
		return vendors.CoAInetToGuest, vendors.CoAParams{}, true
	case !inet && access:
		return vendors.CoAGuestToInet, vendors.CoAParams{
			SpeedIn:  snap.SpeedIn,
			SpeedOut: snap.SpeedOut,
			BurstIn:  snap.BurstIn,
			BurstOut: snap.BurstOut,
		}, true
	}
	return "", vendors.CoAParams{}, false
}

// SyncAccounting is the accounting-driven path: every Start and Interim
// carries the service the BRAS enforces right now; a mismatch against the
// entitlement queues a flip.
func (s *Synchronizer) SyncAccounting(enforced string, snap *directory.Snapshot, sessionID, username, nasIP string) {
	if enforced == "" || sessionID == "" {
		return
	}
	kind, params, needed := Decide(enforced, snap)
	if !needed {
		return
	}
	log.Printf("CoA: session %s enforces %q, queueing %s", sessionID, enforced, kind)
	s.dispatcher.Enqueue(Job{
		NasIPAddress: nasIP,
		Kind:         kind,
		Username:     username,
		SessionID:    sessionID,
		Params:       params,
	})
}

// onEntitlementChange is the directory-driven path: re-read the snapshot
// and queue the matching flip for every open session the subscriber has.
// The dispatcher's pacing turns a batch disable into a slow drip.
func (s *Synchronizer) onEntitlementChange(subscriberID uint) {
	ctx := context.Background()

	snap, err := s.subs.ServiceSnapshot(ctx, subscriberID)
	if err != nil {
		log.Printf("CoA: snapshot for subscriber %d unavailable, skipping sync: %v", subscriberID, err)
		return
	}

	sessions, err := s.sessions.OpenByCustomer(ctx, subscriberID)
	if err != nil {
		log.Printf("CoA: listing sessions for subscriber %d failed: %v", subscriberID, err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	var kind vendors.CoAKind
	var params vendors.CoAParams
	if snap != nil && snap.IsAccess() {
		kind = vendors.CoAGuestToInet
		params = vendors.CoAParams{
			SpeedIn:  snap.SpeedIn,
			SpeedOut: snap.SpeedOut,
			BurstIn:  snap.BurstIn,
			BurstOut: snap.BurstOut,
		}
	} else {
		kind = vendors.CoAInetToGuest
	}

	for _, sess := range sessions {
		s.dispatcher.Enqueue(Job{
			NasIPAddress: sess.NasIPAddress,
			Kind:         kind,
			Username:     sess.RadiusUsername,
			SessionID:    sess.SessionID,
			Params:       params,
		})
	}
}
