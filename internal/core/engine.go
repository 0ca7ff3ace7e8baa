// Package core implements the request pipeline: vendor decode, Option-82
// resolution, subscriber lookup, lease placement, session accounting and
// service synchronization. It is transport-free; the frontend owns UDP.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/ispkit/sessiond/internal/coasync"
	"github.com/ispkit/sessiond/internal/directory"
	"github.com/ispkit/sessiond/internal/lease"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/opt82"
	"github.com/ispkit/sessiond/internal/session"
	"github.com/ispkit/sessiond/internal/vendors"
)

// ErrRetry marks failures the NAS should recover from by retransmitting:
// the frontend drops the packet instead of answering.
var ErrRetry = errors.New("transient failure, let the NAS retry")

// errBadOpt82 rejects requests that carry no relay information and match
// no static MAC binding: nothing identifies the subscriber line.
var errBadOpt82 = errors.New("no relay info and no static binding")

// Engine is the vendor-neutral request pipeline.
type Engine struct {
	alloc    *lease.Allocator
	leases   lease.Store
	sessions *session.Manager
	topo     directory.Topology
	subs     directory.Subscribers
	sync     *coasync.Synchronizer
}

func NewEngine(alloc *lease.Allocator, leases lease.Store, sessions *session.Manager,
	topo directory.Topology, subs directory.Subscribers, sync *coasync.Synchronizer) *Engine {
	return &Engine{
		alloc:    alloc,
		leases:   leases,
		sessions: sessions,
		topo:     topo,
		subs:     subs,
		sync:     sync,
	}
}

// HandleAuth runs the Access-Request pipeline and returns the response
// packet to send. A nil packet with ErrRetry means drop the request.
func (e *Engine) HandleAuth(ctx context.Context, vendor string, r *radius.Packet) (*radius.Packet, error) {
	adapter, err := vendors.ForVendor(vendor)
	if err != nil {
		return nil, err
	}

	mac := adapter.CustomerMAC(r)
	svid, cvid := adapter.VlanIDs(r)
	username := adapter.RadiusUsername(r)
	sessionID := adapter.UniqueSessionID(r)

	sub, err := e.resolveSubscriber(ctx, adapter, r, mac)
	if err != nil {
		if errors.Is(err, errBadOpt82) {
			log.Printf("Auth: reject user=%s mac=%s: bad opt82", username, mac)
			resp := r.Response(radius.CodeAccessReject)
			_ = rfc2865.ReplyMessage_SetString(resp, "Bad opt82")
			return resp, nil
		}
		return nil, fmt.Errorf("%w: resolving subscriber: %v", ErrRetry, err)
	}

	var snap *directory.Snapshot
	if sub != nil {
		snap, err = e.subs.ServiceSnapshot(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetry, err)
		}
	}

	kind, guest := pickProfile(sub, snap)

	req := lease.Request{
		CustomerMAC:    mac,
		IsDynamic:      true,
		Vid:            selectVid(svid, cvid),
		Svid:           svid,
		Cvid:           cvid,
		PoolKind:       kind,
		RadiusUsername: username,
		SessionID:      sessionID,
	}
	if sub != nil {
		req.CustomerID = &sub.ID
		req.CustomerGroup = sub.GroupID
	}

	res, err := e.placeLease(ctx, req)
	if err != nil {
		if errors.Is(err, lease.ErrPoolExhausted) || errors.Is(err, lease.ErrNoLease) {
			log.Printf("Auth: reject user=%s mac=%s: %v", username, mac, err)
			return r.Response(radius.CodeAccessReject), nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrRetry, err)
		}
		return nil, fmt.Errorf("%w: lease placement: %v", ErrRetry, err)
	}

	grant := vendors.AuthGrant{IP: net.ParseIP(res.IP), Guest: guest}
	if !guest && snap != nil {
		grant.SpeedIn = snap.SpeedIn
		grant.SpeedOut = snap.SpeedOut
		grant.BurstIn = snap.BurstIn
		grant.BurstOut = snap.BurstOut
	}

	log.Printf("Auth: accept user=%s mac=%s ip=%s pool=%s guest=%v", username, mac, res.IP, kind, guest)
	return adapter.EncodeAuthResponse(r, grant)
}

// HandleAcct runs the Accounting-Request pipeline. Accounting is always
// acknowledged unless persistence failed, in which case the NAS
// retransmits and the event is not lost.
func (e *Engine) HandleAcct(ctx context.Context, vendor string, r *radius.Packet) (*radius.Packet, error) {
	adapter, err := vendors.ForVendor(vendor)
	if err != nil {
		return nil, err
	}

	kind := vendors.ClassifyAcctStatus(r)
	sessionID := adapter.UniqueSessionID(r)
	username := adapter.RadiusUsername(r)
	nasIP := rfc2865.NASIPAddress_Get(r).String()

	rec := session.Record{
		SessionID:      sessionID,
		RadiusUsername: username,
		NasIPAddress:   nasIP,
		Counters:       adapter.Counters(r),
		SessionTime:    adapter.SessionTime(r),
	}

	// Tie the event to the lease the auth path placed.
	if framed := rfc2865.FramedIPAddress_Get(r); framed != nil {
		l, err := e.leases.ByIP(ctx, framed.String())
		if err != nil {
			return nil, fmt.Errorf("%w: lease lookup: %v", ErrRetry, err)
		}
		if l != nil {
			rec.LeaseID = &l.ID
			rec.CustomerID = l.CustomerID
		}
	}

	switch kind {
	case vendors.KindAcctStart:
		err = e.sessions.Start(ctx, rec)
	case vendors.KindAcctInterim:
		err = e.sessions.Interim(ctx, rec)
	case vendors.KindAcctStop:
		rec.TerminateCause = rfc2866.AcctTerminateCause_Get(r).String()
		err = e.sessions.Stop(ctx, rec)
	default:
		// No state was touched; drop the packet rather than ack an event
		// the pipeline did not record.
		log.Printf("Acct: unknown status type for session %s, dropped", sessionID)
		return nil, fmt.Errorf("%w: unknown accounting status type", ErrRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetry, err)
	}

	if kind == vendors.KindAcctStart || kind == vendors.KindAcctInterim {
		e.syncService(ctx, adapter, r, rec, sessionID, username, nasIP)
	}

	return r.Response(radius.CodeAccountingResponse), nil
}

// resolveSubscriber maps the request to a subscriber: Option-82 through
// the topology when present, static-lease MAC binding when not. A nil
// subscriber with a nil error means a known relay but an unknown device,
// which is a guest; a request with neither relay information nor a static
// MAC binding fails with errBadOpt82.
func (e *Engine) resolveSubscriber(ctx context.Context, adapter vendors.Adapter, r *radius.Packet, mac string) (*directory.SubscriberRef, error) {
	o82, err := adapter.ParseOption82(r)
	if err != nil {
		if !errors.Is(err, vendors.ErrMissingOpt82) {
			return nil, err
		}
		if mac == "" {
			return nil, errBadOpt82
		}
		sub, err := e.topo.FindSubscriberByStaticMAC(ctx, mac)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, errBadOpt82
		}
		return sub, nil
	}

	res := opt82.Resolve(o82.RemoteID, o82.CircuitID)
	if res.DeviceMAC == "" {
		return nil, nil
	}
	sub, err := e.topo.FindSubscriberByDevice(ctx, res.DeviceMAC, res.Port)
	if err != nil {
		return nil, err
	}
	if sub == nil && mac != "" {
		// Known relay formats but unknown device: a static binding on the
		// customer MAC still identifies the subscriber.
		return e.topo.FindSubscriberByStaticMAC(ctx, mac)
	}
	return sub, nil
}

// placeLease prefers the subscriber's static lease and falls back to
// dynamic allocation when none exists.
func (e *Engine) placeLease(ctx context.Context, req lease.Request) (*lease.Result, error) {
	if req.CustomerID != nil {
		static := req
		static.IsDynamic = false
		res, err := e.alloc.FetchSubscriberLease(ctx, static)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, lease.ErrNoLease) {
			return nil, err
		}
	}
	return e.alloc.FetchSubscriberLease(ctx, req)
}

func (e *Engine) syncService(ctx context.Context, adapter vendors.Adapter, r *radius.Packet, rec session.Record, sessionID, username, nasIP string) {
	enforced := adapter.ServiceSession(r)
	if enforced == "" {
		return
	}
	var snap *directory.Snapshot
	if rec.CustomerID != nil {
		var err error
		snap, err = e.subs.ServiceSnapshot(ctx, *rec.CustomerID)
		if err != nil {
			log.Printf("Acct: snapshot unavailable for session %s, sync deferred: %v", sessionID, err)
			return
		}
	}
	e.sync.SyncAccounting(enforced, snap, sessionID, username, nasIP)
}

// pickProfile decides pool kind and token from the entitlement snapshot.
func pickProfile(sub *directory.SubscriberRef, snap *directory.Snapshot) (models.PoolKind, bool) {
	switch {
	case sub == nil || snap == nil:
		return models.PoolKindGuest, true
	case snap.IsAdmin:
		return models.PoolKindAdmin, false
	case snap.IsAccess():
		return models.PoolKindInternet, false
	default:
		return models.PoolKindGuest, true
	}
}

// selectVid: pools are keyed on the customer VLAN when the BRAS stacks
// tags, the single tag otherwise.
func selectVid(svid, cvid int) int {
	if cvid != 0 {
		return cvid
	}
	return svid
}
