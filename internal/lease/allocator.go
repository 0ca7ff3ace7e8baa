package lease

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"time"

	"github.com/ispkit/sessiond/internal/models"
)

// Request carries everything the allocator needs to decide a lease.
// CustomerID nil means an unknown subscriber; only guest pools may serve
// those. Vid is the VLAN the request arrived on, 0 when the vendor supplied
// none.
type Request struct {
	CustomerMAC    string
	CustomerID     *uint
	CustomerGroup  *uint
	IsDynamic      bool
	Vid            int
	Svid           int
	Cvid           int
	PoolKind       models.PoolKind
	RadiusUsername string
	SessionID      string
}

// Result describes the lease the allocator settled on. IsAssigned is true
// only when this call created the lease.
type Result struct {
	LeaseID     uint
	IP          string
	PoolID      uint
	LeaseTime   time.Time
	CustomerMAC string
	CustomerID  *uint
	IsDynamic   bool
	IsAssigned  bool
}

// Allocator owns lease placement. All decisions run inside one store
// transaction so two workers racing for the same identity or the same free
// address serialize on the database, not in process memory.
type Allocator struct {
	store Store
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store}
}

// FetchSubscriberLease finds or creates the lease for a subscriber identity.
// Idempotent per (customer, MAC, pool): a second call returns the existing
// lease with IsAssigned=false.
func (a *Allocator) FetchSubscriberLease(ctx context.Context, req Request) (*Result, error) {
	var res *Result
	run := func(tx Store) error {
		var err error
		res, err = allocate(ctx, tx, req)
		return err
	}

	err := a.store.Transaction(ctx, run)
	if err != nil && a.store.IsDuplicate(err) {
		// Lost the race on the unique (ip) index; the winner's lease is now
		// visible, so a single retry resolves to it.
		log.Printf("Lease: allocation raced for mac=%s, retrying", req.CustomerMAC)
		err = a.store.Transaction(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func allocate(ctx context.Context, tx Store, req Request) (*Result, error) {
	if req.CustomerID == nil && req.PoolKind != models.PoolKindGuest {
		return nil, fmt.Errorf("%w: unknown subscriber may only use guest pools", ErrNoLease)
	}

	if !req.IsDynamic {
		if req.CustomerID == nil {
			return nil, fmt.Errorf("%w: static leases are bound to a subscriber", ErrNoLease)
		}
		return allocateStatic(ctx, tx, req)
	}

	candidates, err := candidatePools(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no %s pool for vlan %d", ErrPoolExhausted, req.PoolKind, req.Vid)
	}

	now := time.Now()

	// Reuse before allocate: the current lease for this identity in any
	// candidate pool wins, as long as it still fits the pool's range.
	for i := range candidates {
		pool := &candidates[i]
		existing, err := tx.CurrentLease(ctx, req.CustomerID, req.CustomerMAC, pool.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil || !pool.Contains(existing.IP) {
			continue
		}
		existing.LeaseTime = now
		existing.State = models.LeaseStateActive
		existing.RadiusUsername = req.RadiusUsername
		if req.SessionID != "" {
			existing.SessionID = req.SessionID
		}
		if err := tx.Save(ctx, existing); err != nil {
			return nil, err
		}
		return resultFrom(existing, false), nil
	}

	for i := range candidates {
		pool := &candidates[i]
		ip, err := tx.LowestFreeIP(ctx, pool)
		if err != nil {
			return nil, err
		}
		if ip == "" {
			continue
		}
		l := &models.Lease{
			IP:             ip,
			MAC:            req.CustomerMAC,
			PoolID:         &pool.ID,
			CustomerID:     req.CustomerID,
			IsDynamic:      true,
			Cvid:           req.Cvid,
			Svid:           req.Svid,
			LeaseTime:      now,
			LastUpdate:     now,
			State:          models.LeaseStateActive,
			RadiusUsername: req.RadiusUsername,
			SessionID:      req.SessionID,
		}
		if err := tx.Create(ctx, l); err != nil {
			return nil, err
		}
		log.Printf("Lease: allocated %s from pool %s (mac=%s)", ip, pool.Name, req.CustomerMAC)
		return resultFrom(l, true), nil
	}

	return nil, fmt.Errorf("%w: kind=%s vlan=%d", ErrPoolExhausted, req.PoolKind, req.Vid)
}

// allocateStatic never creates leases: static bindings are administrator
// work. It only picks up the customer's existing static lease, binding the
// MAC on first use.
func allocateStatic(ctx context.Context, tx Store, req Request) (*Result, error) {
	existing, err := tx.StaticLeaseFor(ctx, *req.CustomerID, req.CustomerMAC)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: no static lease for customer %d", ErrNoLease, *req.CustomerID)
	}
	if existing.MAC == "" {
		existing.MAC = req.CustomerMAC
	}
	existing.LeaseTime = time.Now()
	existing.State = models.LeaseStateActive
	existing.RadiusUsername = req.RadiusUsername
	if req.SessionID != "" {
		existing.SessionID = req.SessionID
	}
	if err := tx.Save(ctx, existing); err != nil {
		return nil, err
	}
	return resultFrom(existing, false), nil
}

// candidatePools filters one kind's pools down to those serving the
// request's VLAN and group, ordered exact-VLAN match first, then lowest
// network.
func candidatePools(ctx context.Context, tx Store, req Request) ([]models.IPPool, error) {
	pools, err := tx.PoolsByKind(ctx, req.PoolKind)
	if err != nil {
		return nil, err
	}

	var out []models.IPPool
	for _, p := range pools {
		if !p.IsDynamic {
			continue
		}
		if !p.MatchesVlan(req.Vid) {
			continue
		}
		if !groupMatches(&p, req.CustomerGroup) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		iExact := out[i].VlanTag != nil
		jExact := out[j].VlanTag != nil
		if iExact != jExact {
			return iExact
		}
		return networkValue(out[i].Network) < networkValue(out[j].Network)
	})
	return out, nil
}

// groupMatches: a pool with no affiliated groups serves everyone; a request
// without a group (guest) only unaffiliated pools.
func groupMatches(p *models.IPPool, group *uint) bool {
	if len(p.Groups) == 0 {
		return true
	}
	if group == nil {
		return false
	}
	for _, g := range p.Groups {
		if g.ID == *group {
			return true
		}
	}
	return false
}

func networkValue(cidr string) uint32 {
	ip, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return ^uint32(0)
	}
	return models.IPToUint32(ip)
}

func resultFrom(l *models.Lease, assigned bool) *Result {
	var poolID uint
	if l.PoolID != nil {
		poolID = *l.PoolID
	}
	return &Result{
		LeaseID:     l.ID,
		IP:          l.IP,
		PoolID:      poolID,
		LeaseTime:   l.LeaseTime,
		CustomerMAC: l.MAC,
		CustomerID:  l.CustomerID,
		IsDynamic:   l.IsDynamic,
		IsAssigned:  assigned,
	}
}

// ReleaseDynamic deletes dynamic leases matching the filter.
func (a *Allocator) ReleaseDynamic(ctx context.Context, f ReleaseFilter) (int64, error) {
	return a.store.ReleaseDynamic(ctx, f)
}

// ReapStale reclaims dynamic leases with no accounting activity for the
// threshold.
func (a *Allocator) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return a.store.ReapStale(ctx, olderThan)
}
