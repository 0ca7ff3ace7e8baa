package lease

import (
	"context"
	"errors"
	"time"

	"github.com/ispkit/sessiond/internal/models"
)

var (
	// ErrPoolExhausted means no candidate pool had a free address.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrNoLease means no lease satisfied the request and none may be
	// auto-created (static requests, or guest requests with no guest pool).
	ErrNoLease = errors.New("no matching lease")
)

// ReleaseFilter selects dynamic leases for deletion. Zero fields match
// everything.
type ReleaseFilter struct {
	CustomerID *uint
	PoolID     *uint
	IP         string
	SessionID  string
}

// Store is the persistence surface the allocator runs on. Transaction
// returns a store bound to one transaction; every read the allocator does
// while deciding an allocation must go through that bound store.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// PoolsByKind returns pools of one kind with groups preloaded,
	// lowest network first.
	PoolsByKind(ctx context.Context, kind models.PoolKind) ([]models.IPPool, error)

	// CurrentLease returns the lease considered current for
	// (customer, mac, pool), nil if none.
	CurrentLease(ctx context.Context, customerID *uint, mac string, poolID uint) (*models.Lease, error)

	// StaticLeaseFor returns the customer's static lease whose MAC is unset
	// or equals mac, nil if none.
	StaticLeaseFor(ctx context.Context, customerID uint, mac string) (*models.Lease, error)

	// StaticLeaseByMAC is the MAC-only fallback used when Option-82 is
	// absent: any static lease bound to mac, nil if none.
	StaticLeaseByMAC(ctx context.Context, mac string) (*models.Lease, error)

	// LowestFreeIP returns the lowest address in the pool's usable range not
	// held by any lease, or "" when the pool is exhausted. Callers must hold
	// the pool's allocation lock (Transaction on the gorm store takes it).
	LowestFreeIP(ctx context.Context, pool *models.IPPool) (string, error)

	Create(ctx context.Context, l *models.Lease) error
	Save(ctx context.Context, l *models.Lease) error
	ByID(ctx context.Context, id uint) (*models.Lease, error)
	ByIP(ctx context.Context, ip string) (*models.Lease, error)

	// ReleaseDynamic deletes dynamic leases matching the filter and returns
	// how many were removed.
	ReleaseDynamic(ctx context.Context, f ReleaseFilter) (int64, error)

	// ReapStale deletes dynamic leases with no update since the threshold.
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// IsDuplicate reports whether err is a unique-constraint violation, the
	// signal to retry an allocation that raced another worker.
	IsDuplicate(err error) bool
}
