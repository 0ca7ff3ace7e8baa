package session

import (
	"context"
	"time"

	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/vendors"
)

// Record is one normalized accounting event as the manager consumes it.
// Counters are absolute totals since session start, already gigaword
// reconstructed.
type Record struct {
	SessionID      string
	CustomerID     *uint
	LeaseID        *uint
	RadiusUsername string
	NasIPAddress   string
	Counters       vendors.Counters
	SessionTime    int64
	TerminateCause string
}

// Store is the persistence surface for session rows.
type Store interface {
	BySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	Create(ctx context.Context, s *models.Session) error
	Save(ctx context.Context, s *models.Session) error

	// OpenByCustomer returns the customer's sessions not yet closed.
	OpenByCustomer(ctx context.Context, customerID uint) ([]models.Session, error)

	// CloseStale marks open sessions with no accounting event since the
	// threshold as closed and returns how many were affected.
	CloseStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// IsDuplicate reports whether err is a unique-constraint violation on
	// session_id, meaning another worker created the row first.
	IsDuplicate(err error) bool
}
