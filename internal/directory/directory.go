// Package directory holds the read-only adapters to the Subscriber and
// Topology directories. The core never mutates billing state; it reads
// entitlement snapshots and resolves access-device identity to subscribers.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/ispkit/sessiond/internal/models"
)

// ErrUnavailable means the directory could not be reached and no
// sufficiently fresh cached snapshot existed.
var ErrUnavailable = errors.New("subscriber directory unavailable")

// SubscriberRef is the light resolve result of a topology lookup.
type SubscriberRef struct {
	ID       uint
	Username string
	GroupID  *uint
}

// Snapshot is the atomic read of a subscriber's entitlement.
type Snapshot struct {
	SubscriberID uint            `json:"subscriber_id"`
	Username     string          `json:"username"`
	IsActive     bool            `json:"is_active"`
	HasService   bool            `json:"has_service"`
	SpeedIn      int64           `json:"speed_in"`
	SpeedOut     int64           `json:"speed_out"`
	BurstIn      int64           `json:"burst_in"`
	BurstOut     int64           `json:"burst_out"`
	CalcType     models.CalcType `json:"calc_type"`
	IsAdmin      bool            `json:"is_admin"`
	AutoRenewal  bool            `json:"auto_renewal"`
	Balance      float64         `json:"balance"`
	TakenAt      time.Time       `json:"taken_at"`
}

// IsAccess reports whether the subscriber is entitled to the internet
// profile right now.
func (s *Snapshot) IsAccess() bool {
	return s.IsActive && s.HasService && s.CalcType.AllowsAccess()
}

// Topology resolves access-device identity to subscribers.
type Topology interface {
	// FindSubscriberByDevice maps (device MAC, port) to the subscriber
	// wired to it. Port is ignored for devices without per-port binding.
	// nil means unknown device or unbound port.
	FindSubscriberByDevice(ctx context.Context, deviceMAC string, port int) (*SubscriberRef, error)

	// FindSubscriberByStaticMAC is the fallback when Option-82 is absent:
	// the owner of a static lease bound to mac, nil if none.
	FindSubscriberByStaticMAC(ctx context.Context, mac string) (*SubscriberRef, error)
}

// Subscribers reads entitlement state.
type Subscribers interface {
	ServiceSnapshot(ctx context.Context, subscriberID uint) (*Snapshot, error)
}
