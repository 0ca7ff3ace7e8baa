package models

import (
	"time"
)

// LeaseState represents whether a lease is currently enforced on the BRAS
type LeaseState string

const (
	LeaseStateActive   LeaseState = "active"
	LeaseStateInactive LeaseState = "inactive"
)

// Lease is a single IP bound (or bindable) to a subscriber. Dynamic leases
// are created on demand and deleted on Accounting-Stop or stale reclaim;
// static leases are created by administrators and survive session teardown.
type Lease struct {
	ID         uint    `gorm:"column:id;primaryKey" json:"id"`
	IP         string  `gorm:"column:ip;size:15;not null;uniqueIndex" json:"ip"`
	MAC        string  `gorm:"column:mac;size:17;index:idx_lease_identity" json:"mac"`
	PoolID     *uint   `gorm:"column:pool_id;index:idx_lease_identity" json:"pool_id"`
	Pool       *IPPool `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	CustomerID *uint   `gorm:"column:customer_id;index:idx_lease_identity,priority:1" json:"customer_id"`
	IsDynamic  bool    `gorm:"column:is_dynamic;default:true;index" json:"is_dynamic"`

	// Stacked VLAN tags as seen in NAS-Port-Id
	Cvid int `gorm:"column:cvid;default:0" json:"cvid"`
	Svid int `gorm:"column:svid;default:0" json:"svid"`

	// Counters reconstructed from 32-bit attributes plus gigawords
	InputOctets   int64 `gorm:"column:input_octets;default:0" json:"input_octets"`
	OutputOctets  int64 `gorm:"column:output_octets;default:0" json:"output_octets"`
	InputPackets  int64 `gorm:"column:input_packets;default:0" json:"input_packets"`
	OutputPackets int64 `gorm:"column:output_packets;default:0" json:"output_packets"`

	LeaseTime  time.Time  `gorm:"column:lease_time" json:"lease_time"`
	LastUpdate time.Time  `gorm:"column:last_update;index" json:"last_update"`
	State      LeaseState `gorm:"column:state;size:10;default:active" json:"state"`

	RadiusUsername string `gorm:"column:radius_username;size:100;index" json:"radius_username"`
	SessionID      string `gorm:"column:session_id;size:64;index" json:"session_id"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Lease) TableName() string {
	return "leases"
}

// IsStale reports whether a dynamic lease has seen no accounting traffic
// for longer than threshold.
func (l *Lease) IsStale(threshold time.Duration, now time.Time) bool {
	return l.IsDynamic && now.Sub(l.LastUpdate) > threshold
}

// BelongsTo reports whether the lease is currently owned by customerID.
func (l *Lease) BelongsTo(customerID uint) bool {
	return l.CustomerID != nil && *l.CustomerID == customerID
}

// Unbind detaches the device from a static lease: MAC, session and radius
// identity are cleared while the address stays pinned to the customer.
// The next authentication on the line re-binds it.
func (l *Lease) Unbind() {
	l.MAC = ""
	l.RadiusUsername = ""
	l.SessionID = ""
	l.State = LeaseStateInactive
}
