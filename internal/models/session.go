package models

import (
	"time"
)

// Session mirrors the BRAS's view of one RADIUS session. SessionID is the
// vendor's unique id and is the primary lookup key for all accounting.
// Closed sessions are retained for history and never mutated again.
type Session struct {
	ID         uint   `gorm:"column:id;primaryKey" json:"id"`
	SessionID  string `gorm:"column:session_id;size:64;not null;uniqueIndex" json:"session_id"`
	CustomerID *uint  `gorm:"column:customer_id;index" json:"customer_id"`
	IPLeaseID  *uint  `gorm:"column:ip_lease_id;index" json:"ip_lease_id"`
	Lease      *Lease `gorm:"foreignKey:IPLeaseID" json:"lease,omitempty"`

	AssignTime    time.Time `gorm:"column:assign_time" json:"assign_time"`
	LastEventTime time.Time `gorm:"column:last_event_time;index" json:"last_event_time"`

	RadiusUsername  string `gorm:"column:radius_username;size:100;index" json:"radius_username"`
	NasIPAddress    string `gorm:"column:nas_ip_address;size:15" json:"nas_ip_address"`
	SessionDuration int64  `gorm:"column:session_duration;default:0" json:"session_duration"` // seconds

	// Counters mirrored from the lease for historical retention
	InputOctets   int64 `gorm:"column:input_octets;default:0" json:"input_octets"`
	OutputOctets  int64 `gorm:"column:output_octets;default:0" json:"output_octets"`
	InputPackets  int64 `gorm:"column:input_packets;default:0" json:"input_packets"`
	OutputPackets int64 `gorm:"column:output_packets;default:0" json:"output_packets"`

	Closed         bool   `gorm:"column:closed;default:false;index" json:"closed"`
	TerminateCause string `gorm:"column:terminate_cause;size:32" json:"terminate_cause"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}
