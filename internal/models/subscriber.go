package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscriber is the slice of the Subscriber Directory's master data this
// core needs for lease allocation and entitlement checks. Balances,
// purchases and the rest of the billing model stay in the directory.
type Subscriber struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	Username string `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	FullName string `gorm:"column:full_name;size:255" json:"full_name"`

	GroupID *uint            `gorm:"column:group_id;index" json:"group_id"`
	Group   *SubscriberGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"`

	ServiceID  *uint      `gorm:"column:service_id;index" json:"service_id"`
	Service    *Service   `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	IsActive   bool       `gorm:"column:is_active;default:true" json:"is_active"`
	ExpiryDate *time.Time `gorm:"column:expiry_date" json:"expiry_date"`
	AutoRenew  bool       `gorm:"column:auto_renew;default:false" json:"auto_renew"`
	Balance    float64    `gorm:"column:balance;type:decimal(15,2);default:0" json:"balance"`

	// RADIUS password for BRAS vendors that authenticate by credentials
	PasswordPlain string `gorm:"column:password_plain;size:255" json:"-"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// HasCurrentService reports whether the subscriber holds an unexpired service.
func (s *Subscriber) HasCurrentService(now time.Time) bool {
	if s.ServiceID == nil {
		return false
	}
	if s.ExpiryDate != nil && now.After(*s.ExpiryDate) {
		return false
	}
	return true
}

// SubscriberGroup partitions subscribers for pool affiliation
type SubscriberGroup struct {
	ID   uint   `gorm:"column:id;primaryKey" json:"id"`
	Name string `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
}

func (SubscriberGroup) TableName() string {
	return "subscriber_groups"
}

// Switch is an access device from the Topology Directory. PortBound devices
// map subscribers per port; for the rest a device MAC alone identifies the
// subscriber (port from Option-82 is ignored).
type Switch struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Name      string `gorm:"column:name;size:100;not null" json:"name"`
	MAC       string `gorm:"column:mac;size:17;not null;uniqueIndex" json:"mac"`
	Location  string `gorm:"column:location;size:255" json:"location"`
	PortBound bool   `gorm:"column:port_bound;default:true" json:"port_bound"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Switch) TableName() string {
	return "switches"
}

// SwitchPort binds one port of an access device to a subscriber
type SwitchPort struct {
	ID           uint        `gorm:"column:id;primaryKey" json:"id"`
	SwitchID     uint        `gorm:"column:switch_id;not null;uniqueIndex:idx_switch_port" json:"switch_id"`
	Switch       *Switch     `gorm:"foreignKey:SwitchID" json:"switch,omitempty"`
	Port         int         `gorm:"column:port;not null;uniqueIndex:idx_switch_port" json:"port"`
	SubscriberID *uint       `gorm:"column:subscriber_id;index" json:"subscriber_id"`
	Subscriber   *Subscriber `gorm:"foreignKey:SubscriberID" json:"subscriber,omitempty"`
}

func (SwitchPort) TableName() string {
	return "switch_ports"
}
