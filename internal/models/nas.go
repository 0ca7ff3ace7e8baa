package models

import (
	"time"

	"gorm.io/gorm"
)

// NasVendor selects which vendor adapter decodes a BRAS's attribute bundles
type NasVendor string

const (
	NasVendorJuniper  NasVendor = "juniper"
	NasVendorMikrotik NasVendor = "mikrotik"
)

// Nas represents a BRAS the frontend accepts RADIUS traffic from
type Nas struct {
	ID          uint      `gorm:"column:id;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;size:100;not null" json:"name"`
	IPAddress   string    `gorm:"column:ip_address;size:50;not null;uniqueIndex" json:"ip_address"`
	Vendor      NasVendor `gorm:"column:vendor;size:20;default:juniper" json:"vendor"`
	Description string    `gorm:"column:description;size:255" json:"description"`

	// RADIUS
	Secret   string `gorm:"column:secret;size:100;not null" json:"-"` // Hidden from API responses for security
	CoAPort  int    `gorm:"column:coa_port;default:3799" json:"coa_port"`
	AuthPort int    `gorm:"column:auth_port;default:1812" json:"auth_port"`
	AcctPort int    `gorm:"column:acct_port;default:1813" json:"acct_port"`

	// Status
	IsActive bool       `gorm:"column:is_active;default:true" json:"is_active"`
	LastSeen *time.Time `gorm:"column:last_seen" json:"last_seen"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Nas) TableName() string {
	return "nas_devices"
}

// GetSecretForRADIUS returns the RADIUS shared secret
func (n *Nas) GetSecretForRADIUS() []byte {
	return []byte(n.Secret)
}
