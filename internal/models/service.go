package models

import (
	"time"

	"gorm.io/gorm"
)

// CalcType is the billing scheme a service is charged under. Prepaid and
// subscription schemes grant access while active; one-off schemes do not.
type CalcType string

const (
	CalcTypePrepaid      CalcType = "prepaid"
	CalcTypeSubscription CalcType = "subscription"
	CalcTypeOneOff       CalcType = "one_off"
)

// AllowsAccess reports whether the scheme entitles the subscriber to the
// internet profile while the service is current.
func (c CalcType) AllowsAccess() bool {
	return c == CalcTypePrepaid || c == CalcTypeSubscription
}

// Service is a service plan as the Subscriber Directory exposes it.
// Speeds are bits per second. Burst fields of 0 mean "derive from speed".
type Service struct {
	ID   uint   `gorm:"column:id;primaryKey" json:"id"`
	Name string `gorm:"column:name;size:100;not null" json:"name"`

	SpeedIn  int64 `gorm:"column:speed_in;not null" json:"speed_in"`
	SpeedOut int64 `gorm:"column:speed_out;not null" json:"speed_out"`
	BurstIn  int64 `gorm:"column:burst_in;default:0" json:"burst_in"`
	BurstOut int64 `gorm:"column:burst_out;default:0" json:"burst_out"`

	CalcType CalcType `gorm:"column:calc_type;size:20;default:subscription" json:"calc_type"`
	Cost     float64  `gorm:"column:cost;type:decimal(15,2);not null" json:"cost"`
	IsAdmin  bool     `gorm:"column:is_admin;default:false" json:"is_admin"`
	IsActive bool     `gorm:"column:is_active;default:true" json:"is_active"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Service) TableName() string {
	return "services"
}
