package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ispkit/sessiond/internal/models"
	"gorm.io/gorm"
)

// GormDirectory serves both directory interfaces from the shared database
// the Subscriber Directory maintains.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) FindSubscriberByDevice(ctx context.Context, deviceMAC string, port int) (*SubscriberRef, error) {
	var sw models.Switch
	err := d.db.WithContext(ctx).Where("mac = ?", strings.ToLower(deviceMAC)).First(&sw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	q := d.db.WithContext(ctx).Where("switch_id = ?", sw.ID)
	if sw.PortBound {
		q = q.Where("port = ?", port)
	}

	var sp models.SwitchPort
	err = q.First(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sp.SubscriberID == nil {
		return nil, nil
	}
	return d.subscriberRef(ctx, *sp.SubscriberID)
}

func (d *GormDirectory) FindSubscriberByStaticMAC(ctx context.Context, mac string) (*SubscriberRef, error) {
	var l models.Lease
	err := d.db.WithContext(ctx).
		Where("mac = ? AND is_dynamic = ? AND customer_id IS NOT NULL", strings.ToLower(mac), false).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.subscriberRef(ctx, *l.CustomerID)
}

func (d *GormDirectory) subscriberRef(ctx context.Context, id uint) (*SubscriberRef, error) {
	var sub models.Subscriber
	err := d.db.WithContext(ctx).First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SubscriberRef{ID: sub.ID, Username: sub.Username, GroupID: sub.GroupID}, nil
}

func (d *GormDirectory) ServiceSnapshot(ctx context.Context, subscriberID uint) (*Snapshot, error) {
	var sub models.Subscriber
	err := d.db.WithContext(ctx).Preload("Service").First(&sub, subscriberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snap := &Snapshot{
		SubscriberID: sub.ID,
		Username:     sub.Username,
		IsActive:     sub.IsActive,
		HasService:   sub.HasCurrentService(now),
		AutoRenewal:  sub.AutoRenew,
		Balance:      sub.Balance,
		TakenAt:      now,
	}
	if sub.Service != nil {
		snap.SpeedIn = sub.Service.SpeedIn
		snap.SpeedOut = sub.Service.SpeedOut
		snap.BurstIn = sub.Service.BurstIn
		snap.BurstOut = sub.Service.BurstOut
		snap.CalcType = sub.Service.CalcType
		snap.IsAdmin = sub.Service.IsAdmin
		if !sub.Service.IsActive {
			snap.HasService = false
		}
	}
	return snap, nil
}
