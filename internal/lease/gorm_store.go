package lease

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"time"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
	"gorm.io/gorm"
)

const serializeRetries = 2

// GormStore backs the allocator onto Postgres. Allocation correctness rests
// on two things: the serializable transaction wrapping each allocation, and
// the unique index on leases.ip that turns a lost race into a retriable
// duplicate-key error.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Transaction runs fn serializable. Serialization aborts (SQLSTATE 40001)
// are retried in place: the transaction saw no partial effects.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	run := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&GormStore{db: tx})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	err := run()
	for attempt := 0; attempt < serializeRetries && database.IsSerializationFailure(err); attempt++ {
		err = run()
	}
	return err
}

func (s *GormStore) PoolsByKind(ctx context.Context, kind models.PoolKind) ([]models.IPPool, error) {
	var pools []models.IPPool
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Where("kind = ?", kind).
		Order("network").
		Find(&pools).Error
	return pools, err
}

func (s *GormStore) CurrentLease(ctx context.Context, customerID *uint, mac string, poolID uint) (*models.Lease, error) {
	q := s.db.WithContext(ctx).Where("mac = ? AND pool_id = ?", mac, poolID)
	if customerID == nil {
		q = q.Where("customer_id IS NULL")
	} else {
		q = q.Where("customer_id = ?", *customerID)
	}

	var l models.Lease
	err := q.Order("lease_time DESC").First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *GormStore) StaticLeaseFor(ctx context.Context, customerID uint, mac string) (*models.Lease, error) {
	var l models.Lease
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND is_dynamic = ? AND (mac = '' OR mac = ?)", customerID, false, mac).
		Order("id").
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *GormStore) StaticLeaseByMAC(ctx context.Context, mac string) (*models.Lease, error) {
	var l models.Lease
	err := s.db.WithContext(ctx).
		Where("mac = ? AND is_dynamic = ?", mac, false).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// LowestFreeIP locks the pool row as the per-pool allocation lock, then
// scans the usable range against the taken addresses. Network, broadcast
// and gateway addresses are never handed out.
func (s *GormStore) LowestFreeIP(ctx context.Context, pool *models.IPPool) (string, error) {
	if err := s.db.WithContext(ctx).
		Exec("SELECT id FROM ip_pools WHERE id = ? FOR UPDATE", pool.ID).Error; err != nil {
		return "", err
	}

	var taken []string
	if err := s.db.WithContext(ctx).
		Model(&models.Lease{}).
		Where("pool_id = ? OR pool_id IS NULL", pool.ID).
		Pluck("ip", &taken).Error; err != nil {
		return "", err
	}

	used := make(map[uint32]bool, len(taken))
	for _, ip := range taken {
		if parsed := net.ParseIP(ip); parsed != nil {
			used[models.IPToUint32(parsed)] = true
		}
	}
	for _, reserved := range reservedAddrs(pool) {
		used[reserved] = true
	}

	start := net.ParseIP(pool.IPStart)
	end := net.ParseIP(pool.IPEnd)
	if start == nil || end == nil {
		return "", nil
	}
	for v := models.IPToUint32(start); v <= models.IPToUint32(end); v++ {
		if !used[v] {
			return models.Uint32ToIP(v).String(), nil
		}
	}
	return "", nil
}

func reservedAddrs(pool *models.IPPool) []uint32 {
	var out []uint32
	if gw := net.ParseIP(pool.Gateway); gw != nil {
		out = append(out, models.IPToUint32(gw))
	}
	if _, ipnet, err := net.ParseCIDR(pool.Network); err == nil {
		network := models.IPToUint32(ipnet.IP)
		ones, bits := ipnet.Mask.Size()
		broadcast := network | (1<<(bits-ones) - 1)
		out = append(out, network, broadcast)
	}
	return out
}

func (s *GormStore) Create(ctx context.Context, l *models.Lease) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *GormStore) Save(ctx context.Context, l *models.Lease) error {
	return s.db.WithContext(ctx).Save(l).Error
}

func (s *GormStore) ByID(ctx context.Context, id uint) (*models.Lease, error) {
	var l models.Lease
	err := s.db.WithContext(ctx).Preload("Pool").First(&l, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *GormStore) ByIP(ctx context.Context, ip string) (*models.Lease, error) {
	var l models.Lease
	err := s.db.WithContext(ctx).Preload("Pool").Where("ip = ?", ip).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *GormStore) ReleaseDynamic(ctx context.Context, f ReleaseFilter) (int64, error) {
	q := s.db.WithContext(ctx).Where("is_dynamic = ?", true)
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.PoolID != nil {
		q = q.Where("pool_id = ?", *f.PoolID)
	}
	if f.IP != "" {
		q = q.Where("ip = ?", f.IP)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	res := q.Delete(&models.Lease{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("is_dynamic = ? AND last_update < ?", true, cutoff).
		Delete(&models.Lease{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) IsDuplicate(err error) bool {
	return database.IsUniqueViolation(err)
}
