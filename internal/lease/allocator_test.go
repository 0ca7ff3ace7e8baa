package lease

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/sessiond/internal/models"
)

var errDuplicateIP = errors.New("duplicate ip")

// memStore is an in-memory Store with the same visible semantics as the
// Postgres-backed one: unique IPs, lowest-free scanning, reserved
// addresses skipped.
type memStore struct {
	mu     sync.Mutex
	pools  []models.IPPool
	leases map[uint]*models.Lease
	nextID uint
}

func newMemStore(pools ...models.IPPool) *memStore {
	return &memStore{pools: pools, leases: make(map[uint]*models.Lease), nextID: 1}
}

func (s *memStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

func (s *memStore) PoolsByKind(ctx context.Context, kind models.PoolKind) ([]models.IPPool, error) {
	var out []models.IPPool
	for _, p := range s.pools {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) CurrentLease(ctx context.Context, customerID *uint, mac string, poolID uint) (*models.Lease, error) {
	for _, l := range s.leases {
		if l.MAC != mac || l.PoolID == nil || *l.PoolID != poolID {
			continue
		}
		if (customerID == nil) != (l.CustomerID == nil) {
			continue
		}
		if customerID != nil && *customerID != *l.CustomerID {
			continue
		}
		return l, nil
	}
	return nil, nil
}

func (s *memStore) StaticLeaseFor(ctx context.Context, customerID uint, mac string) (*models.Lease, error) {
	for _, l := range s.leases {
		if !l.IsDynamic && l.CustomerID != nil && *l.CustomerID == customerID && (l.MAC == "" || l.MAC == mac) {
			return l, nil
		}
	}
	return nil, nil
}

func (s *memStore) StaticLeaseByMAC(ctx context.Context, mac string) (*models.Lease, error) {
	for _, l := range s.leases {
		if !l.IsDynamic && l.MAC == mac {
			return l, nil
		}
	}
	return nil, nil
}

func (s *memStore) LowestFreeIP(ctx context.Context, pool *models.IPPool) (string, error) {
	used := make(map[uint32]bool)
	for _, l := range s.leases {
		if ip := net.ParseIP(l.IP); ip != nil {
			used[models.IPToUint32(ip)] = true
		}
	}
	if gw := net.ParseIP(pool.Gateway); gw != nil {
		used[models.IPToUint32(gw)] = true
	}
	if _, ipnet, err := net.ParseCIDR(pool.Network); err == nil {
		network := models.IPToUint32(ipnet.IP)
		ones, bits := ipnet.Mask.Size()
		used[network] = true
		used[network|(1<<(bits-ones)-1)] = true
	}

	start := models.IPToUint32(net.ParseIP(pool.IPStart))
	end := models.IPToUint32(net.ParseIP(pool.IPEnd))
	for v := start; v <= end; v++ {
		if !used[v] {
			return models.Uint32ToIP(v).String(), nil
		}
	}
	return "", nil
}

func (s *memStore) Create(ctx context.Context, l *models.Lease) error {
	for _, existing := range s.leases {
		if existing.IP == l.IP {
			return errDuplicateIP
		}
	}
	l.ID = s.nextID
	s.nextID++
	cp := *l
	s.leases[l.ID] = &cp
	return nil
}

func (s *memStore) Save(ctx context.Context, l *models.Lease) error {
	cp := *l
	s.leases[l.ID] = &cp
	return nil
}

func (s *memStore) ByID(ctx context.Context, id uint) (*models.Lease, error) {
	l, ok := s.leases[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) ByIP(ctx context.Context, ip string) (*models.Lease, error) {
	for _, l := range s.leases {
		if l.IP == ip {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ReleaseDynamic(ctx context.Context, f ReleaseFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.leases {
		if !l.IsDynamic {
			continue
		}
		if f.CustomerID != nil && (l.CustomerID == nil || *l.CustomerID != *f.CustomerID) {
			continue
		}
		if f.PoolID != nil && (l.PoolID == nil || *l.PoolID != *f.PoolID) {
			continue
		}
		if f.IP != "" && l.IP != f.IP {
			continue
		}
		if f.SessionID != "" && l.SessionID != f.SessionID {
			continue
		}
		delete(s.leases, id)
		n++
	}
	return n, nil
}

func (s *memStore) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, l := range s.leases {
		if l.IsDynamic && l.LastUpdate.Before(cutoff) {
			delete(s.leases, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) IsDuplicate(err error) bool {
	return errors.Is(err, errDuplicateIP)
}

func uintPtr(v uint) *uint { return &v }
func intPtr(v int) *int    { return &v }

func internetPool(id uint, vlan *int) models.IPPool {
	return models.IPPool{
		ID:        id,
		Name:      "inet",
		Network:   "10.152.64.0/24",
		Kind:      models.PoolKindInternet,
		IPStart:   "10.152.64.1",
		IPEnd:     "10.152.64.254",
		Gateway:   "10.152.64.1",
		VlanTag:   vlan,
		IsDynamic: true,
	}
}

func inetRequest() Request {
	return Request{
		CustomerMAC:    "1c:c0:4d:95:d0:30",
		CustomerID:     uintPtr(7),
		IsDynamic:      true,
		Vid:            12,
		PoolKind:       models.PoolKindInternet,
		RadiusUsername: "user7",
		SessionID:      "sess-1",
	}
}

func TestAllocatesLowestFreeAddress(t *testing.T) {
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	res, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	// .0 is the network, .1 the gateway; .2 is the first usable address.
	assert.Equal(t, "10.152.64.2", res.IP)
	assert.True(t, res.IsAssigned)
	assert.True(t, res.IsDynamic)
	assert.Equal(t, uint(1), res.PoolID)
}

func TestAllocationIsIdempotentPerIdentity(t *testing.T) {
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	first, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	second, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	assert.Equal(t, first.IP, second.IP)
	assert.Equal(t, first.LeaseID, second.LeaseID)
	assert.True(t, first.IsAssigned)
	assert.False(t, second.IsAssigned)
}

func TestDistinctIdentitiesGetDistinctAddresses(t *testing.T) {
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	a, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	req := inetRequest()
	req.CustomerID = uintPtr(8)
	req.CustomerMAC = "aa:bb:cc:dd:ee:ff"
	b, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.IP, b.IP)
}

func TestPoolExhaustion(t *testing.T) {
	pool := internetPool(1, intPtr(12))
	pool.IPStart = "10.152.64.2"
	pool.IPEnd = "10.152.64.3"
	store := newMemStore(pool)
	alloc := NewAllocator(store)

	for i := uint(1); i <= 2; i++ {
		req := inetRequest()
		req.CustomerID = uintPtr(i)
		req.CustomerMAC = "aa:bb:cc:dd:ee:0" + string(rune('0'+i))
		_, err := alloc.FetchSubscriberLease(context.Background(), req)
		require.NoError(t, err)
	}

	req := inetRequest()
	req.CustomerID = uintPtr(9)
	req.CustomerMAC = "aa:bb:cc:dd:ee:99"
	_, err := alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestSingleAddressPool(t *testing.T) {
	pool := internetPool(1, intPtr(12))
	pool.IPStart = "10.152.64.2"
	pool.IPEnd = "10.152.64.2"
	store := newMemStore(pool)
	alloc := NewAllocator(store)

	res, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)
	assert.Equal(t, "10.152.64.2", res.IP)
}

func TestUnknownSubscriberGuestOnly(t *testing.T) {
	guest := models.IPPool{
		ID: 2, Name: "guest", Network: "10.200.0.0/24", Kind: models.PoolKindGuest,
		IPStart: "10.200.0.2", IPEnd: "10.200.0.254", Gateway: "10.200.0.1", IsDynamic: true,
	}
	store := newMemStore(internetPool(1, intPtr(12)), guest)
	alloc := NewAllocator(store)

	req := Request{
		CustomerMAC: "de:ad:be:ef:00:01",
		IsDynamic:   true,
		PoolKind:    models.PoolKindInternet,
	}
	_, err := alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoLease)

	req.PoolKind = models.PoolKindGuest
	res, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "10.200.0.2", res.IP)
	assert.Nil(t, res.CustomerID)
}

func TestVlanSelection(t *testing.T) {
	vlan12 := internetPool(1, intPtr(12))
	vlan13 := models.IPPool{
		ID: 2, Name: "inet-13", Network: "10.152.65.0/24", Kind: models.PoolKindInternet,
		IPStart: "10.152.65.2", IPEnd: "10.152.65.254", Gateway: "10.152.65.1",
		VlanTag: intPtr(13), IsDynamic: true,
	}
	store := newMemStore(vlan12, vlan13)
	alloc := NewAllocator(store)

	req := inetRequest()
	req.Vid = 13
	res, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint(2), res.PoolID)

	// No pool serves VLAN 99.
	req = inetRequest()
	req.CustomerID = uintPtr(8)
	req.Vid = 99
	_, err = alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestExactVlanPoolPreferredOverWildcard(t *testing.T) {
	wildcard := models.IPPool{
		ID: 1, Name: "any-vlan", Network: "10.100.0.0/24", Kind: models.PoolKindInternet,
		IPStart: "10.100.0.2", IPEnd: "10.100.0.254", Gateway: "10.100.0.1", IsDynamic: true,
	}
	exact := internetPool(2, intPtr(12))
	store := newMemStore(wildcard, exact)
	alloc := NewAllocator(store)

	res, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)
	assert.Equal(t, uint(2), res.PoolID)
}

func TestGroupAffiliation(t *testing.T) {
	affiliated := internetPool(1, intPtr(12))
	affiliated.Groups = []models.SubscriberGroup{{ID: 5, Name: "G"}}
	store := newMemStore(affiliated)
	alloc := NewAllocator(store)

	// Wrong group: pool not eligible.
	req := inetRequest()
	req.CustomerGroup = uintPtr(6)
	_, err := alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	req.CustomerGroup = uintPtr(5)
	res, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.PoolID)
}

func TestStaticLeaseBinding(t *testing.T) {
	store := newMemStore()
	store.leases[100] = &models.Lease{
		ID: 100, IP: "10.10.0.50", CustomerID: uintPtr(7), IsDynamic: false,
	}
	store.nextID = 101
	alloc := NewAllocator(store)

	req := inetRequest()
	req.IsDynamic = false
	res, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "10.10.0.50", res.IP)
	assert.False(t, res.IsAssigned)

	// First use bound the MAC.
	l, _ := store.ByID(context.Background(), 100)
	assert.Equal(t, "1c:c0:4d:95:d0:30", l.MAC)
}

func TestStaticLeaseWrongMACNotServed(t *testing.T) {
	store := newMemStore()
	store.leases[100] = &models.Lease{
		ID: 100, IP: "10.10.0.50", MAC: "aa:aa:aa:aa:aa:aa", CustomerID: uintPtr(7), IsDynamic: false,
	}
	store.nextID = 101
	alloc := NewAllocator(store)

	req := inetRequest()
	req.IsDynamic = false
	_, err := alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoLease)
}

func TestStaticRequestWithoutSubscriberRefused(t *testing.T) {
	// A static request can arrive without a subscriber when the identity
	// pipeline fell through to guest; it must be refused, not served.
	store := newMemStore()
	alloc := NewAllocator(store)

	req := Request{
		CustomerMAC: "de:ad:be:ef:00:01",
		IsDynamic:   false,
		PoolKind:    models.PoolKindGuest,
	}
	_, err := alloc.FetchSubscriberLease(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoLease)
}

func TestClonedMACGetsOwnLease(t *testing.T) {
	// Two different subscribers presenting the same customer MAC must not
	// share an address.
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	a, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	req := inetRequest()
	req.CustomerID = uintPtr(8)
	b, err := alloc.FetchSubscriberLease(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.IP, b.IP)
}

func TestConcurrentAllocationsYieldDistinctAddresses(t *testing.T) {
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	const workers = 20
	results := make([]*Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := inetRequest()
			req.CustomerID = uintPtr(uint(100 + i))
			req.CustomerMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, byte(i)}.String()
			res, err := alloc.FetchSubscriberLease(context.Background(), req)
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, res := range results {
		assert.False(t, seen[res.IP], "ip %s allocated twice", res.IP)
		seen[res.IP] = true
	}
}

func TestReapStale(t *testing.T) {
	store := newMemStore(internetPool(1, intPtr(12)))
	alloc := NewAllocator(store)

	_, err := alloc.FetchSubscriberLease(context.Background(), inetRequest())
	require.NoError(t, err)

	// Backdate the lease beyond the threshold.
	for _, l := range store.leases {
		l.LastUpdate = time.Now().Add(-2 * time.Hour)
	}

	n, err := alloc.ReapStale(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, store.leases)
}
