package models

import (
	"net"
	"time"
)

// PoolKind classifies what a pool's addresses are handed out for.
type PoolKind string

const (
	PoolKindInternet PoolKind = "internet"
	PoolKindGuest    PoolKind = "guest"
	PoolKindDevices  PoolKind = "devices"
	PoolKindAdmin    PoolKind = "admin"
	PoolKindTrusted  PoolKind = "trusted"
)

// IPPool represents a block of addresses leases are allocated from.
// VlanTag nil means the pool accepts any VLAN.
type IPPool struct {
	ID        uint     `gorm:"column:id;primaryKey" json:"id"`
	Name      string   `gorm:"column:name;size:100;not null" json:"name"`
	Network   string   `gorm:"column:network;size:18;not null" json:"network"` // CIDR
	Kind      PoolKind `gorm:"column:kind;size:20;not null;index" json:"kind"`
	IPStart   string   `gorm:"column:ip_start;size:15;not null" json:"ip_start"`
	IPEnd     string   `gorm:"column:ip_end;size:15;not null" json:"ip_end"`
	Gateway   string   `gorm:"column:gateway;size:15" json:"gateway"`
	VlanTag   *int     `gorm:"column:vlan_tag;index" json:"vlan_tag"`
	IsDynamic bool     `gorm:"column:is_dynamic;default:true" json:"is_dynamic"`

	Groups []SubscriberGroup `gorm:"many2many:ip_pool_groups" json:"groups"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (IPPool) TableName() string {
	return "ip_pools"
}

// Validate checks the pool's internal invariants: a parseable network,
// and ip_start <= ip_end with both inside the network.
func (p *IPPool) Validate() bool {
	_, ipnet, err := net.ParseCIDR(p.Network)
	if err != nil {
		return false
	}
	start := net.ParseIP(p.IPStart)
	end := net.ParseIP(p.IPEnd)
	if start == nil || end == nil {
		return false
	}
	if !ipnet.Contains(start) || !ipnet.Contains(end) {
		return false
	}
	return IPToUint32(start) <= IPToUint32(end)
}

// Contains reports whether ip falls inside the pool's usable range.
func (p *IPPool) Contains(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	v := IPToUint32(parsed)
	start := net.ParseIP(p.IPStart)
	end := net.ParseIP(p.IPEnd)
	if start == nil || end == nil {
		return false
	}
	return IPToUint32(start) <= v && v <= IPToUint32(end)
}

// Overlaps reports whether two pools' networks share any address.
func (p *IPPool) Overlaps(other *IPPool) bool {
	_, a, err := net.ParseCIDR(p.Network)
	if err != nil {
		return false
	}
	_, b, err := net.ParseCIDR(other.Network)
	if err != nil {
		return false
	}
	return a.Contains(b.IP) || b.Contains(a.IP)
}

// MatchesVlan reports whether the pool can serve a request tagged vid.
// Untagged pools match everything; vid 0 means the vendor supplied no VLAN.
func (p *IPPool) MatchesVlan(vid int) bool {
	if p.VlanTag == nil {
		return true
	}
	return *p.VlanTag == vid
}

// IPToUint32 converts an IPv4 address to its numeric form.
func IPToUint32(ip net.IP) uint32 {
	ip = ip.To4()
	if ip == nil {
		return 0
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// Uint32ToIP converts the numeric form back to an IPv4 address.
func Uint32ToIP(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}
