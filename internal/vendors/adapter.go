package vendors

import (
	"errors"
	"fmt"
	"net"

	"layeh.com/radius"
	"layeh.com/radius/rfc2866"
)

// MessageKind is the normalized request classification the frontend tags
// each bundle with.
type MessageKind string

const (
	KindAccessRequest MessageKind = "Access-Request"
	KindAcctStart     MessageKind = "Acct-Start"
	KindAcctStop      MessageKind = "Acct-Stop"
	KindAcctInterim   MessageKind = "Acct-Interim-Update"
	KindUnknown       MessageKind = "Unknown"
)

// Bundle is one decoded RADIUS request as handed to the core.
type Bundle struct {
	Vendor string
	Kind   MessageKind
	Packet *radius.Packet
}

// Option82 carries the raw DHCP relay agent information sub-options.
type Option82 struct {
	RemoteID  []byte
	CircuitID []byte
}

// Counters are the four accounting counters after gigaword reconstruction.
type Counters struct {
	InputOctets   int64
	OutputOctets  int64
	InputPackets  int64
	OutputPackets int64
}

// AuthGrant describes the Access-Accept to build. Guest grants ignore the
// speed fields.
type AuthGrant struct {
	IP       net.IP
	Guest    bool
	SpeedIn  int64
	SpeedOut int64
	BurstIn  int64
	BurstOut int64
}

// CoAKind selects the direction of a service flip.
type CoAKind string

const (
	CoAInetToGuest CoAKind = "inet2guest"
	CoAGuestToInet CoAKind = "guest2inet"
)

// CoAParams carries the speeds for guest→inet flips.
type CoAParams struct {
	SpeedIn  int64
	SpeedOut int64
	BurstIn  int64
	BurstOut int64
}

// ErrMissingOpt82 is returned when a packet carries no usable relay agent
// information.
var ErrMissingOpt82 = errors.New("missing option-82 relay information")

// Adapter is the only layer that touches vendor attribute names. Everything
// upstream of it speaks the normalized record.
type Adapter interface {
	Vendor() string

	ParseOption82(p *radius.Packet) (Option82, error)
	CustomerMAC(p *radius.Packet) string // "" if the vendor carries none
	VlanIDs(p *radius.Packet) (svid, cvid int)
	RadiusUsername(p *radius.Packet) string
	UniqueSessionID(p *radius.Packet) string
	Counters(p *radius.Packet) Counters
	SessionTime(p *radius.Packet) int64
	ServiceSession(p *radius.Packet) string // BRAS-enforced service name, "" if absent

	EncodeAuthResponse(req *radius.Packet, grant AuthGrant) (*radius.Packet, error)
	EncodeCoA(secret []byte, kind CoAKind, username, sessionID string, params CoAParams) (*radius.Packet, error)
}

// ForVendor returns the adapter for a vendor tag.
func ForVendor(vendor string) (Adapter, error) {
	switch vendor {
	case "juniper":
		return JuniperAdapter{}, nil
	case "mikrotik":
		return MikrotikAdapter{}, nil
	}
	return nil, fmt.Errorf("unknown vendor: %s", vendor)
}

// ClassifyAcctStatus maps Acct-Status-Type to a normalized kind. Shared by
// all adapters since the attribute is standard.
func ClassifyAcctStatus(p *radius.Packet) MessageKind {
	switch rfc2866.AcctStatusType_Get(p) {
	case rfc2866.AcctStatusType_Value_Start:
		return KindAcctStart
	case rfc2866.AcctStatusType_Value_Stop:
		return KindAcctStop
	case rfc2866.AcctStatusType_Value_InterimUpdate:
		return KindAcctInterim
	}
	return KindUnknown
}

// CombineGigawords reconstructs a 64-bit counter from its 32-bit base and
// the companion gigaword attribute. RFC 2869 defines the gigaword as the
// number of times the base wrapped 2^32, not 10^9.
func CombineGigawords(base uint32, gigawords uint32) int64 {
	return int64(gigawords)<<32 | int64(base)
}

// vsaLookup scans Vendor-Specific attributes for one sub-attribute of the
// given vendor. Multiple VSAs of the same vendor may be present; the first
// matching sub-attribute wins.
func vsaLookup(p *radius.Packet, vendorID uint32, subType byte) []byte {
	for _, attr := range p.Attributes {
		if attr.Type != 26 { // Vendor-Specific
			continue
		}
		b := attr.Attribute
		if len(b) < 6 {
			continue
		}
		gotVendor := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		if gotVendor != vendorID {
			continue
		}
		// Walk the sub-attribute TLVs inside the VSA
		rest := b[4:]
		for len(rest) >= 2 {
			t := rest[0]
			l := int(rest[1])
			if l < 2 || l > len(rest) {
				break
			}
			if t == subType {
				return rest[2:l]
			}
			rest = rest[l:]
		}
	}
	return nil
}

// buildVSA builds a Vendor-Specific attribute body: Vendor-ID (4) +
// sub-type (1) + sub-length (1) + value.
func buildVSA(vendorID uint32, subType byte, value []byte) radius.Attribute {
	result := make([]byte, 6+len(value))
	result[0] = byte(vendorID >> 24)
	result[1] = byte(vendorID >> 16)
	result[2] = byte(vendorID >> 8)
	result[3] = byte(vendorID)
	result[4] = subType
	result[5] = byte(2 + len(value))
	copy(result[6:], value)
	return radius.Attribute(result)
}
