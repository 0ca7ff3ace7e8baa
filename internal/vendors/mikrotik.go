package vendors

import (
	"fmt"
	"net"
	"strings"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"
)

const (
	vendorMikrotik uint32 = 14988

	mikrotikRateLimit   byte = 8
	mikrotikAddressList byte = 19
)

// Name of the address list guest sessions are dropped into on the router.
const mikrotikGuestList = "guest"

// MikrotikAdapter covers RouterOS BRASes. These carry the subscriber MAC in
// User-Name (or Calling-Station-Id), send no Option-82 and no stacked
// VLANs, and take speeds as a Mikrotik-Rate-Limit string.
type MikrotikAdapter struct{}

func (MikrotikAdapter) Vendor() string { return "mikrotik" }

func (MikrotikAdapter) ParseOption82(p *radius.Packet) (Option82, error) {
	return Option82{}, ErrMissingOpt82
}

func (MikrotikAdapter) CustomerMAC(p *radius.Packet) string {
	for _, candidate := range []string{
		rfc2865.UserName_GetString(p),
		rfc2865.CallingStationID_GetString(p),
	} {
		candidate = strings.ReplaceAll(strings.TrimSpace(candidate), "-", ":")
		if mac, err := net.ParseMAC(candidate); err == nil {
			return mac.String()
		}
	}
	return ""
}

func (MikrotikAdapter) VlanIDs(p *radius.Packet) (int, int) {
	return 0, 0
}

func (MikrotikAdapter) RadiusUsername(p *radius.Packet) string {
	return rfc2865.UserName_GetString(p)
}

func (MikrotikAdapter) UniqueSessionID(p *radius.Packet) string {
	// RouterOS session ids are hex like "0x8160000c"; lowercase without the
	// prefix is what CoA lookups on the router require.
	id := strings.ToLower(rfc2866.AcctSessionID_GetString(p))
	return strings.TrimPrefix(id, "0x")
}

func (MikrotikAdapter) Counters(p *radius.Packet) Counters {
	return Counters{
		InputOctets:   CombineGigawords(uint32(rfc2866.AcctInputOctets_Get(p)), uint32(rfc2869.AcctInputGigawords_Get(p))),
		OutputOctets:  CombineGigawords(uint32(rfc2866.AcctOutputOctets_Get(p)), uint32(rfc2869.AcctOutputGigawords_Get(p))),
		InputPackets:  int64(rfc2866.AcctInputPackets_Get(p)),
		OutputPackets: int64(rfc2866.AcctOutputPackets_Get(p)),
	}
}

func (MikrotikAdapter) SessionTime(p *radius.Packet) int64 {
	return int64(rfc2866.AcctSessionTime_Get(p))
}

func (MikrotikAdapter) ServiceSession(p *radius.Packet) string {
	// RouterOS reports no service-session attribute; the enforced profile is
	// inferred from the address list the session was accepted into.
	if string(vsaLookup(p, vendorMikrotik, mikrotikAddressList)) == mikrotikGuestList {
		return TokenGuest
	}
	return ""
}

// rateLimitString renders "rx/tx rx-burst/tx-burst" in RouterOS units.
// RouterOS reads rate limits from the router's point of view, so the
// subscriber's download (speed_in) is the transmit side.
func rateLimitString(in, out, burstIn, burstOut int64) string {
	s := fmt.Sprintf("%dk/%dk", out/1000, in/1000)
	if burstIn > 0 || burstOut > 0 {
		// Bursts are byte figures; RouterOS takes bits per second.
		s = fmt.Sprintf("%s %dk/%dk", s, burstOut*8/1000, burstIn*8/1000)
	}
	return s
}

func (MikrotikAdapter) EncodeAuthResponse(req *radius.Packet, grant AuthGrant) (*radius.Packet, error) {
	resp := req.Response(radius.CodeAccessAccept)
	if grant.IP != nil {
		if err := rfc2865.FramedIPAddress_Set(resp, grant.IP); err != nil {
			return nil, err
		}
	}
	if grant.Guest {
		resp.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorMikrotik, mikrotikAddressList, []byte(mikrotikGuestList)))
		return resp, nil
	}
	grant = grant.FillBursts()
	limit := rateLimitString(grant.SpeedIn, grant.SpeedOut, grant.BurstIn, grant.BurstOut)
	resp.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorMikrotik, mikrotikRateLimit, []byte(limit)))
	return resp, nil
}

func (MikrotikAdapter) EncodeCoA(secret []byte, kind CoAKind, username, sessionID string, params CoAParams) (*radius.Packet, error) {
	packet := radius.New(radius.CodeCoARequest, secret)
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, sessionID); err != nil {
			return nil, err
		}
	}

	if kind == CoAInetToGuest {
		packet.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorMikrotik, mikrotikAddressList, []byte(mikrotikGuestList)))
		// A symbolic floor; guests are shaped by the router's guest profile.
		packet.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorMikrotik, mikrotikRateLimit, []byte("512k/512k")))
		return packet, nil
	}

	limit := rateLimitString(params.SpeedIn, params.SpeedOut, params.BurstIn, params.BurstOut)
	packet.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorMikrotik, mikrotikRateLimit, []byte(limit)))
	return packet, nil
}
