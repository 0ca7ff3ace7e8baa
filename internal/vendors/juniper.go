package vendors

import (
	"net"
	"strconv"
	"strings"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"
)

// Vendor IDs and sub-attributes used on the Juniper/ERX path. The relay
// agent sub-options ride in the DSL Forum VSA (RFC 4679), the rest in the
// Unisphere VSA.
const (
	vendorDSLForum uint32 = 3561
	vendorJuniper  uint32 = 4874

	dslAgentCircuitID byte = 1
	dslAgentRemoteID  byte = 2

	erxServiceSession    byte = 24
	erxDhcpMacAddr       byte = 56
	erxServiceActivate   byte = 65
	erxServiceDeactivate byte = 66
)

// JuniperAdapter decodes ERX-style bundles: DHCP-relayed subscribers with
// Option-82 in DSL Forum sub-options and stacked VLANs in NAS-Port-Id.
type JuniperAdapter struct{}

func (JuniperAdapter) Vendor() string { return "juniper" }

func (JuniperAdapter) ParseOption82(p *radius.Packet) (Option82, error) {
	opt := Option82{
		RemoteID:  vsaLookup(p, vendorDSLForum, dslAgentRemoteID),
		CircuitID: vsaLookup(p, vendorDSLForum, dslAgentCircuitID),
	}
	if len(opt.RemoteID) == 0 && len(opt.CircuitID) == 0 {
		return Option82{}, ErrMissingOpt82
	}
	return opt, nil
}

func (JuniperAdapter) CustomerMAC(p *radius.Packet) string {
	raw := vsaLookup(p, vendorJuniper, erxDhcpMacAddr)
	if len(raw) == 0 {
		return ""
	}
	mac, err := net.ParseMAC(strings.TrimSpace(string(raw)))
	if err != nil {
		return ""
	}
	return mac.String()
}

// VlanIDs parses NAS-Port-Id of the form "ae0:<svid>-<cvid>". Both are 0
// when the BRAS sends no VLAN information.
func (JuniperAdapter) VlanIDs(p *radius.Packet) (int, int) {
	portID := rfc2869.NASPortID_GetString(p)
	idx := strings.LastIndex(portID, ":")
	if idx < 0 {
		return 0, 0
	}
	vlans := strings.SplitN(portID[idx+1:], "-", 2)
	if len(vlans) != 2 {
		return 0, 0
	}
	svid, err1 := strconv.Atoi(vlans[0])
	cvid, err2 := strconv.Atoi(vlans[1])
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return svid, cvid
}

func (JuniperAdapter) RadiusUsername(p *radius.Packet) string {
	return rfc2865.UserName_GetString(p)
}

func (JuniperAdapter) UniqueSessionID(p *radius.Packet) string {
	return strings.ToLower(rfc2866.AcctSessionID_GetString(p))
}

func (JuniperAdapter) Counters(p *radius.Packet) Counters {
	return Counters{
		InputOctets:   CombineGigawords(uint32(rfc2866.AcctInputOctets_Get(p)), uint32(rfc2869.AcctInputGigawords_Get(p))),
		OutputOctets:  CombineGigawords(uint32(rfc2866.AcctOutputOctets_Get(p)), uint32(rfc2869.AcctOutputGigawords_Get(p))),
		InputPackets:  int64(rfc2866.AcctInputPackets_Get(p)),
		OutputPackets: int64(rfc2866.AcctOutputPackets_Get(p)),
	}
}

func (JuniperAdapter) SessionTime(p *radius.Packet) int64 {
	return int64(rfc2866.AcctSessionTime_Get(p))
}

func (JuniperAdapter) ServiceSession(p *radius.Packet) string {
	return string(vsaLookup(p, vendorJuniper, erxServiceSession))
}

// EncodeAuthResponse builds the Access-Accept. The assigned IP goes in
// Framed-IP-Address and the activation token in User-Password, which is
// what the ERX service profiles read it from.
func (JuniperAdapter) EncodeAuthResponse(req *radius.Packet, grant AuthGrant) (*radius.Packet, error) {
	resp := req.Response(radius.CodeAccessAccept)
	if grant.IP != nil {
		if err := rfc2865.FramedIPAddress_Set(resp, grant.IP); err != nil {
			return nil, err
		}
	}
	if err := rfc2865.UserPassword_SetString(resp, FormatServiceToken(grant)); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeCoA deactivates the currently enforced profile and activates the
// target one in a single CoA-Request.
func (JuniperAdapter) EncodeCoA(secret []byte, kind CoAKind, username, sessionID string, params CoAParams) (*radius.Packet, error) {
	packet := radius.New(radius.CodeCoARequest, secret)
	if err := rfc2865.UserName_SetString(packet, username); err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := rfc2866.AcctSessionID_SetString(packet, sessionID); err != nil {
			return nil, err
		}
	}

	deactivate := TokenGuest
	if kind == CoAInetToGuest {
		deactivate = tokenInetPrefix
	}
	packet.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorJuniper, erxServiceDeactivate, []byte(deactivate)))
	packet.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorJuniper, erxServiceActivate, []byte(CoAToken(kind, params))))
	return packet, nil
}
