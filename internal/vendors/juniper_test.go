package vendors

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"
)

func juniperAccessRequest(t *testing.T) *radius.Packet {
	t.Helper()
	p := radius.New(radius.CodeAccessRequest, []byte("secret"))
	p.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorDSLForum, dslAgentRemoteID, []byte{0x00, 0x06, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}))
	p.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorDSLForum, dslAgentCircuitID, []byte{0x00, 0x04, 0x00, 0x8B, 0x00, 0x02}))
	p.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorJuniper, erxDhcpMacAddr, []byte("1c:c0:4d:95:d0:30")))
	require.NoError(t, rfc2869.NASPortID_SetString(p, "ae0:12-12"))
	require.NoError(t, rfc2866.AcctSessionID_SetString(p, "12345678-1234-5678-1234-567812345678"))
	return p
}

func TestJuniperParseOption82(t *testing.T) {
	p := juniperAccessRequest(t)

	opt, err := JuniperAdapter{}.ParseOption82(p)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x06, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17}, opt.RemoteID)
	assert.Equal(t, []byte{0x00, 0x04, 0x00, 0x8B, 0x00, 0x02}, opt.CircuitID)
}

func TestJuniperParseOption82Missing(t *testing.T) {
	p := radius.New(radius.CodeAccessRequest, []byte("secret"))
	_, err := JuniperAdapter{}.ParseOption82(p)
	assert.ErrorIs(t, err, ErrMissingOpt82)
}

func TestJuniperCustomerMAC(t *testing.T) {
	p := juniperAccessRequest(t)
	assert.Equal(t, "1c:c0:4d:95:d0:30", JuniperAdapter{}.CustomerMAC(p))

	empty := radius.New(radius.CodeAccessRequest, []byte("secret"))
	assert.Empty(t, JuniperAdapter{}.CustomerMAC(empty))
}

func TestJuniperVlanIDs(t *testing.T) {
	p := juniperAccessRequest(t)
	svid, cvid := JuniperAdapter{}.VlanIDs(p)
	assert.Equal(t, 12, svid)
	assert.Equal(t, 12, cvid)
}

func TestJuniperVlanIDsMalformed(t *testing.T) {
	p := radius.New(radius.CodeAccessRequest, []byte("secret"))
	require.NoError(t, rfc2869.NASPortID_SetString(p, "ge-0/0/0"))
	svid, cvid := JuniperAdapter{}.VlanIDs(p)
	assert.Zero(t, svid)
	assert.Zero(t, cvid)
}

func TestJuniperUniqueSessionID(t *testing.T) {
	p := radius.New(radius.CodeAccountingRequest, []byte("secret"))
	require.NoError(t, rfc2866.AcctSessionID_SetString(p, "ABCDEF01-1234"))
	assert.Equal(t, "abcdef01-1234", JuniperAdapter{}.UniqueSessionID(p))
}

func TestJuniperCountersWithGigawords(t *testing.T) {
	p := radius.New(radius.CodeAccountingRequest, []byte("secret"))
	require.NoError(t, rfc2866.AcctInputOctets_Set(p, rfc2866.AcctInputOctets(123456)))
	require.NoError(t, rfc2866.AcctOutputOctets_Set(p, rfc2866.AcctOutputOctets(789)))
	require.NoError(t, rfc2869.AcctInputGigawords_Set(p, rfc2869.AcctInputGigawords(2)))
	require.NoError(t, rfc2866.AcctInputPackets_Set(p, rfc2866.AcctInputPackets(42)))

	c := JuniperAdapter{}.Counters(p)
	assert.Equal(t, int64(2)<<32|int64(123456), c.InputOctets)
	assert.Equal(t, int64(789), c.OutputOctets)
	assert.Equal(t, int64(42), c.InputPackets)
}

func TestJuniperEncodeAuthResponse(t *testing.T) {
	req := juniperAccessRequest(t)

	resp, err := JuniperAdapter{}.EncodeAuthResponse(req, AuthGrant{
		IP:       net.ParseIP("10.152.64.2"),
		SpeedIn:  11000000,
		SpeedOut: 11000000,
		BurstIn:  1375000,
		BurstOut: 1375000,
	})
	require.NoError(t, err)

	assert.Equal(t, radius.CodeAccessAccept, resp.Code)
	assert.Equal(t, "10.152.64.2", rfc2865.FramedIPAddress_Get(resp).String())
	assert.Equal(t, "SERVICE-INET(11000000,1375000,11000000,1375000)", rfc2865.UserPassword_GetString(resp))
}

func TestJuniperEncodeAuthResponseGuest(t *testing.T) {
	req := juniperAccessRequest(t)

	resp, err := JuniperAdapter{}.EncodeAuthResponse(req, AuthGrant{
		IP:    net.ParseIP("10.200.0.5"),
		Guest: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "10.200.0.5", rfc2865.FramedIPAddress_Get(resp).String())
	assert.Equal(t, "SERVICE-GUEST", rfc2865.UserPassword_GetString(resp))
}

func TestJuniperAuthResponseRoundTrip(t *testing.T) {
	grants := []AuthGrant{
		{IP: net.ParseIP("10.152.64.2"), SpeedIn: 11000000, BurstIn: 1375000, SpeedOut: 11000000, BurstOut: 1375000},
		{IP: net.ParseIP("10.152.64.3"), SpeedIn: 8000000, SpeedOut: 8000000}, // bursts derived
		{IP: net.ParseIP("10.200.0.5"), Guest: true},
	}

	for _, grant := range grants {
		resp, err := JuniperAdapter{}.EncodeAuthResponse(juniperAccessRequest(t), grant)
		require.NoError(t, err)

		// Decoding what was encoded must land back on the grant.
		assert.Equal(t, grant.IP.String(), rfc2865.FramedIPAddress_Get(resp).String())

		inet, params, ok := ParseServiceToken(rfc2865.UserPassword_GetString(resp))
		require.True(t, ok)
		assert.Equal(t, !grant.Guest, inet)
		if !grant.Guest {
			want := grant.FillBursts()
			assert.Equal(t, want.SpeedIn, params.SpeedIn)
			assert.Equal(t, want.BurstIn, params.BurstIn)
			assert.Equal(t, want.SpeedOut, params.SpeedOut)
			assert.Equal(t, want.BurstOut, params.BurstOut)
		}
	}
}

func TestJuniperEncodeCoA(t *testing.T) {
	p, err := JuniperAdapter{}.EncodeCoA([]byte("secret"), CoAInetToGuest, "user1", "sess-1", CoAParams{})
	require.NoError(t, err)

	assert.Equal(t, radius.CodeCoARequest, p.Code)
	assert.Equal(t, "user1", rfc2865.UserName_GetString(p))
	assert.Equal(t, "sess-1", rfc2866.AcctSessionID_GetString(p))
	assert.Equal(t, []byte("SERVICE-INET"), vsaLookup(p, vendorJuniper, erxServiceDeactivate))
	assert.Equal(t, []byte("SERVICE-GUEST"), vsaLookup(p, vendorJuniper, erxServiceActivate))
}

func TestJuniperEncodeCoAGuestToInet(t *testing.T) {
	params := CoAParams{SpeedIn: 2000000, BurstIn: 375000, SpeedOut: 2000000, BurstOut: 375000}
	p, err := JuniperAdapter{}.EncodeCoA([]byte("secret"), CoAGuestToInet, "user1", "sess-1", params)
	require.NoError(t, err)

	assert.Equal(t, []byte("SERVICE-GUEST"), vsaLookup(p, vendorJuniper, erxServiceDeactivate))
	assert.Equal(t, []byte("SERVICE-INET(2000000,375000,2000000,375000)"), vsaLookup(p, vendorJuniper, erxServiceActivate))
}

func TestJuniperServiceSession(t *testing.T) {
	p := radius.New(radius.CodeAccountingRequest, []byte("secret"))
	p.Add(rfc2865.VendorSpecific_Type, buildVSA(vendorJuniper, erxServiceSession, []byte("SERVICE-GUEST")))
	assert.Equal(t, "SERVICE-GUEST", JuniperAdapter{}.ServiceSession(p))
}
