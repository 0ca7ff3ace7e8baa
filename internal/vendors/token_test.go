package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBurst(t *testing.T) {
	// floor(speed * 1.5 / 8)
	assert.Equal(t, int64(2062500), DefaultBurst(11000000))
	assert.Equal(t, int64(187500), DefaultBurst(1000000))
	assert.Equal(t, int64(0), DefaultBurst(0))
}

func TestFormatServiceTokenGuest(t *testing.T) {
	assert.Equal(t, "SERVICE-GUEST", FormatServiceToken(AuthGrant{Guest: true}))
}

func TestFormatServiceTokenInet(t *testing.T) {
	g := AuthGrant{SpeedIn: 11000000, SpeedOut: 11000000, BurstIn: 1375000, BurstOut: 1375000}
	assert.Equal(t, "SERVICE-INET(11000000,1375000,11000000,1375000)", FormatServiceToken(g))
}

func TestFormatServiceTokenDefaultsBursts(t *testing.T) {
	g := AuthGrant{SpeedIn: 8000000, SpeedOut: 4000000}
	assert.Equal(t, "SERVICE-INET(8000000,1500000,4000000,750000)", FormatServiceToken(g))
}

func TestParseServiceToken(t *testing.T) {
	inet, params, ok := ParseServiceToken("SERVICE-INET(11000000,1375000,11000000,1375000)")
	assert.True(t, ok)
	assert.True(t, inet)
	assert.Equal(t, int64(11000000), params.SpeedIn)
	assert.Equal(t, int64(1375000), params.BurstIn)
	assert.Equal(t, int64(11000000), params.SpeedOut)
	assert.Equal(t, int64(1375000), params.BurstOut)

	inet, _, ok = ParseServiceToken("SERVICE-GUEST")
	assert.True(t, ok)
	assert.False(t, inet)

	_, _, ok = ParseServiceToken("SVC-MGMT")
	assert.False(t, ok)

	// A bare inet token without parameters still classifies.
	inet, _, ok = ParseServiceToken("SERVICE-INET")
	assert.True(t, ok)
	assert.True(t, inet)
}

func TestCoAToken(t *testing.T) {
	assert.Equal(t, "SERVICE-GUEST", CoAToken(CoAInetToGuest, CoAParams{}))

	token := CoAToken(CoAGuestToInet, CoAParams{SpeedIn: 2000000, BurstIn: 375000, SpeedOut: 2000000, BurstOut: 375000})
	assert.Equal(t, "SERVICE-INET(2000000,375000,2000000,375000)", token)
}
