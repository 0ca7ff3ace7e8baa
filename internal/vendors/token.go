package vendors

import (
	"fmt"
	"strconv"
	"strings"
)

// Service activation tokens as the BRAS consumes them. The internet token
// carries four bits-per-second figures: in, in-burst, out, out-burst.
const (
	tokenInetPrefix = "SERVICE-INET"
	TokenGuest      = "SERVICE-GUEST"
)

// DefaultBurst derives the burst rate from a speed when the service does
// not override it: floor(speed * 1.5 / 8).
func DefaultBurst(speed int64) int64 {
	return speed * 3 / 16
}

// FillBursts applies DefaultBurst to any zero burst field of the grant.
func (g AuthGrant) FillBursts() AuthGrant {
	if g.BurstIn == 0 {
		g.BurstIn = DefaultBurst(g.SpeedIn)
	}
	if g.BurstOut == 0 {
		g.BurstOut = DefaultBurst(g.SpeedOut)
	}
	return g
}

// FormatServiceToken renders the activation token for a grant.
func FormatServiceToken(g AuthGrant) string {
	if g.Guest {
		return TokenGuest
	}
	g = g.FillBursts()
	return fmt.Sprintf("%s(%d,%d,%d,%d)", tokenInetPrefix, g.SpeedIn, g.BurstIn, g.SpeedOut, g.BurstOut)
}

// CoAToken renders the activation token for a service flip target.
func CoAToken(kind CoAKind, params CoAParams) string {
	if kind == CoAInetToGuest {
		return TokenGuest
	}
	return FormatServiceToken(AuthGrant{
		SpeedIn:  params.SpeedIn,
		SpeedOut: params.SpeedOut,
		BurstIn:  params.BurstIn,
		BurstOut: params.BurstOut,
	})
}

// ParseServiceToken decodes a token reported by the BRAS, e.g. in
// ERX-Service-Session. ok is false for anything that is neither an inet nor
// a guest token.
func ParseServiceToken(s string) (inet bool, params CoAParams, ok bool) {
	s = strings.TrimSpace(s)
	if s == TokenGuest || strings.HasPrefix(s, TokenGuest+"(") {
		return false, CoAParams{}, true
	}
	if !strings.HasPrefix(s, tokenInetPrefix) {
		return false, CoAParams{}, false
	}
	rest := strings.TrimPrefix(s, tokenInetPrefix)
	if rest == "" {
		return true, CoAParams{}, true
	}
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	fields := strings.Split(rest, ",")
	if len(fields) != 4 {
		return true, CoAParams{}, true
	}
	vals := make([]int64, 4)
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return true, CoAParams{}, true
		}
		vals[i] = v
	}
	return true, CoAParams{
		SpeedIn:  vals[0],
		BurstIn:  vals[1],
		SpeedOut: vals[2],
		BurstOut: vals[3],
	}, true
}
