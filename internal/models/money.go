// internal/models/money.go
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Satoshi is a Bitcoin amount in satoshis. All monetary arithmetic and
// comparison in the system happens on this integer type; BTC decimal strings
// exist only at the API edges.
type Satoshi int64

const satoshisPerBTC = 100_000_000

var ErrInvalidAmount = errors.New("invalid bitcoin amount")

// ParseBTC converts a decimal BTC string ("0.01", "1.23456789") to satoshis
// using integer arithmetic only. More than 8 fractional digits is an error.
func ParseBTC(s string) (Satoshi, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, ErrInvalidAmount
	}
	if len(frac) > 8 {
		return 0, fmt.Errorf("%w: more than 8 decimal places", ErrInvalidAmount)
	}
	// Right-pad the fraction to exactly 8 digits
	frac += strings.Repeat("0", 8-len(frac))

	var sats int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, ErrInvalidAmount
			}
			d := int64(c - '0')
			if sats > (1<<62)/10 {
				return 0, fmt.Errorf("%w: overflow", ErrInvalidAmount)
			}
			sats = sats*10 + d
		}
	}
	return Satoshi(sats), nil
}

// FormatBTC renders the amount as a BTC decimal string with all 8 places.
func (s Satoshi) FormatBTC() string {
	v := int64(s)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%08d", sign, v/satoshisPerBTC, v%satoshisPerBTC)
}

// MulBps applies a basis-point rate (1 bps = 0.01%) rounding down.
// Used for platform fee computation.
func (s Satoshi) MulBps(bps int64) Satoshi {
	return Satoshi(int64(s) * bps / 10_000)
}
