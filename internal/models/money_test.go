// internal/models/money_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBTC(t *testing.T) {
	cases := []struct {
		in      string
		want    Satoshi
		wantErr bool
	}{
		{"0.00000001", 1, false},
		{"1", 100_000_000, false},
		{"1.5", 150_000_000, false},
		{"0.001", 100_000, false},
		{"21000000", 2_100_000_000_000_000, false},
		{"0.123456789", 0, true}, // more than 8 decimals
		{"", 0, true},
		{"abc", 0, true},
		{"-1", 0, true},
		{"1.2.3", 0, true},
		{"99999999999999999999", 0, true}, // overflow
	}

	for _, tc := range cases {
		got, err := ParseBTC(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		assert.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestFormatBTC(t *testing.T) {
	assert.Equal(t, "0.00000001", Satoshi(1).FormatBTC())
	assert.Equal(t, "1.00000000", Satoshi(100_000_000).FormatBTC())
	assert.Equal(t, "1.50000000", Satoshi(150_000_000).FormatBTC())
	assert.Equal(t, "0.00000000", Satoshi(0).FormatBTC())
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []Satoshi{1, 546, 100_000_000, 2_100_000_000_000_000} {
		parsed, err := ParseBTC(s.FormatBTC())
		assert.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestMulBps(t *testing.T) {
	// 2.5% of 100_000 sats
	assert.Equal(t, Satoshi(2_500), Satoshi(100_000).MulBps(250))
	// rounds down
	assert.Equal(t, Satoshi(0), Satoshi(39).MulBps(250))
	assert.Equal(t, Satoshi(0), Satoshi(100_000).MulBps(0))
	assert.Equal(t, Satoshi(100_000), Satoshi(100_000).MulBps(10_000))
}
