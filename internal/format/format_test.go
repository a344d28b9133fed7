package format

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTokenAmount(t *testing.T) {
	cases := []struct {
		raw      int64
		decimals int32
		want     string
	}{
		{1_500_000, 6, "1.5"},
		{100_000, 6, "0.1"},
		{0, 6, "0"},
		{1, 6, "0.000001"},
		{42, 0, "42"},
		{123_456_789, 18, "0.000000000123456789"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatTokenAmount(big.NewInt(tc.raw), tc.decimals))
	}
	assert.Equal(t, "0", FormatTokenAmount(nil, 6))
}

func TestFormatTokenAmountRoundTrip(t *testing.T) {
	values := []string{"0", "1", "999", "1000000", "18446744073709551615", "340282366920938463463374607431768211455"}
	for _, v := range values {
		raw, ok := new(big.Int).SetString(v, 10)
		require.True(t, ok)
		for _, d := range []int32{0, 1, 6, 18} {
			back, err := ParseTokenAmount(FormatTokenAmount(raw, d), d)
			require.NoError(t, err)
			assert.Zero(t, raw.Cmp(back), "value %s decimals %d", v, d)
		}
	}
}

func TestParseTokenAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1.0000001"} {
		_, err := ParseTokenAmount(in, 6)
		assert.Error(t, err, in)
	}
	v, err := ParseTokenAmount(" 2.25 ", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(2_250_000), v.Int64())
}

func TestRequiredStake(t *testing.T) {
	assert.Equal(t, int64(100_000), RequiredStake(big.NewInt(1_000_000)).Int64())
	assert.Equal(t, int64(99), RequiredStake(big.NewInt(999)).Int64())
	assert.Equal(t, int64(0), RequiredStake(big.NewInt(9)).Int64())
	assert.Equal(t, int64(0), RequiredStake(nil).Int64())

	for s := int64(0); s < 2000; s += 7 {
		assert.Equal(t, s*10/100, RequiredStake(big.NewInt(s)).Int64())
	}
}

func TestIsExpiredMonotonic(t *testing.T) {
	expiry := int64(1_700_000_000)
	assert.False(t, IsExpired(time.Unix(expiry-1, 0), expiry))
	assert.True(t, IsExpired(time.Unix(expiry, 0), expiry))
	for d := int64(0); d < 1000; d += 13 {
		assert.True(t, IsExpired(time.Unix(expiry+d, 0), expiry))
	}
}

func TestTimeUntilExpiry(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	at := func(diff int64) string { return TimeUntilExpiry(now, now.Unix()+diff) }

	assert.Equal(t, ExpiredLabel, at(0))
	assert.Equal(t, ExpiredLabel, at(-50))
	assert.Equal(t, "45s", at(45))
	assert.Equal(t, "4m 10s", at(250))
	assert.Equal(t, "2h 1m", at(2*3600+60+5))
	assert.Equal(t, "2d 5h", at(2*86400+5*3600+30))
	assert.Equal(t, "1d 3m", at(86400+180))
}

func TestCountdown(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	assert.Equal(t, "1d 0h 3m 9s", Countdown(now, now.Unix()+86400+189))
	assert.Equal(t, "5m 0s", Countdown(now, now.Unix()+300))
	assert.Equal(t, "7s", Countdown(now, now.Unix()+7))
	assert.Equal(t, ExpiredLabel, Countdown(now, now.Unix()))
}

func TestFormatAddress(t *testing.T) {
	addr := "0x1234567890abcdef1234567890abcdef12345678"
	assert.Equal(t, "0x1234...5678", FormatAddress(addr))
	assert.Equal(t, "0x12", FormatAddress("0x12"))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "Jan 1, 1970, 12:00:00 AM UTC", FormatTimestamp(0, nil))
}
