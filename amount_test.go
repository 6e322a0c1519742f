package solanapay

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	valid := []string{"0", "1", "1.5", "0.000000001", "100.25", "9.999999999"}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			_, err := ParseAmount(s)
			assert.NoError(t, err)
		})
	}

	invalid := []string{"", "-1", "1.", ".5", "1e3", "1,5", " 1", "+2", "abc", "0x10"}
	for _, s := range invalid {
		t.Run("invalid "+s, func(t *testing.T) {
			_, err := ParseAmount(s)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1"},
		{"1.50", "1.5"},
		{"0.000000001", "0.000000001"},
		{"100.000", "100"},
		{"12345678901234567890.123", "12345678901234567890.123"},
	}
	for _, tt := range tests {
		d := decimal.RequireFromString(tt.in)
		assert.Equal(t, tt.want, FormatAmount(d))
	}
}

func TestScale(t *testing.T) {
	assert.Equal(t, 0, Scale(decimal.RequireFromString("15")))
	assert.Equal(t, 1, Scale(decimal.RequireFromString("1.50")))
	assert.Equal(t, 9, Scale(decimal.RequireFromString("9.999999999")))
	assert.Equal(t, 10, Scale(decimal.RequireFromString("9.9999999991")))
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     uint64
	}{
		{"1", 6, 1000000},
		{"0.1", 6, 100000},
		{"1.5", 9, 1500000000},
		{"9.999999999", 9, 9999999999},
		{"0", 9, 0},
		{"3", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToBaseUnits_Rejects(t *testing.T) {
	_, err := ToBaseUnits(decimal.RequireFromString("9.9999999991"), NativeDecimals)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToBaseUnits(decimal.RequireFromString("0.5"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToBaseUnits(decimal.RequireFromString("-1"), 6)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToBaseUnits(decimal.RequireFromString("18446744073709551616"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFromBaseUnits(t *testing.T) {
	d := FromBaseUnits(1500000000, NativeDecimals)
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "1.5", FormatAmount(d))

	units, err := ToBaseUnits(FromBaseUnits(9999999999, 9), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9999999999), units)
}
