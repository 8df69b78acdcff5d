package infra

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToDecimal_Zero(t *testing.T) {
	d, err := NumericToDecimal(DecimalToNumeric(decimal.Zero))
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestNumericToDecimal_TwoPlaces(t *testing.T) {
	// 30050 * 10^-2 = 300.50
	n := pgtype.Numeric{Int: big.NewInt(30050), Exp: -2, Valid: true}
	d, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.Equal(t, "300.50", d.StringFixed(2))
}

func TestNumericToDecimal_WithPositiveExponent(t *testing.T) {
	// 3 * 10^2 = 300
	n := pgtype.Numeric{Int: big.NewInt(3), Exp: 2, Valid: true}
	d, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(300)))
}

func TestNumericToDecimal_NullReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToDecimal_NaNReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NaN")
}

func TestNumericToDecimal_InfinityReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true})
	assert.Error(t, err)
}

func TestDecimalToNumeric_Roundtrip(t *testing.T) {
	values := []string{"0", "1", "0.01", "300", "300.50", "999999999.99", "-12.34"}
	for _, v := range values {
		in := decimal.RequireFromString(v)
		out, err := NumericToDecimal(DecimalToNumeric(in))
		require.NoError(t, err, "value: %s", v)
		assert.True(t, in.Equal(out), "value: %s got %s", v, out)
	}
}

func TestAmountToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"300", 30000},
		{"300.5", 30050},
		{"0.01", 1},
		{"10.005", 1001},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, AmountToCents(decimal.RequireFromString(tt.in)))
		})
	}
}
