package coltype

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoerceLiteral(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected Kind
	}{
		{"decimal int", "42", Int},
		{"negative int", "-7", Int},
		{"hex int", "0x2A", Int},
		{"float", "3.14", Float},
		{"double inf", "+inf", Double},
		{"double nan", "nan", Double},
		{"bool true", "true", Bool},
		{"string", "hello", String},
		{"uuid", "3b241101-e2bb-4255-8caf-4136c566a962", UUID},
		{"object id", "507f1f77bcf86cd799439011", ObjectID},
		{"timestamp", "2024-01-02@03:04:05", Timestamp},
		{"timestamp compact", "T30:40", Timestamp},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := CoerceLiteral(tc.text, tc.expected)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v.Kind)
		})
	}
}

func TestCoerceLiteralRejectsSignMismatch(t *testing.T) {
	_, err := CoerceLiteral("T-5:10", Timestamp)
	require.Error(t, err)
}

func TestIsComparable(t *testing.T) {
	require.True(t, IsComparable(Int, Float))
	require.True(t, IsComparable(String, Mixed))
	require.True(t, IsComparable(Link, Link))
	require.False(t, IsComparable(String, Int))
	require.False(t, IsComparable(Bool, Int))
}

func TestValueEqualNaN(t *testing.T) {
	a := FloatValue(float32(math.NaN()))
	require.False(t, a.Equal(a), "NaN == NaN must be false")
}

func TestDecimal128Ordering(t *testing.T) {
	lo := Decimal128{Coefficient: 100, Exponent: -2} // 1.00
	hi := Decimal128{Coefficient: 200, Exponent: -2} // 2.00
	c, ok := lo.Compare(hi)
	require.True(t, ok)
	require.Equal(t, -1, c)

	n1 := Decimal128{NaN: true}
	_, ok = n1.Compare(n1)
	require.False(t, ok)
}
