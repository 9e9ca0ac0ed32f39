package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmounts_Normalize(t *testing.T) {
	a := NewAmounts("uaura", 6)

	assert.Equal(t, "5.000000", a.Format(a.Normalize("5000000")))
	assert.Equal(t, "0.000001", a.Format(a.Normalize("1")))
	assert.Equal(t, "-2.500000", a.Format(a.Negate("2500000")))
	assert.Equal(t, "0.000000", a.Format(a.Normalize("")))
	assert.Equal(t, "0.000000", a.Format(a.Normalize("abc")))
	assert.Equal(t, "123456789.123457", a.Format(a.Normalize("123456789123456.7")))
}

func TestAmounts_StripDenom(t *testing.T) {
	a := NewAmounts("uaura", 6)

	tests := []struct {
		in   string
		want string
	}{
		{"1000uaura", "1000"},
		{" 42uaura ", "42"},
		{"7ibc/ABC,99uaura", "99"},
		{"12.5uaura", "12.5"},
		{"300stake", "300"},
		{"", "0"},
		{"uaura", "0"},
		{"garbage", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, a.StripDenom(tt.in).String())
		})
	}
}
