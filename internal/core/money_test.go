package core

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"1,234", "1234", true},
		{"1,234.50", "1234.5", true},
		{"12,34,567.00", "1234567", true},
		{"₹ 2,500.00", "2500", true},
		{"Rs. 500", "500", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
	}{
		{"0.01", 1},
		{"12.345", 1235},
		{"100", 10000},
		{"1234567.89", 123456789},
	}
	for _, tc := range cases {
		c, err := Cents(decimal.RequireFromString(tc.in))
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if c != tc.cents {
			t.Fatalf("%s: expected %d cents, got %d", tc.in, tc.cents, c)
		}
		if !FromCents(c).Equal(RoundAmount(decimal.RequireFromString(tc.in))) {
			t.Fatalf("%s: round trip mismatch: %s", tc.in, FromCents(c))
		}
	}
}

func TestCentsOutOfRange(t *testing.T) {
	for _, in := range []string{"184467440737095516.17", "92233720368547758.08", "-92233720368547758.09"} {
		if _, err := Cents(decimal.RequireFromString(in)); !errors.Is(err, ErrAmountTooLarge) {
			t.Fatalf("%s: expected ErrAmountTooLarge, got %v", in, err)
		}
	}
	c, err := Cents(MaxAmount)
	if err != nil || c != math.MaxInt64 {
		t.Fatalf("max amount: %d %v", c, err)
	}
}

func TestCentsBound(t *testing.T) {
	cases := []struct {
		in    string
		lower bool
		cents int64
		ok    bool
		above bool
	}{
		{"10.505", true, 1051, true, false},
		{"10.505", false, 1050, true, false},
		{"1e17", true, 0, false, true},
		{"1e17", false, 0, false, true},
		{"-1e17", true, 0, false, false},
	}
	for _, tc := range cases {
		c, ok, above := CentsBound(decimal.RequireFromString(tc.in), tc.lower)
		if c != tc.cents || ok != tc.ok || above != tc.above {
			t.Fatalf("%s lower=%v: got (%d, %v, %v)", tc.in, tc.lower, c, ok, above)
		}
	}
}
