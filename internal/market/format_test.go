package market

import "testing"

func TestFormatUSD(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v        float64
		decimals int
		want     string
	}{
		{0, 2, "$0.00"},
		{43250.12, 2, "$43,250.12"},
		{1234567.891, 2, "$1,234,567.89"},
		{999.999, 2, "$1,000.00"}, // rounding carries into grouping
		{5.4321, 4, "$5.4321"},
		{2650, 0, "$2,650"},
		{-12.5, 2, "-$12.50"},
	}
	for _, tc := range cases {
		if got := FormatUSD(tc.v, tc.decimals); got != tc.want {
			t.Errorf("FormatUSD(%v, %d) = %q, want %q", tc.v, tc.decimals, got, tc.want)
		}
	}
}
