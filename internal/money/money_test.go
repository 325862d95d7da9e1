package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToCentsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		price string
		want  int64
	}{
		{"150.00", 15000},
		{"123.455", 12346},
		{"123.454", 12345},
		{"0.005", 1},
		{"0.004", 0},
		{"1", 100},
	}

	for _, tc := range cases {
		price, err := decimal.NewFromString(tc.price)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.price, err)
		}
		got, err := ToCents(price)
		if err != nil {
			t.Fatalf("ToCents(%s): %v", tc.price, err)
		}
		if got != tc.want {
			t.Fatalf("ToCents(%s) = %d, want %d", tc.price, got, tc.want)
		}
	}
}

func TestToCentsRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-1", "-0.01"} {
		price, _ := decimal.NewFromString(raw)
		if _, err := ToCents(price); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ToCents(%s): expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestTotalRoundsHalfUpOnce(t *testing.T) {
	qty := decimal.RequireFromString("1.5")
	if got := Total(12346, qty); got != 18519 {
		t.Fatalf("Total(12346, 1.5) = %d, want 18519", got)
	}

	// 3 cents x 0.5 shares lands exactly on a half cent.
	half := decimal.RequireFromString("0.5")
	if got := Total(3, half); got != 2 {
		t.Fatalf("Total(3, 0.5) = %d, want 2", got)
	}

	// Fractional shares at high precision stay exact until the single
	// final rounding.
	tiny := decimal.RequireFromString("0.000001")
	if got := Total(15000, tiny); got != 0 {
		t.Fatalf("Total(15000, 0.000001) = %d, want 0", got)
	}
}

func TestParseQuantity(t *testing.T) {
	qty, err := ParseQuantity(" 1.5 ")
	if err != nil {
		t.Fatalf("ParseQuantity: %v", err)
	}
	if !qty.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected 1.5, got %s", qty)
	}

	for _, raw := range []string{"", "abc", "1.2.3", "0", "-1", "-0.5"} {
		if _, err := ParseQuantity(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseQuantity(%q): expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestCentsToDollars(t *testing.T) {
	if got := CentsToDollars(977500); !got.Equal(decimal.RequireFromString("9775.00")) {
		t.Fatalf("CentsToDollars(977500) = %s, want 9775.00", got)
	}
	if got := CentsToDollars(1); !got.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("CentsToDollars(1) = %s, want 0.01", got)
	}
}
