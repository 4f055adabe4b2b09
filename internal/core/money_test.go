package core

import (
	"testing"

	"golang.org/x/text/language"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{".5", 50, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{".", 0, false},
		{"", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyFromFloat(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
		ok  bool
	}{
		{12.34, 1234, true},
		{0.1 + 0.2, 30, true},
		{1.005, 101, true},
		{100, 10000, true},
		{0, 0, false},
		{-3.5, 0, false},
	}
	for _, tc := range cases {
		got, err := MoneyFromFloat(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%v expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%v expected error", tc.in)
		}
	}
}

func TestMoneyFloatAndFormat(t *testing.T) {
	m := Money{Cents: 1234}
	if m.Float() != 12.34 {
		t.Fatalf("expected 12.34, got %v", m.Float())
	}
	if got := FormatMoney(m, language.English); got != "12.34" {
		t.Fatalf("expected 12.34, got %q", got)
	}
	if got := m.Add(Money{Cents: 66}); got.Cents != 1300 {
		t.Fatalf("expected 1300, got %d", got.Cents)
	}
}
