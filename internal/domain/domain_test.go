package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Example.COM", "example.com", false},
		{" https://Shop.Example.com/cart?id=1 ", "shop.example.com", false},
		{"example.com:8443", "example.com", false},
		{"example.com.", "example.com", false},
		{"bücher.de", "xn--bcher-kva.de", false},
		{"", "", true},
		{"localhost", "", true},
		{"foo..com", "", true},
		{"-bad.com", "", true},
		{"bad-.com", "", true},
		{"under_score.com", "", true},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("Normalize(%q): expected error, got none (got=%q)", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Normalize(%q): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	t.Parallel()

	if _, err := Normalize("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err=%v, want ErrEmpty", err)
	}
}

func TestSplitJoin(t *testing.T) {
	t.Parallel()

	label, tld := Split("shop.example.co.uk")
	if label != "shop" || tld != "example.co.uk" {
		t.Fatalf("Split=%q,%q", label, tld)
	}
	if got := Join("acme", ".store"); got != "acme.store" {
		t.Fatalf("Join=%q, want acme.store", got)
	}
}

func TestNormalizeAll(t *testing.T) {
	t.Parallel()

	valid, invalid := NormalizeAll([]string{"A.com", "a.com", "nodot", "b.net"})
	if strings.Join(valid, ",") != "a.com,b.net" {
		t.Fatalf("valid=%v", valid)
	}
	if _, ok := invalid["nodot"]; !ok || len(invalid) != 1 {
		t.Fatalf("invalid=%v", invalid)
	}
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	got, err := ReadLines(strings.NewReader("a.com\n\n  b.com  \n"))
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(got) != 2 || got[1] != "b.com" {
		t.Fatalf("got=%v", got)
	}
}
