package dedup_test

import (
	"fmt"
	"testing"

	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/dedup"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"rank prefix stripped", "[VIP] PlayerX: hello", "playerx: hello"},
		{"color codes stripped", "§6PlayerX§r: hi there", "playerx: hi there"},
		{"channel label stripped", "Guild > PlayerX: hello", "playerx: hello"},
		{"whitespace collapsed", "PlayerX:    hello   world", "playerx: hello world"},
		{"case folded", "PlayerX: HELLO", "playerx: hello"},
		{"multiple prefixes", "[MVP+] [Officer] PlayerX: hi", "playerx: hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := dedup.Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeFallsBackToRawLine(t *testing.T) {
	// A line made entirely of strippable noise must still produce a
	// usable comparison key instead of an empty string.
	raw := "[VIP] §6 ★★★"
	got := dedup.Normalize(raw)
	if got == "" {
		t.Fatal("Normalize returned an empty fingerprint")
	}
	if got != dedup.Normalize(raw) {
		t.Error("fallback fingerprint is not stable")
	}
}

func TestIsUniqueRejectsRepeat(t *testing.T) {
	d := dedup.New()

	if !d.IsUnique("[VIP] PlayerX: hello") {
		t.Fatal("first delivery should be accepted")
	}
	// Same line with different formatting noise is still a repeat.
	if d.IsUnique("§6[VIP] PlayerX:  hello") {
		t.Error("redelivered line should be rejected")
	}
	if d.IsUnique("[VIP] PlayerX: hello") {
		t.Error("identical line should be rejected")
	}
}

func TestIsUniqueAcceptsAfterWindowEviction(t *testing.T) {
	d := dedup.New()

	original := "PlayerX: the one true message"
	if !d.IsUnique(original) {
		t.Fatal("first delivery should be accepted")
	}

	// 100 other distinct messages push the original out of the window.
	for i := 0; i < dedup.WindowSize; i++ {
		if !d.IsUnique(fmt.Sprintf("PlayerY: filler %d", i)) {
			t.Fatalf("filler message %d unexpectedly rejected", i)
		}
	}

	if !d.IsUnique(original) {
		t.Error("original should be accepted again after eviction")
	}
}

func TestWindowStaysBounded(t *testing.T) {
	d := dedup.New()
	for i := 0; i < dedup.WindowSize*3; i++ {
		d.IsUnique(fmt.Sprintf("msg %d", i))
	}
	if got := d.Len(); got != dedup.WindowSize {
		t.Errorf("window length = %d, want %d", got, dedup.WindowSize)
	}
}

func TestClean(t *testing.T) {
	got := dedup.Clean("Guild > [MVP] PlayerX: go go go ★")
	want := "PlayerX: go go go"
	if got != want {
		t.Errorf("Clean = %q, want %q", got, want)
	}
}
