package phone

import (
	"testing"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"local safaricom", "0712345678", "254712345678"},
		{"local airtel", "0112345678", "254112345678"},
		{"bare subscriber", "712345678", "254712345678"},
		{"international", "254712345678", "254712345678"},
		{"plus prefix", "+254712345678", "254712345678"},
		{"spaces and dashes", "0712 345-678", "254712345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.input)
			if err != nil {
				t.Fatalf("Canonicalize(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCanonicalizeRejectsUnsupportedNumbers(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "07123"},
		{"too long", "07123456789"},
		{"unsupported prefix", "0812345678"},
		{"letters", "0712abc678"},
		{"wrong country", "255712345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Canonicalize(tc.input)
			if err == nil {
				t.Fatalf("Canonicalize(%q) should fail", tc.input)
			}
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := Mask("254712345678"); got != "2547****5678" {
		t.Fatalf("Mask = %q", got)
	}
	if got := Mask("0712"); got != "****" {
		t.Fatalf("short Mask = %q", got)
	}
}
