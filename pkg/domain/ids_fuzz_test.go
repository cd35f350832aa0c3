package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAccountID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("alice")
	f.Add("'; DROP TABLE claims;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		if id.String() != input {
			t.Errorf("accepted id changed value: %q -> %q", input, id)
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseFingerprint checks that every accepted fingerprint round-trips
// through its hex form.
func FuzzParseFingerprint(f *testing.F) {
	f.Add("616263")
	f.Add("0x00ff")
	f.Add("zz")

	f.Fuzz(func(t *testing.T, input string) {
		fp, err := ParseFingerprint(input)
		if err != nil {
			return
		}
		again, err := ParseFingerprint(fp.String())
		if err != nil {
			t.Fatalf("round-trip failed: %v", err)
		}
		if again != fp {
			t.Error("round-trip changed fingerprint")
		}
	})
}
