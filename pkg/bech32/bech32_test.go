package bech32

import (
	"bytes"
	"strings"
	"testing"
)

// Test vectors from BIP173 to make sure known-good strings decode
// correctly and re-encode to the original value.
func TestDecodeValidVectors(t *testing.T) {
	validCases := []string{
		"A12UEL5L",
		"a12uel5l",
		"abcdef1qpzry9x8gf2tvdw0s3jn54khce6mua7lmqqqxw",
		"split1checkupstagehandshakeupstreamerranterredcaperred2y9e3w",
	}

	for _, tc := range validCases {
		name := tc
		if len(name) > 10 {
			name = name[:10]
		}
		t.Run(name, func(t *testing.T) {
			hrp, data, err := Decode(tc)
			if err != nil {
				t.Fatalf("Decode(%q) failed: %v", tc, err)
			}

			separator := strings.LastIndex(tc, "1")
			if hrp != tc[:separator] {
				t.Fatalf("HRP mismatch: got %q, want %q", hrp, tc[:separator])
			}

			encoded, err := Encode(hrp, data)
			if err != nil {
				t.Fatalf("Encode round-trip failed: %v", err)
			}
			if encoded != tc {
				t.Fatalf("Encode/Decode mismatch: got %q, want %q", encoded, tc)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		hrp  string
		data []byte
	}{
		{"test", []byte{0, 1, 2, 3, 4, 5}},
		{"age", []byte("hello world")},
		{"AGE-SECRET-KEY-", bytes.Repeat([]byte{0x42}, 32)},
	}

	for _, tc := range testCases {
		t.Run(tc.hrp, func(t *testing.T) {
			encoded, err := Encode(tc.hrp, tc.data)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			hrp, decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !strings.EqualFold(hrp, tc.hrp) {
				t.Errorf("HRP mismatch: got %q, want %q", hrp, tc.hrp)
			}
			if !bytes.Equal(decoded, tc.data) {
				t.Errorf("data mismatch: got %v, want %v", decoded, tc.data)
			}
		})
	}
}

func TestEncodeRejectsMixedCaseHRP(t *testing.T) {
	if _, err := Encode("Test", []byte{1}); err == nil {
		t.Fatal("mixed-case HRP should be rejected")
	}
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	encoded, err := Encode("test", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	corrupted := encoded[:len(encoded)-1] + "x"
	if corrupted == encoded {
		corrupted = encoded[:len(encoded)-1] + "q"
	}
	if _, _, err := Decode(corrupted); err == nil {
		t.Fatal("corrupted checksum should be rejected")
	}
}
