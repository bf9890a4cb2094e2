// Package bech32 implements bech32 encoding (BIP 173) as used by age
// key strings. Encode takes raw 8-bit data and converts it to the
// 5-bit alphabet internally; Decode reverses both steps.
package bech32

import (
	"fmt"
	"strings"
)

const charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func createChecksum(hrp string, data []byte) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func verifyChecksum(hrp string, data []byte) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32(1)<<toBits - 1
	out := make([]byte, 0, (len(data)*int(fromBits)+int(toBits)-1)/int(toBits))
	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte %d for %d-bit group", b, fromBits)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, fmt.Errorf("invalid padding in bit groups")
	}
	return out, nil
}

// Encode encodes data under the given human-readable part. The case
// of the HRP determines the case of the output; mixed-case HRPs are
// rejected.
func Encode(hrp string, data []byte) (string, error) {
	if len(hrp) < 1 {
		return "", fmt.Errorf("hrp must not be empty")
	}
	lower := strings.ToLower(hrp)
	upper := strings.ToUpper(hrp)
	if hrp != lower && hrp != upper {
		return "", fmt.Errorf("mixed-case hrp %q", hrp)
	}
	for i := 0; i < len(lower); i++ {
		if lower[i] < 33 || lower[i] > 126 {
			return "", fmt.Errorf("invalid hrp character at position %d", i)
		}
	}

	grouped, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	combined := append(grouped, createChecksum(lower, grouped)...)

	var b strings.Builder
	b.WriteString(lower)
	b.WriteByte('1')
	for _, v := range combined {
		b.WriteByte(charset[v])
	}
	out := b.String()
	if hrp == upper && lower != upper {
		out = strings.ToUpper(out)
	}
	return out, nil
}

// Decode decodes a bech32 string into its human-readable part and
// raw 8-bit data.
func Decode(s string) (string, []byte, error) {
	if strings.ToLower(s) != s && strings.ToUpper(s) != s {
		return "", nil, fmt.Errorf("mixed-case bech32 string")
	}
	lower := strings.ToLower(s)
	pos := strings.LastIndex(lower, "1")
	if pos < 1 || pos+7 > len(lower) {
		return "", nil, fmt.Errorf("invalid separator position %d", pos)
	}
	hrp := s[:pos]
	data := make([]byte, 0, len(lower)-pos-1)
	for i := pos + 1; i < len(lower); i++ {
		idx := strings.IndexByte(charset, lower[i])
		if idx < 0 {
			return "", nil, fmt.Errorf("invalid character %q at position %d", lower[i], i)
		}
		data = append(data, byte(idx))
	}
	if !verifyChecksum(strings.ToLower(hrp), data) {
		return "", nil, fmt.Errorf("invalid checksum")
	}
	decoded, err := convertBits(data[:len(data)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, decoded, nil
}
