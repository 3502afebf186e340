// Package c32 implements Crockford base-32 and the c32check encoding used by
// Stacks addresses ("S" + version char + c32(hash160 || checksum)).
package c32

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions.
const (
	MainnetSingleSig byte = 22 // SP...
	MainnetMultiSig  byte = 20 // SM...
	TestnetSingleSig byte = 26 // ST...
	TestnetMultiSig  byte = 21 // SN...
)

var (
	ErrInvalidChar     = errors.New("c32: invalid character")
	ErrInvalidChecksum = errors.New("c32: checksum mismatch")
	ErrInvalidAddress  = errors.New("c32: invalid address")
	ErrInvalidVersion  = errors.New("c32: version out of range")
)

var big32 = big.NewInt(32)

// Encode returns the c32 representation of data. Each leading zero byte
// becomes one leading '0'.
func Encode(data []byte) string {
	n := new(big.Int).SetBytes(data)
	mod := new(big.Int)

	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, big32, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Decode reverses Encode. Input is normalized first (upper case, O->0, L/I->1).
func Decode(s string) ([]byte, error) {
	s = normalize(s)

	n := new(big.Int)
	zeros := 0
	leading := true
	for _, r := range s {
		idx := strings.IndexRune(alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("%w %q", ErrInvalidChar, r)
		}
		if leading && idx == 0 {
			zeros++
			continue
		}
		leading = false
		n.Mul(n, big32)
		n.Add(n, big.NewInt(int64(idx)))
	}

	return append(make([]byte, zeros), n.Bytes()...), nil
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer("O", "0", "L", "1", "I", "1").Replace(s)
}

func checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// CheckEncode encodes data with a version prefix and a 4-byte double-SHA256
// checksum.
func CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", ErrInvalidVersion
	}
	payload := append(append([]byte{}, data...), checksum(version, data)...)
	return string(alphabet[version]) + Encode(payload), nil
}

// CheckDecode splits a c32check string into its version and payload,
// verifying the checksum.
func CheckDecode(s string) (byte, []byte, error) {
	s = normalize(s)
	if len(s) < 2 {
		return 0, nil, ErrInvalidAddress
	}
	version := strings.IndexByte(alphabet, s[0])
	if version < 0 {
		return 0, nil, ErrInvalidChar
	}
	raw, err := Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 4 {
		return 0, nil, ErrInvalidAddress
	}
	data, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, checksum(byte(version), data)) {
		return 0, nil, ErrInvalidChecksum
	}
	return byte(version), data, nil
}

// Address formats a Stacks address from a version and hash160.
func Address(version byte, hash160 [20]byte) (string, error) {
	enc, err := CheckEncode(version, hash160[:])
	if err != nil {
		return "", err
	}
	return "S" + enc, nil
}

// ParseAddress validates a Stacks address and returns its version and hash160.
func ParseAddress(addr string) (byte, [20]byte, error) {
	var h [20]byte
	if len(addr) < 3 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, h, ErrInvalidAddress
	}
	version, data, err := CheckDecode(addr[1:])
	if err != nil {
		return 0, h, err
	}
	if len(data) != 20 {
		return 0, h, fmt.Errorf("%w: hash160 has %d bytes", ErrInvalidAddress, len(data))
	}
	copy(h[:], data)
	return version, h, nil
}

// IsTestnet reports whether version belongs to a testnet address.
func IsTestnet(version byte) bool {
	return version == TestnetSingleSig || version == TestnetMultiSig
}
