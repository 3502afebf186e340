package auth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/c32"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is part of the Stacks address format
)

const messagePrefix = "\x17Stacks Signed Message:\n"

// ChallengeMessage is the text a wallet signs to prove control of an address.
func ChallengeMessage(nonce string) string {
	return "Sign in to poapgate\n\nNonce: " + nonce
}

// HashMessage returns the digest Stacks wallets sign for a plain-text
// message: sha256(prefix || varint(len) || message).
func HashMessage(message string) []byte {
	buf := make([]byte, 0, len(messagePrefix)+binary.MaxVarintLen64+len(message))
	buf = append(buf, messagePrefix...)
	buf = appendVarInt(buf, uint64(len(message)))
	buf = append(buf, message...)
	sum := sha256.Sum256(buf)
	return sum[:]
}

// appendVarInt writes n in the Bitcoin CompactSize encoding.
func appendVarInt(b []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(b, byte(n))
	case n <= 0xffff:
		b = append(b, 0xfd)
		return binary.LittleEndian.AppendUint16(b, uint16(n))
	case n <= 0xffffffff:
		b = append(b, 0xfe)
		return binary.LittleEndian.AppendUint32(b, uint32(n))
	default:
		b = append(b, 0xff)
		return binary.LittleEndian.AppendUint64(b, n)
	}
}

// AddressFromPublicKey derives the single-sig address of pub for the
// network of version.
func AddressFromPublicKey(pub *ecdsa.PublicKey, version byte) (string, error) {
	return c32.Address(version, hash160(crypto.CompressPubkey(pub)))
}

func hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyMessage checks that sigHex is a recoverable secp256k1 signature of
// message by the key behind address. Both RSV and VRS layouts are accepted.
func VerifyMessage(address, message, sigHex string) error {
	_, want, err := c32.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d hex-encoded bytes", common.ErrInvalidSignature, crypto.SignatureLength)
	}

	hash := HashMessage(message)
	for _, candidate := range rsvCandidates(sig) {
		pub, err := crypto.SigToPub(hash, candidate)
		if err != nil {
			continue
		}
		if hash160(crypto.CompressPubkey(pub)) == want {
			return nil
		}
	}
	return common.ErrInvalidSignature
}

// rsvCandidates returns sig rearranged as [R || S || V] with V in {0, 1}.
func rsvCandidates(sig []byte) [][]byte {
	var out [][]byte
	if v, ok := recoveryID(sig[64]); ok {
		rsv := append([]byte(nil), sig...)
		rsv[64] = v
		out = append(out, rsv)
	}
	if v, ok := recoveryID(sig[0]); ok {
		rsv := make([]byte, 0, crypto.SignatureLength)
		rsv = append(rsv, sig[1:]...)
		rsv = append(rsv, v)
		out = append(out, rsv)
	}
	return out
}

func recoveryID(b byte) (byte, bool) {
	switch {
	case b <= 1:
		return b, true
	case b >= 27 && b <= 28:
		return b - 27, true
	case b >= 31 && b <= 34:
		// compressed-key marker
		return (b - 31) % 2, true
	}
	return 0, false
}
