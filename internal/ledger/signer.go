package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
)

// ErrWalletRejected is returned by a Signer when the account holder declined
// to sign or the wallet produced nothing usable.
var ErrWalletRejected = errors.New("wallet rejected the transaction")

// ContractCall describes one state-changing call before it is signed.
type ContractCall struct {
	Contract ContractID
	Function string
	Args     []clarity.Value
}

func (c ContractCall) String() string {
	return fmt.Sprintf("%s::%s", c.Contract, c.Function)
}

// Equal reports whether c and o call the same function with the same
// arguments. Arguments are compared in their consensus encoding.
func (c ContractCall) Equal(o ContractCall) bool {
	if c.Contract != o.Contract || c.Function != o.Function || len(c.Args) != len(o.Args) {
		return false
	}
	for i := range c.Args {
		a, err := clarity.SerializeHex(c.Args[i])
		if err != nil {
			return false
		}
		b, err := clarity.SerializeHex(o.Args[i])
		if err != nil || a != b {
			return false
		}
	}
	return true
}

// SignedTx is what a wallet hands back. Raw holds the serialized signed
// transaction still to be broadcast; when the wallet broadcast it itself only
// TxID is set. Sender, when known, is the address expected to have signed.
type SignedTx struct {
	Raw    []byte
	TxID   string
	Sender string
}

// Signer obtains the account holder's signature for a contract call.
type Signer interface {
	SignContractCall(ctx context.Context, call ContractCall) (SignedTx, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, call ContractCall) (SignedTx, error)

func (f SignerFunc) SignContractCall(ctx context.Context, call ContractCall) (SignedTx, error) {
	return f(ctx, call)
}

var txIDPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// ValidTxID reports whether s looks like a Stacks transaction id.
func ValidTxID(s string) bool {
	return txIDPattern.MatchString(s)
}

// NormalizeTxID lowercases the id and adds the 0x prefix.
func NormalizeTxID(s string) string {
	if len(s) == 64 {
		s = "0x" + s
	}
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'F' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// WalletSigner carries the result of a signing round-trip the client already
// completed with the user's wallet. An empty value means the user declined.
// Address is the authenticated account the transaction must come from.
type WalletSigner struct {
	Raw     []byte
	TxID    string
	Address string
}

func (w WalletSigner) SignContractCall(_ context.Context, call ContractCall) (SignedTx, error) {
	switch {
	case len(w.Raw) > 0:
		return SignedTx{Raw: w.Raw, Sender: w.Address}, nil
	case w.TxID != "":
		if !ValidTxID(w.TxID) {
			return SignedTx{}, fmt.Errorf("%w: malformed transaction id %q for %s", ErrWalletRejected, w.TxID, call)
		}
		return SignedTx{TxID: NormalizeTxID(w.TxID), Sender: w.Address}, nil
	default:
		return SignedTx{}, fmt.Errorf("%w: no signature for %s", ErrWalletRejected, call)
	}
}
