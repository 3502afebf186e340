// Package clarity implements the consensus serialization of Clarity values,
// the wire format of Stacks contract-call arguments and read-only results.
package clarity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/ledger/c32"
)

// TypeID is the one-byte type prefix of a serialized value.
type TypeID byte

const (
	TypeInt               TypeID = 0x00
	TypeUInt              TypeID = 0x01
	TypeBuffer            TypeID = 0x02
	TypeTrue              TypeID = 0x03
	TypeFalse             TypeID = 0x04
	TypeStandardPrincipal TypeID = 0x05
	TypeContractPrincipal TypeID = 0x06
	TypeResponseOk        TypeID = 0x07
	TypeResponseErr       TypeID = 0x08
	TypeNone              TypeID = 0x09
	TypeSome              TypeID = 0x0a
	TypeList              TypeID = 0x0b
	TypeTuple             TypeID = 0x0c
	TypeStringASCII       TypeID = 0x0d
	TypeStringUTF8        TypeID = 0x0e
)

// Value is any Clarity value.
type Value interface {
	Type() TypeID
}

type (
	Int    int64
	UInt   uint64
	Bool   bool
	Buffer []byte

	StringASCII string
	StringUTF8  string

	List  []Value
	Tuple map[string]Value

	None struct{}
)

type StandardPrincipal struct {
	Version byte
	Hash160 [20]byte
}

type ContractPrincipal struct {
	StandardPrincipal
	Name string
}

type Some struct{ Value Value }
type ResponseOk struct{ Value Value }
type ResponseErr struct{ Value Value }

func (Int) Type() TypeID         { return TypeInt }
func (UInt) Type() TypeID        { return TypeUInt }
func (Buffer) Type() TypeID      { return TypeBuffer }
func (StringASCII) Type() TypeID { return TypeStringASCII }
func (StringUTF8) Type() TypeID  { return TypeStringUTF8 }
func (List) Type() TypeID        { return TypeList }
func (Tuple) Type() TypeID       { return TypeTuple }
func (None) Type() TypeID        { return TypeNone }
func (Some) Type() TypeID        { return TypeSome }
func (ResponseOk) Type() TypeID  { return TypeResponseOk }
func (ResponseErr) Type() TypeID { return TypeResponseErr }

func (StandardPrincipal) Type() TypeID { return TypeStandardPrincipal }
func (ContractPrincipal) Type() TypeID { return TypeContractPrincipal }

func (b Bool) Type() TypeID {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

func (p StandardPrincipal) String() string {
	s, err := c32.Address(p.Version, p.Hash160)
	if err != nil {
		return fmt.Sprintf("<invalid principal v%d>", p.Version)
	}
	return s
}

func (p ContractPrincipal) String() string {
	return p.StandardPrincipal.String() + "." + p.Name
}

// Principal parses "ST..." or "ST....contract-name".
func Principal(s string) (Value, error) {
	addr, name, isContract := strings.Cut(s, ".")
	version, hash, err := c32.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	sp := StandardPrincipal{Version: version, Hash160: hash}
	if !isContract {
		return sp, nil
	}
	if name == "" || len(name) > 128 {
		return nil, fmt.Errorf("clarity: invalid contract name %q", name)
	}
	return ContractPrincipal{StandardPrincipal: sp, Name: name}, nil
}

// Repr renders v the way the Stacks node prints values, e.g. "(ok u5)".
func Repr(v Value) string {
	switch t := v.(type) {
	case Int:
		return fmt.Sprintf("%d", int64(t))
	case UInt:
		return fmt.Sprintf("u%d", uint64(t))
	case Bool:
		if t {
			return "true"
		}
		return "false"
	case Buffer:
		return fmt.Sprintf("0x%x", []byte(t))
	case StringASCII:
		return fmt.Sprintf("%q", string(t))
	case StringUTF8:
		return fmt.Sprintf("u%q", string(t))
	case StandardPrincipal:
		return t.String()
	case ContractPrincipal:
		return t.String()
	case None:
		return "none"
	case Some:
		return "(some " + Repr(t.Value) + ")"
	case ResponseOk:
		return "(ok " + Repr(t.Value) + ")"
	case ResponseErr:
		return "(err " + Repr(t.Value) + ")"
	case List:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = Repr(item)
		}
		return "(list " + strings.Join(parts, " ") + ")"
	case Tuple:
		keys := t.keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "(" + k + " " + Repr(t[k]) + ")"
		}
		return "(tuple " + strings.Join(parts, " ") + ")"
	default:
		return "<unknown>"
	}
}

func (t Tuple) keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
