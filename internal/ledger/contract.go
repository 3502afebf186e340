package ledger

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/ledger/c32"
)

// ContractID names a deployed contract as "<address>.<name>".
type ContractID struct {
	Address string
	Name    string
}

func (c ContractID) String() string {
	return c.Address + "." + c.Name
}

func (c ContractID) IsZero() bool {
	return c.Address == "" && c.Name == ""
}

// ParseContractID validates and splits "ST1PQ....poap".
func ParseContractID(s string) (ContractID, error) {
	addr, name, ok := strings.Cut(s, ".")
	if !ok || name == "" {
		return ContractID{}, fmt.Errorf("invalid contract id %q", s)
	}
	if _, _, err := c32.ParseAddress(addr); err != nil {
		return ContractID{}, fmt.Errorf("invalid contract id %q: %w", s, err)
	}
	return ContractID{Address: addr, Name: name}, nil
}

// MustParseContractID is ParseContractID for constants and tests.
func MustParseContractID(s string) ContractID {
	c, err := ParseContractID(s)
	if err != nil {
		panic(err)
	}
	return c
}
