package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
)

const (
	MinProposalOptions = 2
	MaxProposalOptions = 10
)

// Backend is the part of Gateway the contract bindings need.
type Backend interface {
	QueryReadOnly(ctx context.Context, contract ContractID, function string, args []clarity.Value, asAddress string) (clarity.Value, error)
	SubmitTransaction(ctx context.Context, contract ContractID, function string, args []clarity.Value, signer Signer) (Handle, error)
}

// Contracts binds the POAP and voting contracts to typed Go calls.
type Contracts struct {
	backend Backend
	poap    ContractID
	voting  ContractID
}

func NewContracts(backend Backend, poap, voting ContractID) *Contracts {
	return &Contracts{backend: backend, poap: poap, voting: voting}
}

func (c *Contracts) POAP() ContractID   { return c.poap }
func (c *Contracts) Voting() ContractID { return c.voting }

// MintPOAP submits mint-poap(recipient, event-name, event-date, image-uri).
func (c *Contracts) MintPOAP(ctx context.Context, signer Signer, recipient, eventName string, eventDate uint64, imageURI string) (Handle, error) {
	who, err := clarity.Principal(recipient)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: recipient: %v", common.ErrInvalidInput, err)
	}
	args := []clarity.Value{
		who,
		clarity.StringASCII(eventName),
		clarity.UInt(eventDate),
		clarity.StringASCII(imageURI),
	}
	return c.backend.SubmitTransaction(ctx, c.poap, "mint-poap", args, signer)
}

// HasPOAP calls has-poap(address) as the address itself.
func (c *Contracts) HasPOAP(ctx context.Context, address string) (bool, error) {
	who, err := clarity.Principal(address)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	v, err := c.backend.QueryReadOnly(ctx, c.poap, "has-poap", []clarity.Value{who}, address)
	if err != nil {
		return false, err
	}
	return decodeBool(v)
}

// GetBalance returns how many credentials address holds.
func (c *Contracts) GetBalance(ctx context.Context, address string) (uint64, error) {
	who, err := clarity.Principal(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	v, err := c.backend.QueryReadOnly(ctx, c.poap, "get-balance", []clarity.Value{who}, address)
	if err != nil {
		return 0, err
	}
	return decodeUInt(v)
}

// CreateProposal submits create-proposal(title, description, duration, options).
func (c *Contracts) CreateProposal(ctx context.Context, signer Signer, title, description string, durationBlocks uint64, options []string) (Handle, error) {
	if len(options) < MinProposalOptions || len(options) > MaxProposalOptions {
		return Handle{}, fmt.Errorf("%w: proposals need %d to %d options, got %d",
			common.ErrInvalidInput, MinProposalOptions, MaxProposalOptions, len(options))
	}
	return c.backend.SubmitTransaction(ctx, c.voting, "create-proposal", ProposalArgs(title, description, durationBlocks, options), signer)
}

// ProposalArgs builds the create-proposal arguments.
func ProposalArgs(title, description string, durationBlocks uint64, options []string) []clarity.Value {
	list := make(clarity.List, len(options))
	for i, o := range options {
		list[i] = clarity.StringUTF8(o)
	}
	return []clarity.Value{
		clarity.StringUTF8(title),
		clarity.StringUTF8(description),
		clarity.UInt(durationBlocks),
		list,
	}
}

// VoteArgs builds the cast-vote arguments for a zero-based option index.
func VoteArgs(proposalID uint64, optionIndex int) []clarity.Value {
	return []clarity.Value{clarity.UInt(proposalID), clarity.UInt(OptionID(optionIndex))}
}

// OptionID converts a zero-based option index to the contract's one-based id.
func OptionID(index int) uint64 {
	return uint64(index) + 1
}

// CastVote submits cast-vote(proposal-id, option-id) for a zero-based option index.
func (c *Contracts) CastVote(ctx context.Context, signer Signer, proposalID uint64, optionIndex int) (Handle, error) {
	if optionIndex < 0 {
		return Handle{}, fmt.Errorf("%w: negative option index", common.ErrInvalidInput)
	}
	return c.backend.SubmitTransaction(ctx, c.voting, "cast-vote", VoteArgs(proposalID, optionIndex), signer)
}

// ProposalInfo is the decoded get-proposal tuple. Fields maps every tuple key
// to its native form for keys without a typed counterpart.
type ProposalInfo struct {
	ID          uint64
	Title       string
	Description string
	Creator     string
	StartBlock  uint64
	EndBlock    uint64
	TotalVotes  uint64
	Fields      map[string]any
}

// GetProposal reads a proposal by its ledger id. A none result is
// common.ErrorNotFound.
func (c *Contracts) GetProposal(ctx context.Context, proposalID uint64) (*ProposalInfo, error) {
	v, err := c.backend.QueryReadOnly(ctx, c.voting, "get-proposal", []clarity.Value{clarity.UInt(proposalID)}, "")
	if err != nil {
		return nil, err
	}
	t, err := decodeTuple(v)
	if err != nil {
		return nil, err
	}
	info := &ProposalInfo{
		ID:          proposalID,
		Title:       tupleString(t, "title"),
		Description: tupleString(t, "description"),
		Creator:     tupleString(t, "creator"),
		StartBlock:  tupleUInt(t, "start-block"),
		EndBlock:    tupleUInt(t, "end-block"),
		TotalVotes:  tupleUInt(t, "total-votes", "vote-count"),
		Fields:      clarity.Native(t).(map[string]any),
	}
	return info, nil
}

type OptionInfo struct {
	Index int
	Label string
	Votes uint64
}

// GetProposalOption reads one option of a proposal by zero-based index.
func (c *Contracts) GetProposalOption(ctx context.Context, proposalID uint64, optionIndex int) (*OptionInfo, error) {
	args := []clarity.Value{clarity.UInt(proposalID), clarity.UInt(OptionID(optionIndex))}
	v, err := c.backend.QueryReadOnly(ctx, c.voting, "get-proposal-option", args, "")
	if err != nil {
		return nil, err
	}
	t, err := decodeTuple(v)
	if err != nil {
		return nil, err
	}
	return &OptionInfo{
		Index: optionIndex,
		Label: tupleString(t, "name", "label", "text"),
		Votes: tupleUInt(t, "votes", "vote-count"),
	}, nil
}

// HasVoted calls has-voted(proposal-id, voter) as the voter.
func (c *Contracts) HasVoted(ctx context.Context, proposalID uint64, voter string) (bool, error) {
	who, err := clarity.Principal(voter)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	v, err := c.backend.QueryReadOnly(ctx, c.voting, "has-voted", []clarity.Value{clarity.UInt(proposalID), who}, voter)
	if err != nil {
		return false, err
	}
	return decodeBool(v)
}

// GetWinningOption returns the zero-based index of the leading option.
// ok is false while no option has votes.
func (c *Contracts) GetWinningOption(ctx context.Context, proposalID uint64) (index int, ok bool, err error) {
	v, err := c.backend.QueryReadOnly(ctx, c.voting, "get-winning-option", []clarity.Value{clarity.UInt(proposalID)}, "")
	if err != nil {
		return 0, false, err
	}
	id, err := clarity.AsUInt(v)
	if errors.Is(err, clarity.ErrNoneValue) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: get-winning-option: %v", common.ErrLedgerQuery, err)
	}
	if id == 0 {
		return 0, false, nil
	}
	return int(id - 1), true, nil
}

func decodeBool(v clarity.Value) (bool, error) {
	b, err := clarity.AsBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	return b, nil
}

func decodeUInt(v clarity.Value) (uint64, error) {
	u, err := clarity.AsUInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	return u, nil
}

func decodeTuple(v clarity.Value) (clarity.Tuple, error) {
	inner, err := clarity.Unwrap(v)
	if errors.Is(err, clarity.ErrNoneValue) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}
	t, ok := inner.(clarity.Tuple)
	if !ok {
		return nil, fmt.Errorf("%w: want tuple, got %s", common.ErrLedgerQuery, clarity.Repr(inner))
	}
	return t, nil
}

func tupleString(t clarity.Tuple, keys ...string) string {
	for _, k := range keys {
		switch v := t[k].(type) {
		case clarity.StringUTF8:
			return string(v)
		case clarity.StringASCII:
			return string(v)
		case clarity.StandardPrincipal:
			return v.String()
		case clarity.ContractPrincipal:
			return v.String()
		}
	}
	return ""
}

func tupleUInt(t clarity.Tuple, keys ...string) uint64 {
	for _, k := range keys {
		if v, ok := t[k].(clarity.UInt); ok {
			return uint64(v)
		}
	}
	return 0
}
