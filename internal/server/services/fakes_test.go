package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/dbx"
	"github.com/dmitrijs2005/poapgate/internal/eligibility"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/mirror"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/stats"
	"github.com/dmitrijs2005/poapgate/internal/server/repositories/votes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	holder   = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	outsider = "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE"
)

var (
	testPOAP   = ledger.MustParseContractID(holder + ".poap")
	testVoting = ledger.MustParseContractID(holder + ".voting")
)

// walletOf is a wallet that already broadcast the call on behalf of address.
func walletOf(address string) ledger.WalletSigner {
	return ledger.WalletSigner{TxID: "0x" + fmt.Sprintf("%064x", 1), Address: address}
}

// sentTx is a transaction the fake contracts accepted.
type sentTx struct {
	sender string
	call   ledger.ContractCall
}

// fakeContracts stands in for the deployed contracts. Calls are counted per
// function; every submission returns a fresh transaction id.
type fakeContracts struct {
	Contracts

	mu        sync.Mutex
	holders   map[string]uint64
	voted     map[string]bool
	calls     map[string]int
	sent      map[string]sentTx
	seq       int
	submitErr error
	readErr   error
	winning   int
}

func newFakeContracts(holders ...string) *fakeContracts {
	f := &fakeContracts{
		holders: map[string]uint64{},
		voted:   map[string]bool{},
		calls:   map[string]int{},
		sent:    map[string]sentTx{},
		winning: -1,
	}
	for _, h := range holders {
		f.holders[h] = 1
	}
	return f
}

func (f *fakeContracts) submit(signer ledger.Signer, call ledger.ContractCall) (ledger.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[call.Function]++
	if f.submitErr != nil {
		return ledger.Handle{}, fmt.Errorf("%w: %v", common.ErrTransactionSubmission, f.submitErr)
	}
	f.seq++
	txID := fmt.Sprintf("0x%064x", 0x1000+f.seq)
	tx := sentTx{call: call}
	if w, ok := signer.(ledger.WalletSigner); ok {
		tx.sender = w.Address
	}
	f.sent[txID] = tx
	return ledger.Handle{TxID: txID, Call: call}, nil
}

func (f *fakeContracts) lookup(txID string) (sentTx, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.sent[txID]
	return tx, ok
}

func (f *fakeContracts) count(fn string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fn]
}

func (f *fakeContracts) HasPOAP(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.holders[address] > 0, nil
}

func (f *fakeContracts) GetBalance(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.holders[address], nil
}

func (f *fakeContracts) MintPOAP(_ context.Context, signer ledger.Signer, recipient, event string, date uint64, image string) (ledger.Handle, error) {
	return f.submit(signer, ledger.ContractCall{
		Contract: testPOAP,
		Function: "mint-poap",
		Args:     []clarity.Value{clarity.StringASCII(recipient), clarity.StringASCII(event), clarity.UInt(date), clarity.StringASCII(image)},
	})
}

func (f *fakeContracts) CreateProposal(_ context.Context, signer ledger.Signer, title, description string, durationBlocks uint64, options []string) (ledger.Handle, error) {
	return f.submit(signer, ledger.ContractCall{
		Contract: testVoting,
		Function: "create-proposal",
		Args:     ledger.ProposalArgs(title, description, durationBlocks, options),
	})
}

func (f *fakeContracts) CastVote(_ context.Context, signer ledger.Signer, proposalID uint64, optionIndex int) (ledger.Handle, error) {
	return f.submit(signer, ledger.ContractCall{
		Contract: testVoting,
		Function: "cast-vote",
		Args:     ledger.VoteArgs(proposalID, optionIndex),
	})
}

func (f *fakeContracts) HasVoted(_ context.Context, proposalID uint64, voter string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.voted[fmt.Sprintf("%d/%s", proposalID, voter)], nil
}

func (f *fakeContracts) GetWinningOption(context.Context, uint64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, false, f.readErr
	}
	return f.winning, f.winning >= 0, nil
}

// fakeChain reports every transaction sent through contracts as pending
// until told otherwise. Anything else is unknown to it.
type fakeChain struct {
	mu        sync.Mutex
	tip       uint64
	tipErr    error
	contracts *fakeContracts
	statuses  map[string]ledger.TxStatus
}

func newFakeChain(tip uint64, contracts *fakeContracts) *fakeChain {
	return &fakeChain{tip: tip, contracts: contracts, statuses: map[string]ledger.TxStatus{}}
}

func (c *fakeChain) TipHeight(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, c.tipErr
}

func (c *fakeChain) TxStatus(_ context.Context, txID string) (ledger.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.statuses[txID]; ok {
		return st, nil
	}
	return c.sentStatus(txID, ledger.TxPending, "pending"), nil
}

// sentStatus is the indexer record of a transaction sent through contracts.
func (c *fakeChain) sentStatus(txID string, state ledger.TxState, raw string) ledger.TxStatus {
	tx, ok := c.contracts.lookup(txID)
	if !ok {
		return ledger.TxStatus{TxID: txID, State: ledger.TxPending, RawStatus: ledger.RawStatusUnknown}
	}
	call := tx.call
	return ledger.TxStatus{TxID: txID, State: state, RawStatus: raw, Sender: tx.sender, Call: &call}
}

func (c *fakeChain) succeed(txID string, result clarity.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sentStatus(txID, ledger.TxSuccess, "success")
	st.Result = result
	c.statuses[txID] = st
}

func (c *fakeChain) fail(txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[txID] = c.sentStatus(txID, ledger.TxFailed, "abort_by_response")
}

// record makes the indexer report txID as a successful call from sender,
// whatever was actually sent under that id.
func (c *fakeChain) record(txID, sender string, call ledger.ContractCall, result clarity.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[txID] = ledger.TxStatus{
		TxID:      txID,
		State:     ledger.TxSuccess,
		RawStatus: "success",
		Result:    result,
		Sender:    sender,
		Call:      &call,
	}
}

// brokenRepos fails selected mirror writes with a non-sentinel error.
type brokenRepos struct {
	*memory.Store
	stats bool
	votes bool
}

var errDiskFull = errors.New("disk full")

type failingStats struct{ stats.Repository }

func (failingStats) Increment(context.Context, string, stats.Counter) (int64, error) {
	return 0, errDiskFull
}

type failingVotes struct{ votes.Repository }

func (failingVotes) Create(context.Context, *models.Vote) (*models.Vote, error) {
	return nil, errDiskFull
}

func (b *brokenRepos) Stats(db dbx.DBTX) stats.Repository {
	if b.stats {
		return failingStats{b.Store.Stats(db)}
	}
	return b.Store.Stats(db)
}

func (b *brokenRepos) Votes(db dbx.DBTX) votes.Repository {
	if b.votes {
		return failingVotes{b.Store.Votes(db)}
	}
	return b.Store.Votes(db)
}

type env struct {
	store      *memory.Store
	repos      *brokenRepos
	mirror     *mirror.Client
	contracts  *fakeContracts
	chain      *fakeChain
	reg        *prometheus.Registry
	engine     *milestones.Engine
	reconciler *Reconciler
	intents    *IntentService
}

func newEnv(t *testing.T, holders ...string) *env {
	t.Helper()
	st := memory.NewStore()
	repos := &brokenRepos{Store: st}
	var rm repomanager.RepositoryManager = repos

	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	m := mirror.New(st.Conn(), st, rm, nil, nil)
	contracts := newFakeContracts(holders...)
	chain := newFakeChain(100, contracts)
	engine := milestones.NewEngine(m, nil, mt)
	rec := NewReconciler(m, chain, testVoting, nil, mt)
	oracle := eligibility.NewOracle(contracts, nil, mt)

	return &env{
		store:      st,
		repos:      repos,
		mirror:     m,
		contracts:  contracts,
		chain:      chain,
		reg:        reg,
		engine:     engine,
		reconciler: rec,
		intents:    NewIntentService(m, oracle, contracts, chain, engine, rec, nil, mt),
	}
}

func (e *env) milestone(t *testing.T, m *models.Milestone) {
	t.Helper()
	require.NoError(t, e.mirror.Milestones().Upsert(context.Background(), m))
}

// confirmedProposal creates a proposal through the pipeline and confirms its
// transaction on the fake chain with ledger id ledgerID.
func (e *env) confirmedProposal(t *testing.T, ledgerID uint64, options ...string) *models.Proposal {
	t.Helper()
	if len(options) == 0 {
		options = []string{"Yes", "No"}
	}
	p, err := e.intents.CreateProposal(context.Background(), walletOf(holder), holder, ProposalInput{
		Title:          "Fund the meetup",
		DurationBlocks: 144,
		Options:        options,
	})
	require.NoError(t, err)
	e.chain.succeed(p.TxID, clarity.ResponseOk{Value: clarity.UInt(ledgerID)})
	return p
}

// intentCount reads poapgate_intents_total{action,outcome} from the test
// registry.
func intentCount(t *testing.T, e *env, action, outcome string) float64 {
	t.Helper()
	families, err := e.reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "poapgate_intents_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["action"] == action && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
