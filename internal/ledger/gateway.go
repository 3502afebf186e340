// Package ledger talks to a Stacks node: read-only contract calls, broadcast
// of wallet-signed contract calls, chain tip and transaction status. Values
// cross the wire in Clarity consensus encoding (see package clarity).
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
)

const maxResponseBytes = 1 << 20

// Handle identifies a broadcast transaction. It is returned before the
// transaction is confirmed.
type Handle struct {
	TxID string
	Call ContractCall
}

type TxState string

const (
	TxPending TxState = "pending"
	TxSuccess TxState = "success"
	TxFailed  TxState = "failed"
)

// RawStatusUnknown is the RawStatus of a transaction the indexer has not seen.
const RawStatusUnknown = "unknown"

// TxStatus is the indexer's view of a transaction. Sender and Call are set
// once the indexer knows the transaction; Call is nil for anything but a
// contract call.
type TxStatus struct {
	TxID        string
	State       TxState
	RawStatus   string
	Result      clarity.Value
	BlockHeight uint64
	Sender      string
	Call        *ContractCall
}

// Seen reports whether the indexer knows the transaction.
func (s TxStatus) Seen() bool {
	return s.RawStatus != RawStatusUnknown
}

// Gateway is an HTTP client for a Stacks node and its indexer API.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	metrics    *metrics.Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) {
		if hc != nil {
			g.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records call latency per contract function.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New creates a Gateway for the node API at baseURL,
// e.g. "https://api.testnet.hiro.so".
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("module", "ledger")
	return g
}

type readOnlyRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type readOnlyResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// QueryReadOnly evaluates a read-only function as asAddress and decodes the
// returned value. Every failure wraps common.ErrLedgerQuery.
func (g *Gateway) QueryReadOnly(ctx context.Context, contract ContractID, function string, args []clarity.Value, asAddress string) (clarity.Value, error) {
	defer g.observe(function, time.Now())

	if asAddress == "" {
		asAddress = contract.Address
	}
	body := readOnlyRequest{Sender: asAddress, Arguments: make([]string, 0, len(args))}
	for i, a := range args {
		h, err := clarity.SerializeHex(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %s::%s arg %d: %v", common.ErrLedgerQuery, contract, function, i, err)
		}
		body.Arguments = append(body.Arguments, h)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLedgerQuery, err)
	}

	reqURL := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s", g.baseURL,
		url.PathEscape(contract.Address), url.PathEscape(contract.Name), url.PathEscape(function))

	var resp readOnlyResponse
	if err := g.doJSON(ctx, http.MethodPost, reqURL, "application/json", payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s::%s: %v", common.ErrLedgerQuery, contract, function, err)
	}
	if !resp.Okay {
		return nil, fmt.Errorf("%w: %s::%s: %s", common.ErrLedgerQuery, contract, function, resp.Cause)
	}
	v, err := clarity.DeserializeHex(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("%w: %s::%s: %v", common.ErrLedgerQuery, contract, function, err)
	}
	return v, nil
}

func (g *Gateway) observe(function string, start time.Time) {
	g.metrics.ObserveLedgerCall(function, time.Since(start).Seconds())
}

type broadcastError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	TxID   string `json:"txid"`
}

// SubmitTransaction asks signer for a signed transaction and broadcasts it.
// It returns as soon as the node accepts the transaction into its mempool.
// Nothing is retried; every failure wraps common.ErrTransactionSubmission.
func (g *Gateway) SubmitTransaction(ctx context.Context, contract ContractID, function string, args []clarity.Value, signer Signer) (Handle, error) {
	defer g.observe(function, time.Now())

	call := ContractCall{Contract: contract, Function: function, Args: args}
	if signer == nil {
		return Handle{}, fmt.Errorf("%w: %s: no signer", common.ErrTransactionSubmission, call)
	}

	signed, err := signer.SignContractCall(ctx, call)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", common.ErrTransactionSubmission, call, err)
	}

	if len(signed.Raw) == 0 {
		if !ValidTxID(signed.TxID) {
			return Handle{}, fmt.Errorf("%w: %s: wallet returned neither a transaction nor a valid id", common.ErrTransactionSubmission, call)
		}
		txID := NormalizeTxID(signed.TxID)
		if err := g.checkWalletTx(ctx, txID, signed.Sender, call); err != nil {
			return Handle{}, fmt.Errorf("%w: %s: %v", common.ErrTransactionSubmission, call, err)
		}
		g.logger.Info(ctx, "transaction broadcast by wallet", "call", call.String(), "tx_id", txID)
		return Handle{TxID: txID, Call: call}, nil
	}

	txID, err := g.broadcast(ctx, signed.Raw)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", common.ErrTransactionSubmission, call, err)
	}
	g.logger.Info(ctx, "transaction broadcast", "call", call.String(), "tx_id", txID)
	return Handle{TxID: txID, Call: call}, nil
}

// checkWalletTx rejects a wallet-reported transaction the indexer already
// knows as something other than call from sender. Transactions the indexer
// has not seen yet, or cannot be looked up, are accepted and left to the
// reconciler.
func (g *Gateway) checkWalletTx(ctx context.Context, txID, sender string, call ContractCall) error {
	st, err := g.TxStatus(ctx, txID)
	if err != nil {
		g.logger.Warn(ctx, "wallet transaction not verified", "call", call.String(), "tx_id", txID, "error", err)
		return nil
	}
	if !st.Seen() {
		return nil
	}
	if reason := CallMismatch(st, sender, call); reason != "" {
		return fmt.Errorf("transaction %s %s", txID, reason)
	}
	return nil
}

// CallMismatch explains why st is not the transaction of call sent by
// sender, or returns "" when it is. An empty sender is not checked.
func CallMismatch(st TxStatus, sender string, call ContractCall) string {
	switch {
	case st.Call == nil:
		return "is not a contract call"
	case sender != "" && st.Sender != sender:
		return fmt.Sprintf("was sent by %s, not %s", st.Sender, sender)
	case !st.Call.Equal(call):
		return fmt.Sprintf("calls %s with different arguments than %s", st.Call, call)
	}
	return ""
}

func (g *Gateway) broadcast(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/transactions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		var be broadcastError
		if json.Unmarshal(b, &be) == nil && be.Error != "" {
			return "", fmt.Errorf("%s: %s", be.Error, be.Reason)
		}
		return "", fmt.Errorf("broadcast failed: %s; body: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var txID string
	if err := json.Unmarshal(b, &txID); err != nil {
		txID = strings.TrimSpace(string(b))
	}
	if !ValidTxID(txID) {
		return "", fmt.Errorf("node returned malformed transaction id %q", txID)
	}
	return NormalizeTxID(txID), nil
}

type infoResponse struct {
	StacksTipHeight uint64 `json:"stacks_tip_height"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
}

// TipHeight returns the current Stacks chain tip height.
func (g *Gateway) TipHeight(ctx context.Context) (uint64, error) {
	var info infoResponse
	if err := g.doJSON(ctx, http.MethodGet, g.baseURL+"/v2/info", "", nil, &info); err != nil {
		return 0, fmt.Errorf("%w: tip height: %v", common.ErrLedgerQuery, err)
	}
	return info.StacksTipHeight, nil
}

type txResponse struct {
	TxID          string `json:"tx_id"`
	TxStatus      string `json:"tx_status"`
	TxType        string `json:"tx_type"`
	SenderAddress string `json:"sender_address"`
	BlockHeight   uint64 `json:"block_height"`
	TxResult      struct {
		Hex  string `json:"hex"`
		Repr string `json:"repr"`
	} `json:"tx_result"`
	ContractCall *struct {
		ContractID   string `json:"contract_id"`
		FunctionName string `json:"function_name"`
		FunctionArgs []struct {
			Hex string `json:"hex"`
		} `json:"function_args"`
	} `json:"contract_call"`
}

func (tr *txResponse) call() (*ContractCall, error) {
	if tr.TxType != "contract_call" || tr.ContractCall == nil {
		return nil, nil
	}
	contract, err := ParseContractID(tr.ContractCall.ContractID)
	if err != nil {
		return nil, err
	}
	call := &ContractCall{Contract: contract, Function: tr.ContractCall.FunctionName}
	for i, a := range tr.ContractCall.FunctionArgs {
		v, err := clarity.DeserializeHex(a.Hex)
		if err != nil {
			return nil, fmt.Errorf("function arg %d: %w", i, err)
		}
		call.Args = append(call.Args, v)
	}
	return call, nil
}

var errNotFound = errors.New("not found")

// TxStatus looks a transaction up in the indexer. Transactions the indexer
// has not seen yet are reported as pending.
func (g *Gateway) TxStatus(ctx context.Context, txID string) (TxStatus, error) {
	if !ValidTxID(txID) {
		return TxStatus{}, fmt.Errorf("%w: malformed transaction id %q", common.ErrInvalidInput, txID)
	}
	txID = NormalizeTxID(txID)

	var tr txResponse
	err := g.doJSON(ctx, http.MethodGet, g.baseURL+"/extended/v1/tx/"+url.PathEscape(txID), "", nil, &tr)
	if errors.Is(err, errNotFound) {
		return TxStatus{TxID: txID, State: TxPending, RawStatus: RawStatusUnknown}, nil
	}
	if err != nil {
		return TxStatus{}, fmt.Errorf("%w: tx %s: %v", common.ErrLedgerQuery, txID, err)
	}

	st := TxStatus{TxID: txID, RawStatus: tr.TxStatus, BlockHeight: tr.BlockHeight, Sender: tr.SenderAddress}
	if st.Call, err = tr.call(); err != nil {
		return TxStatus{}, fmt.Errorf("%w: tx %s call: %v", common.ErrLedgerQuery, txID, err)
	}
	switch {
	case tr.TxStatus == "pending":
		st.State = TxPending
	case tr.TxStatus == "success":
		st.State = TxSuccess
	default:
		// abort_by_response, abort_by_post_condition, dropped_*
		st.State = TxFailed
	}

	if tr.TxResult.Hex != "" && st.State != TxPending {
		v, err := clarity.DeserializeHex(tr.TxResult.Hex)
		if err != nil {
			return TxStatus{}, fmt.Errorf("%w: tx %s result: %v", common.ErrLedgerQuery, txID, err)
		}
		st.Result = v
	}
	return st, nil
}

func (g *Gateway) doJSON(ctx context.Context, method, reqURL, contentType string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s; body: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
