package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger/clarity"
	"github.com/dmitrijs2005/poapgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddr = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	testTxID = "0x2f6a1d3a4e5b6c7d8e9f00112233445566778899aabbccddeeff001122334455"
)

var testPOAP = MustParseContractID(testAddr + ".poap")

func TestQueryReadOnly_DecodesResult(t *testing.T) {
	var gotPath string
	var gotBody readOnlyRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"okay":true,"result":"0x0703"}`))
	}))
	defer ts.Close()

	g := New(ts.URL + "/")
	p, err := clarity.Principal(testAddr)
	require.NoError(t, err)

	v, err := g.QueryReadOnly(context.Background(), testPOAP, "has-poap", []clarity.Value{p}, testAddr)
	require.NoError(t, err)

	assert.Equal(t, "/v2/contracts/call-read/"+testAddr+"/poap/has-poap", gotPath)
	assert.Equal(t, testAddr, gotBody.Sender)
	assert.Equal(t, []string{"0x0516a46ff88886c2ef9762d970b4d2c63678835bd39d"}, gotBody.Arguments)
	assert.Equal(t, clarity.ResponseOk{Value: clarity.Bool(true)}, v)
}

func TestQueryReadOnly_DefaultsSenderToContract(t *testing.T) {
	var gotBody readOnlyRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"okay":true,"result":"0x09"}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL).QueryReadOnly(context.Background(), testPOAP, "get-proposal", nil, "")
	require.NoError(t, err)
	assert.Equal(t, testAddr, gotBody.Sender)
	assert.Empty(t, gotBody.Arguments)
}

func TestQueryReadOnly_ObservesLatency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"okay":true,"result":"0x03"}`))
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	g := New(ts.URL, WithMetrics(metrics.New(reg)))

	_, err := g.QueryReadOnly(context.Background(), testPOAP, "has-poap", nil, "")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "poapgate_ledger_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueryReadOnly_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "not okay",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"okay":false,"cause":"Unchecked(NoSuchContract)"}`))
			},
			want: "NoSuchContract",
		},
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: "500",
		},
		{
			name: "bad hex",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"okay":true,"result":"0xzz"}`))
			},
			want: "bad hex",
		},
		{
			name: "garbage json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			want: "decoding response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			_, err := New(ts.URL).QueryReadOnly(context.Background(), testPOAP, "has-poap", nil, testAddr)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrLedgerQuery)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestQueryReadOnly_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := New(ts.URL).QueryReadOnly(context.Background(), testPOAP, "has-poap", nil, testAddr)
	assert.ErrorIs(t, err, common.ErrLedgerQuery)
}

func TestSubmitTransaction_BroadcastsRaw(t *testing.T) {
	var gotBody []byte
	var gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/transactions", r.URL.Path)
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`"` + strings.TrimPrefix(testTxID, "0x") + `"`))
	}))
	defer ts.Close()

	var seen ContractCall
	signer := SignerFunc(func(ctx context.Context, call ContractCall) (SignedTx, error) {
		seen = call
		return SignedTx{Raw: []byte{0x80, 0x01}}, nil
	})

	h, err := New(ts.URL).SubmitTransaction(context.Background(), testPOAP, "mint-poap", []clarity.Value{clarity.UInt(1)}, signer)
	require.NoError(t, err)

	assert.Equal(t, testTxID, h.TxID)
	assert.Equal(t, "mint-poap", h.Call.Function)
	assert.Equal(t, "application/octet-stream", gotCT)
	assert.Equal(t, []byte{0x80, 0x01}, gotBody)
	assert.Equal(t, testPOAP, seen.Contract)
}

// contractCallTx renders an indexer record of call sent by sender.
func contractCallTx(t *testing.T, status, sender string, call ContractCall) string {
	t.Helper()
	type arg struct {
		Hex string `json:"hex"`
	}
	args := make([]arg, 0, len(call.Args))
	for _, a := range call.Args {
		h, err := clarity.SerializeHex(a)
		require.NoError(t, err)
		args = append(args, arg{Hex: h})
	}
	b, err := json.Marshal(map[string]any{
		"tx_id":          testTxID,
		"tx_status":      status,
		"tx_type":        "contract_call",
		"sender_address": sender,
		"contract_call": map[string]any{
			"contract_id":   call.Contract.String(),
			"function_name": call.Function,
			"function_args": args,
		},
	})
	require.NoError(t, err)
	return string(b)
}

func TestSubmitTransaction_WalletBroadcast(t *testing.T) {
	mint := ContractCall{Contract: testPOAP, Function: "mint-poap", Args: []clarity.Value{clarity.UInt(1)}}
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"matching call", 200, contractCallTx(t, "pending", testAddr, mint), ""},
		{"not yet indexed", 404, `{"error":"could not find transaction"}`, ""},
		{"indexer down", 500, `oops`, ""},
		{"other function", 200, contractCallTx(t, "pending", testAddr,
			ContractCall{Contract: testPOAP, Function: "transfer", Args: mint.Args}), "different arguments"},
		{"other args", 200, contractCallTx(t, "success", testAddr,
			ContractCall{Contract: testPOAP, Function: "mint-poap", Args: []clarity.Value{clarity.UInt(2)}}), "different arguments"},
		{"other sender", 200, contractCallTx(t, "pending", "SP000000000000000000002Q6VF78", mint), "was sent by"},
		{"token transfer", 200, `{"tx_id":"x","tx_status":"success","tx_type":"token_transfer","sender_address":"` + testAddr + `"}`,
			"not a contract call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/extended/v1/tx/"+testTxID, r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			h, err := New(ts.URL).SubmitTransaction(context.Background(), testPOAP, "mint-poap", mint.Args,
				WalletSigner{TxID: strings.ToUpper(strings.TrimPrefix(testTxID, "0x")), Address: testAddr})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrTransactionSubmission)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testTxID, h.TxID)
		})
	}
}

func TestSubmitTransaction_Failures(t *testing.T) {
	rejected := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"transaction rejected","reason":"BadNonce","txid":"abc"}`))
	}))
	defer rejected.Close()

	tests := []struct {
		name   string
		url    string
		signer Signer
		want   string
	}{
		{"nil signer", rejected.URL, nil, "no signer"},
		{"wallet declined", rejected.URL, WalletSigner{}, "wallet rejected"},
		{"bad wallet txid", rejected.URL, WalletSigner{TxID: "0x123"}, "malformed"},
		{"signer error", rejected.URL, SignerFunc(func(context.Context, ContractCall) (SignedTx, error) {
			return SignedTx{}, errors.New("user closed popup")
		}), "user closed popup"},
		{"node rejects", rejected.URL, WalletSigner{Raw: []byte{1}}, "BadNonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.url).SubmitTransaction(context.Background(), testPOAP, "mint-poap", nil, tt.signer)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrTransactionSubmission)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTipHeight(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/info", r.URL.Path)
		_, _ = w.Write([]byte(`{"stacks_tip_height":1234,"burn_block_height":99}`))
	}))
	defer ts.Close()

	h, err := New(ts.URL).TipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), h)
}

func TestTxStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantState TxState
		wantRes   clarity.Value
	}{
		{"success", 200, `{"tx_id":"x","tx_status":"success","block_height":10,"tx_result":{"hex":"0x070100000000000000000000000000000007","repr":"(ok u7)"}}`,
			TxSuccess, clarity.ResponseOk{Value: clarity.UInt(7)}},
		{"pending", 200, `{"tx_id":"x","tx_status":"pending"}`, TxPending, nil},
		{"abort", 200, `{"tx_id":"x","tx_status":"abort_by_response","tx_result":{"hex":"0x080100000000000000000000000000000065"}}`,
			TxFailed, clarity.ResponseErr{Value: clarity.UInt(101)}},
		{"dropped", 200, `{"tx_id":"x","tx_status":"dropped_replace_by_fee"}`, TxFailed, nil},
		{"unknown to indexer", 404, `{"error":"could not find transaction"}`, TxPending, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/extended/v1/tx/"+testTxID, r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			st, err := New(ts.URL).TxStatus(context.Background(), testTxID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, st.State)
			assert.Equal(t, tt.wantRes, st.Result)
			assert.Equal(t, testTxID, st.TxID)
		})
	}
}

func TestTxStatus_DecodesContractCall(t *testing.T) {
	vote := ContractCall{
		Contract: MustParseContractID(testAddr + ".voting"),
		Function: "cast-vote",
		Args:     VoteArgs(3, 1),
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(contractCallTx(t, "pending", testAddr, vote)))
	}))
	defer ts.Close()

	st, err := New(ts.URL).TxStatus(context.Background(), testTxID)
	require.NoError(t, err)
	assert.True(t, st.Seen())
	assert.Equal(t, testAddr, st.Sender)
	require.NotNil(t, st.Call)
	assert.True(t, st.Call.Equal(vote))
	assert.Equal(t, []clarity.Value{clarity.UInt(3), clarity.UInt(2)}, st.Call.Args)
	assert.Empty(t, CallMismatch(st, testAddr, vote))
}

func TestTxStatus_BadContractCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx_id":"x","tx_status":"pending","tx_type":"contract_call",` +
			`"contract_call":{"contract_id":"` + testAddr + `.voting","function_name":"cast-vote","function_args":[{"hex":"0xzz"}]}}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL).TxStatus(context.Background(), testTxID)
	assert.ErrorIs(t, err, common.ErrLedgerQuery)
}

func TestTxStatus_InvalidID(t *testing.T) {
	_, err := New("http://127.0.0.1:0").TxStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestParseContractID(t *testing.T) {
	c, err := ParseContractID(testAddr + ".voting")
	require.NoError(t, err)
	assert.Equal(t, ContractID{Address: testAddr, Name: "voting"}, c)
	assert.Equal(t, testAddr+".voting", c.String())

	for _, bad := range []string{"", testAddr, testAddr + ".", "SPXXXX.voting"} {
		_, err := ParseContractID(bad)
		assert.Error(t, err, bad)
	}
}
