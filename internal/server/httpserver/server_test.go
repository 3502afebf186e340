package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/notify"
	"github.com/dmitrijs2005/poapgate/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addr  = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	token = "good-token"
)

var txID = fmt.Sprintf("0x%064x", 42)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- fakes ----

type fakeAuth struct {
	verifyErr error
}

func (f *fakeAuth) Challenge(_ context.Context, address string) (*services.Challenge, error) {
	if address == "bad" {
		return nil, fmt.Errorf("%w: bad address", common.ErrInvalidInput)
	}
	return &services.Challenge{Nonce: "n1", Message: "Sign in\n\nNonce: n1"}, nil
}

func (f *fakeAuth) Verify(context.Context, string, string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	return token, nil
}

func (f *fakeAuth) Authenticate(t string) (string, error) {
	if t != token {
		return "", common.ErrInvalidToken
	}
	return addr, nil
}

type fakeIntents struct {
	IntentService
	err        error
	gotSigner  ledger.Signer
	gotAuthor  string
	gotOption  int
	gotInput   services.ProposalInput
	gotPostID  string
	mintCalled bool
}

func (f *fakeIntents) CreatePost(_ context.Context, author, title, content string) (*models.Post, error) {
	f.gotAuthor = author
	if f.err != nil {
		return nil, f.err
	}
	return &models.Post{ID: "p1", Author: author, Title: title, Content: content}, nil
}

func (f *fakeIntents) LikePost(_ context.Context, postID, liker string) (int64, error) {
	f.gotPostID, f.gotAuthor = postID, liker
	return 3, f.err
}

func (f *fakeIntents) CreateProposal(_ context.Context, signer ledger.Signer, creator string, in services.ProposalInput) (*models.Proposal, error) {
	f.gotSigner, f.gotAuthor, f.gotInput = signer, creator, in
	if f.err != nil {
		return nil, f.err
	}
	return &models.Proposal{ID: "pr1", Title: in.Title, Options: in.Options, Votes: make([]int64, len(in.Options))}, nil
}

func (f *fakeIntents) CastVote(_ context.Context, signer ledger.Signer, voter, proposalID string, option int) (*models.Proposal, error) {
	f.gotSigner, f.gotAuthor, f.gotOption = signer, voter, option
	if f.err != nil {
		return nil, f.err
	}
	return &models.Proposal{ID: proposalID, Options: []string{"Yes", "No"}, Votes: []int64{1, 0}, TotalVotes: 1}, nil
}

func (f *fakeIntents) MintCredential(_ context.Context, signer ledger.Signer, recipient, eventName string, eventDate uint64, imageURI string) (ledger.Handle, error) {
	f.mintCalled = true
	f.gotSigner = signer
	return ledger.Handle{TxID: txID}, f.err
}

type fakePlatform struct {
	PlatformService
	gotLimit, gotOffset int
}

func (f *fakePlatform) Stats(context.Context) (*models.PlatformStats, error) {
	return &models.PlatformStats{Posts: 2, Proposals: 1, Users: 3, ActiveProposals: 1}, nil
}

func (f *fakePlatform) ListPosts(_ context.Context, limit, offset int) ([]*models.Post, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return []*models.Post{{ID: "p1"}}, nil
}

func (f *fakePlatform) GetPost(_ context.Context, id string) (*models.Post, error) {
	if id != "p1" {
		return nil, common.ErrorNotFound
	}
	return &models.Post{ID: id}, nil
}

func (f *fakePlatform) GetProposal(_ context.Context, id string) (*services.ProposalDetail, error) {
	win := 0
	return &services.ProposalDetail{
		Proposal:      &models.Proposal{ID: id, Options: []string{"Yes", "No"}, Votes: []int64{1, 0}, TotalVotes: 1},
		Percentages:   []float64{100, 0},
		WinningOption: &win,
	}, nil
}

type fakeAccounts struct {
	AccountService
	gotAddress string
	gotPublic  string
}

func (f *fakeAccounts) Overview(_ context.Context, address string) (*milestones.Overview, error) {
	f.gotAddress = address
	return &milestones.Overview{Stats: &models.UserStats{Address: address, PostsCreated: 4}}, nil
}

func (f *fakeAccounts) PublicOverview(_ context.Context, address string) (*milestones.Overview, error) {
	f.gotPublic = address
	return &milestones.Overview{Stats: &models.UserStats{Address: address}}, nil
}

type fakeArtwork struct{}

func (fakeArtwork) PresignUpload(_ context.Context, contentType string) (*services.ArtworkUpload, error) {
	if contentType != "image/png" {
		return nil, fmt.Errorf("%w: unsupported", common.ErrInvalidInput)
	}
	return &services.ArtworkUpload{Key: "poap/k.png", UploadURL: "http://s3/put", ImageURI: "http://cdn/poap/k.png"}, nil
}

type fakeFeed struct {
	events   []notify.Event
	gotAfter string
}

func (f *fakeFeed) Subscribe(_ context.Context, after string) (<-chan notify.Event, error) {
	f.gotAfter = after
	ch := make(chan notify.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type fixture struct {
	srv      *HTTPServer
	intents  *fakeIntents
	platform *fakePlatform
	accounts *fakeAccounts
	feed     *fakeFeed
	auth     *fakeAuth
}

func newFixture() *fixture {
	f := &fixture{
		intents:  &fakeIntents{},
		platform: &fakePlatform{},
		accounts: &fakeAccounts{},
		feed:     &fakeFeed{},
		auth:     &fakeAuth{},
	}
	f.srv = New(":0", nil, Services{
		Auth:     f.auth,
		Intents:  f.intents,
		Platform: f.platform,
		Accounts: f.accounts,
		Artwork:  fakeArtwork{},
		Feed:     f.feed,
	}, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("poapgate_up 1\n"))
	})})
	return f
}

func (f *fixture) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ---- tests ----

func TestAuthFlow(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/auth/challenge", map[string]string{"address": addr}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n1", decode(t, w)["nonce"])

	w = f.do(http.MethodPost, "/v1/auth/challenge", map[string]string{"address": "bad"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/auth/challenge", map[string]string{}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/auth/verify", map[string]string{"address": addr, "signature": "00"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, token, decode(t, w)["token"])

	f.auth.verifyErr = common.ErrInvalidSignature
	w = f.do(http.MethodPost, "/v1/auth/verify", map[string]string{"address": addr, "signature": "00"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSecuredRoutesRequireToken(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/posts", map[string]string{"title": "t", "content": "c"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.accounts.gotAddress)
}

func TestCreatePost(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/posts", map[string]string{"title": "t", "content": "c"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, addr, f.intents.gotAuthor)
	assert.Equal(t, "p1", decode(t, w)["id"])
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrNotEligible, http.StatusForbidden},
		{common.ErrDuplicateAction, http.StatusConflict},
		{common.ErrTransactionSubmission, http.StatusBadGateway},
		{common.ErrLedgerQuery, http.StatusBadGateway},
		{common.ErrMirrorWrite, http.StatusInternalServerError},
		{common.ErrProposalPending, http.StatusServiceUnavailable},
		{common.ErrInvalidInput, http.StatusBadRequest},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.intents.err = fmt.Errorf("wrapped: %w", tt.err)
			w := f.do(http.MethodPost, "/v1/posts", map[string]string{"title": "t", "content": "c"}, true)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	f := newFixture()
	f.intents.err = errors.New("pq: password authentication failed")

	w := f.do(http.MethodPost, "/v1/posts", map[string]string{"title": "t", "content": "c"}, true)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["err"])

	f.intents.err = fmt.Errorf("%w: vote submitted as %s but not recorded", common.ErrMirrorWrite, txID)
	w = f.do(http.MethodPost, "/v1/posts", map[string]string{"title": "t", "content": "c"}, true)
	assert.Contains(t, decode(t, w)["err"], txID)
}

func TestProposalPendingSetsRetryAfter(t *testing.T) {
	f := newFixture()
	f.intents.err = common.ErrProposalPending

	w := f.do(http.MethodPost, "/v1/proposals/pr1/vote", map[string]any{"option": 0, "tx_id": txID}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestCreateProposal_WalletPayload(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/proposals", map[string]any{
		"title": "Venue", "duration_blocks": 144, "options": []string{"A", "B"}, "raw_tx": "0x0a0b",
	}, true)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, ledger.WalletSigner{Raw: []byte{0x0a, 0x0b}, Address: addr}, f.intents.gotSigner)
	assert.Equal(t, []string{"A", "B"}, f.intents.gotInput.Options)
	assert.EqualValues(t, 144, f.intents.gotInput.DurationBlocks)

	w = f.do(http.MethodPost, "/v1/proposals", map[string]any{
		"title": "Venue", "duration_blocks": 144, "options": []string{"A", "B"},
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/proposals", map[string]any{
		"title": "Venue", "duration_blocks": 144, "options": []string{"A", "B"}, "raw_tx": "zz",
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCastVote(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/proposals/pr1/vote", map[string]any{"option": 0, "tx_id": txID}, true)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 0, f.intents.gotOption)
	assert.Equal(t, ledger.WalletSigner{TxID: txID, Address: addr}, f.intents.gotSigner)
	assert.EqualValues(t, 1, decode(t, w)["total_votes"])

	w = f.do(http.MethodPost, "/v1/proposals/pr1/vote", map[string]any{"tx_id": txID}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/proposals/pr1/vote", map[string]any{"option": 1, "tx_id": "0x12"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLikeMintAndPresign(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/v1/posts/p1/like", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", f.intents.gotPostID)
	assert.EqualValues(t, 3, decode(t, w)["like_count"])

	w = f.do(http.MethodPost, "/v1/credentials", map[string]any{
		"recipient": addr, "event_name": "DevCon", "event_date": 20240101, "tx_id": txID,
	}, true)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, f.intents.mintCalled)
	assert.Equal(t, txID, decode(t, w)["tx_id"])

	w = f.do(http.MethodPost, "/v1/artwork/presign", map[string]string{"content_type": "image/png"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://cdn/poap/k.png", decode(t, w)["image_uri"])

	w = f.do(http.MethodPost, "/v1/artwork/presign", map[string]string{"content_type": "text/plain"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/v1/stats", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["total_users"])

	w = f.do(http.MethodGet, "/v1/posts?limit=500&offset=-3", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.MaxPageSize, f.platform.gotLimit)
	assert.Equal(t, 0, f.platform.gotOffset)

	w = f.do(http.MethodGet, "/v1/posts/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/v1/proposals/pr1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 0, body["winning_option"])
	assert.Equal(t, []any{float64(100), float64(0)}, body["percentages"])

	w = f.do(http.MethodGet, "/v1/accounts/"+addr, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, addr, f.accounts.gotPublic)
	assert.Empty(t, f.accounts.gotAddress)

	w = f.do(http.MethodGet, "/v1/me", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, addr, f.accounts.gotAddress)

	w = f.do(http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/metrics", nil, false)
	assert.Contains(t, w.Body.String(), "poapgate_up")
}

func TestStreamPosts(t *testing.T) {
	f := newFixture()
	f.feed.events = []notify.Event{
		{ID: "4", Post: models.Post{ID: "p4", Title: "four"}},
		{ID: "5", Post: models.Post{ID: "p5", Title: "five"}},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/posts/stream", nil)
	req.Header.Set("Last-Event-ID", "3")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "3", f.feed.gotAfter)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "id:4\nevent:post\ndata:")
	assert.Contains(t, body, `"title":"five"`)
	assert.Less(t, strings.Index(body, "id:4"), strings.Index(body, "id:5"))
}
