// Package httpserver exposes the platform over HTTP/JSON with gin.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/dmitrijs2005/poapgate/internal/server/notify"
	"github.com/dmitrijs2005/poapgate/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type AuthService interface {
	Challenge(ctx context.Context, address string) (*services.Challenge, error)
	Verify(ctx context.Context, address, signature string) (string, error)
	Authenticate(token string) (string, error)
}

type IntentService interface {
	MintCredential(ctx context.Context, signer ledger.Signer, recipient, eventName string, eventDate uint64, imageURI string) (ledger.Handle, error)
	CreatePost(ctx context.Context, author, title, content string) (*models.Post, error)
	LikePost(ctx context.Context, postID, liker string) (int64, error)
	CreateProposal(ctx context.Context, signer ledger.Signer, creator string, in services.ProposalInput) (*models.Proposal, error)
	CastVote(ctx context.Context, signer ledger.Signer, voter, proposalID string, option int) (*models.Proposal, error)
}

type PlatformService interface {
	Stats(ctx context.Context) (*models.PlatformStats, error)
	ListPosts(ctx context.Context, limit, offset int) ([]*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListProposals(ctx context.Context, limit, offset int) ([]*models.Proposal, error)
	GetProposal(ctx context.Context, id string) (*services.ProposalDetail, error)
	ListMilestones(ctx context.Context) ([]*models.Milestone, error)
}

type AccountService interface {
	Overview(ctx context.Context, address string) (*milestones.Overview, error)
	PublicOverview(ctx context.Context, address string) (*milestones.Overview, error)
	Evaluate(ctx context.Context, address string) ([]*models.Milestone, error)
}

type ArtworkService interface {
	PresignUpload(ctx context.Context, contentType string) (*services.ArtworkUpload, error)
}

// Feed delivers committed post inserts; *mirror.Client implements it.
type Feed interface {
	Subscribe(ctx context.Context, after string) (<-chan notify.Event, error)
}

// Services bundles the handlers' dependencies.
type Services struct {
	Auth     AuthService
	Intents  IntentService
	Platform PlatformService
	Accounts AccountService
	Artwork  ArtworkService
	Feed     Feed
}

type Options struct {
	AllowedOrigins []string
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

type HTTPServer struct {
	address string
	engine  *gin.Engine
	logger  logging.Logger
}

func New(address string, l logging.Logger, svc Services, opts Options) *HTTPServer {
	if l == nil {
		l = logging.Nop()
	}
	s := &HTTPServer{
		address: address,
		logger:  l.With("module", "http_server"),
	}
	s.engine = newRouter(s.logger, svc, opts)
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// streams end with ctx instead of holding Shutdown open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
