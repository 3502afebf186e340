package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func newRouter(l logging.Logger, svc Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(l), gin.Recovery())

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Last-Event-ID"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	h := &handlers{svc: svc, logger: l}

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/challenge", h.challenge)
		v1.POST("/auth/verify", h.verify)

		v1.GET("/stats", h.stats)
		v1.GET("/posts", h.listPosts)
		v1.GET("/posts/stream", h.streamPosts)
		v1.GET("/posts/:id", h.getPost)
		v1.GET("/proposals", h.listProposals)
		v1.GET("/proposals/:id", h.getProposal)
		v1.GET("/milestones", h.listMilestones)
		v1.GET("/accounts/:address", h.account)

		secured := v1.Group("")
		secured.Use(JWTMiddleware(svc.Auth))
		secured.GET("/me", h.me)
		secured.POST("/me/evaluate", h.evaluate)
		secured.POST("/posts", h.createPost)
		secured.POST("/posts/:id/like", h.likePost)
		secured.POST("/proposals", h.createProposal)
		secured.POST("/proposals/:id/vote", h.castVote)
		secured.POST("/credentials", h.mintCredential)
		secured.POST("/artwork/presign", h.presignArtwork)
	}

	return r
}
