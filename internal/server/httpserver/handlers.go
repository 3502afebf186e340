package httpserver

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/ledger"
	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/dmitrijs2005/poapgate/internal/server/services"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	svc    Services
	logger logging.Logger
}

// walletTx is the result of the client's wallet round-trip: either the
// signed transaction to broadcast or the id of one the wallet broadcast.
// Either way it must come from the authenticated address.
type walletTx struct {
	TxID  string `json:"tx_id"`
	RawTx string `json:"raw_tx"`
}

func (w walletTx) signer(sender string) (ledger.WalletSigner, error) {
	switch {
	case w.RawTx != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(w.RawTx, "0x"))
		if err != nil || len(raw) == 0 {
			return ledger.WalletSigner{}, errors.New("raw_tx must be hex")
		}
		return ledger.WalletSigner{Raw: raw, Address: sender}, nil
	case w.TxID != "":
		if !ledger.ValidTxID(w.TxID) {
			return ledger.WalletSigner{}, errors.New("malformed tx_id")
		}
		return ledger.WalletSigner{TxID: w.TxID, Address: sender}, nil
	default:
		return ledger.WalletSigner{}, errors.New("tx_id or raw_tx is required")
	}
}

func page(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return services.ClampPage(limit, offset)
}

func (h *handlers) challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ch, err := h.svc.Auth.Challenge(c.Request.Context(), req.Address)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (h *handlers) verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, err := h.svc.Auth.Verify(c.Request.Context(), req.Address, req.Signature)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "address": req.Address})
}

func (h *handlers) stats(c *gin.Context) {
	st, err := h.svc.Platform.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handlers) listPosts(c *gin.Context) {
	limit, offset := page(c)
	posts, err := h.svc.Platform.ListPosts(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "limit": limit, "offset": offset})
}

func (h *handlers) getPost(c *gin.Context) {
	p, err := h.svc.Platform.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// streamPosts sends post inserts as server-sent events. A reconnecting client
// resumes after the id in Last-Event-ID.
func (h *handlers) streamPosts(c *gin.Context) {
	after := c.GetHeader("Last-Event-ID")
	if after == "" {
		after = c.Query("after")
	}

	ctx := c.Request.Context()
	events, err := h.svc.Feed.Subscribe(ctx, after)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Render(-1, sse.Event{Id: ev.ID, Event: "post", Data: ev.Post})
			c.Writer.Flush()
		}
	}
}

func (h *handlers) listProposals(c *gin.Context) {
	limit, offset := page(c)
	ps, err := h.svc.Platform.ListProposals(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": ps, "limit": limit, "offset": offset})
}

func (h *handlers) getProposal(c *gin.Context) {
	d, err := h.svc.Platform.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) listMilestones(c *gin.Context) {
	ms, err := h.svc.Platform.ListMilestones(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": ms})
}

func (h *handlers) account(c *gin.Context) {
	ov, err := h.svc.Accounts.PublicOverview(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *handlers) me(c *gin.Context) {
	ov, err := h.svc.Accounts.Overview(c.Request.Context(), c.GetString(addrKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *handlers) evaluate(c *gin.Context) {
	awarded, err := h.svc.Accounts.Evaluate(c.Request.Context(), c.GetString(addrKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"awarded": awarded})
}

func (h *handlers) createPost(c *gin.Context) {
	var req struct {
		Title   string `json:"title" binding:"required"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	post, err := h.svc.Intents.CreatePost(c.Request.Context(), c.GetString(addrKey), req.Title, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *handlers) likePost(c *gin.Context) {
	n, err := h.svc.Intents.LikePost(c.Request.Context(), c.Param("id"), c.GetString(addrKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": c.Param("id"), "like_count": n})
}

func (h *handlers) createProposal(c *gin.Context) {
	var req struct {
		walletTx
		Title          string   `json:"title" binding:"required"`
		Description    string   `json:"description"`
		DurationBlocks uint64   `json:"duration_blocks" binding:"required"`
		Options        []string `json:"options" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	signer, err := req.signer(c.GetString(addrKey))
	if err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Intents.CreateProposal(c.Request.Context(), signer, c.GetString(addrKey), services.ProposalInput{
		Title:          req.Title,
		Description:    req.Description,
		DurationBlocks: req.DurationBlocks,
		Options:        req.Options,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *handlers) castVote(c *gin.Context) {
	var req struct {
		walletTx
		Option *int `json:"option" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	signer, err := req.signer(c.GetString(addrKey))
	if err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Intents.CastVote(c.Request.Context(), signer, c.GetString(addrKey), c.Param("id"), *req.Option)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *handlers) mintCredential(c *gin.Context) {
	var req struct {
		walletTx
		Recipient string `json:"recipient" binding:"required"`
		EventName string `json:"event_name" binding:"required"`
		EventDate uint64 `json:"event_date"`
		ImageURI  string `json:"image_uri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	signer, err := req.signer(c.GetString(addrKey))
	if err != nil {
		badRequest(c, err)
		return
	}
	handle, err := h.svc.Intents.MintCredential(c.Request.Context(), signer, req.Recipient, req.EventName, req.EventDate, req.ImageURI)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"tx_id": handle.TxID})
}

func (h *handlers) presignArtwork(c *gin.Context) {
	var req struct {
		ContentType string `json:"content_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	up, err := h.svc.Artwork.PresignUpload(c.Request.Context(), req.ContentType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, up)
}
