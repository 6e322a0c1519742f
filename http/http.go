// Package http exposes the merchant checkout service over HTTP and provides
// a client for it.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/merchant"
	ginmw "github.com/lmvdz/solana-pay/pkg/gin"
	"github.com/lmvdz/solana-pay/pkg/metrics"
)

// Routes
const (
	PathCheckouts = "/v1/checkouts"
	PathMints     = "/v1/mints"
	PathCheckout  = "/v1/checkouts/:id"
	PathCleanup   = "/v1/checkouts/:id/cleanup"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
)

// Server serves the checkout API.
type Server struct {
	merchant *merchant.Service
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server backed by svc.
func NewServer(svc *merchant.Service, opts ...ServerOption) *Server {
	s := &Server{
		merchant: svc,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(ginmw.Recovery(s.logger), ginmw.Metrics(), ginmw.RequestLogger(s.logger))

	r.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(PathMetrics, gin.WrapH(metrics.Handler()))

	r.POST(PathCheckouts, s.createCheckout)
	r.POST(PathMints, s.createMintCheckout)
	r.GET(PathCheckout, s.getCheckout)
	r.POST(PathCleanup, s.checkCleanup)
	return r
}

func (s *Server) createCheckout(c *gin.Context) {
	var body CheckoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	req, err := body.ToMerchant()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	session, err := s.merchant.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, NewSession(session))
}

func (s *Server) createMintCheckout(c *gin.Context) {
	var body MintCheckoutRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	req, err := body.ToMerchant()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	session, err := s.merchant.CreateMintCheckout(req)
	switch {
	case errors.Is(err, merchant.ErrNoInventory):
		abort(c, http.StatusNotImplemented, err)
		return
	case err != nil:
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, NewSession(session))
}

// getCheckout runs one check of a pending session, or with ?wait=true
// blocks until the session is final.
func (s *Server) getCheckout(c *gin.Context) {
	id := c.Param("id")
	wait, _ := strconv.ParseBool(c.Query("wait"))

	var (
		session *merchant.Session
		err     error
	)
	if wait {
		session, err = s.merchant.WaitForPayment(c.Request.Context(), id)
	} else {
		session, err = s.merchant.Check(c.Request.Context(), id)
	}

	switch {
	case errors.Is(err, merchant.ErrSessionNotFound):
		abort(c, http.StatusNotFound, err)
		return
	case session == nil:
		abort(c, http.StatusInternalServerError, err)
		return
	case err != nil && !solanapay.IsTransient(err) && !solanapay.IsTerminal(err) &&
		!errors.Is(err, merchant.ErrSessionExpired):
		// The ledger could not be read; the session is still pending.
		s.logger.Warn("checkout check failed", "session", id, "error", err)
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, NewSession(session))
}

func (s *Server) checkCleanup(c *gin.Context) {
	var body CleanupRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	sig, err := body.ParseSignature()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	session, err := s.merchant.CheckCleanup(c.Request.Context(), c.Param("id"), sig)
	var mismatch *solanapay.ValidationMismatchError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, NewSession(session))
	case errors.Is(err, merchant.ErrSessionNotFound):
		abort(c, http.StatusNotFound, err)
	case errors.As(err, &mismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Reason: mismatch.Reason})
	case solanapay.IsTransient(err):
		abort(c, http.StatusConflict, err)
	case session == nil:
		abort(c, http.StatusConflict, err)
	default:
		abort(c, http.StatusBadGateway, err)
	}
}

func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}
