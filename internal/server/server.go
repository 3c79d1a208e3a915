// Package server exposes the gatekeeper over HTTP.
//
// Administrative entry points live under /admin and require the bearer
// token that stands in for the privileged address. Everything else is
// public: access checks, subscription purchase, and read-only views of the
// registry, fee schedule, and ledger.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/halverson/tokengate/internal/metrics"
	"github.com/halverson/tokengate/pkg/gatekeeper"
	"github.com/halverson/tokengate/pkg/holdings"
	"github.com/halverson/tokengate/pkg/registry"
	"github.com/halverson/tokengate/pkg/subscription"
	"github.com/halverson/tokengate/pkg/treasury"
)

// Server routes HTTP traffic to the gatekeeper.
type Server struct {
	gate       *gatekeeper.Gatekeeper
	adminAddr  common.Address
	adminToken string
	logger     zerolog.Logger
	router     chi.Router
}

// New creates the HTTP server. The admin token authenticates requests made
// on behalf of adminAddr; core operations still receive the address itself
// as the credential.
func New(gate *gatekeeper.Gatekeeper, adminAddr common.Address, adminToken string, logger zerolog.Logger) *Server {
	s := &Server{
		gate:       gate,
		adminAddr:  adminAddr,
		adminToken: adminToken,
		logger:     logger.With().Str("component", "server").Logger(),
		router:     chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/access/{account}", s.handleCheckAccess)
	s.router.Post("/subscribe", s.handleSubscribe)

	s.router.Get("/assets", s.handleListAssets)
	s.router.Get("/fee", s.handleGetFee)
	s.router.Get("/subscriptions", s.handleListSubscriptions)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Post("/assets", s.handleRegisterAsset)
		r.Post("/assets/{address}/disable", s.handleDisableAsset)
		r.Put("/fee", s.handleSetFee)
		r.Post("/withdraw", s.handleWithdraw)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Msg("request")
	})
}

// adminOnly rejects requests that do not carry the admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token[len(prefix):]), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"assets":        len(s.gate.Rules()),
		"subscriptions": len(s.gate.Subscriptions()),
	})
}

// AccessResponse is returned by GET /access/{account}.
type AccessResponse struct {
	Account string `json:"account"`
	Granted bool   `json:"granted"`
}

// GET /access/{account}
func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "account")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	account := common.HexToAddress(raw)

	granted, err := s.gate.CheckAccess(r.Context(), account)
	if err != nil {
		if errors.Is(err, holdings.ErrOracleFailure) {
			metrics.OracleFailures.Inc()
		}
		s.logger.Error().Err(err).Str("account", account.Hex()).Msg("access check failed")
		s.writeCoreError(w, err)
		return
	}

	verdict := "denied"
	if granted {
		verdict = "granted"
	}
	metrics.AccessChecks.WithLabelValues(verdict).Inc()

	writeJSON(w, http.StatusOK, AccessResponse{Account: account.Hex(), Granted: granted})
}

// SubscribeRequest is the body for POST /subscribe. Amounts are decimal
// strings in wei.
type SubscribeRequest struct {
	Subscriber string `json:"subscriber"`
	Payment    string `json:"payment"`
}

// GET views share this record shape.
type subscriptionView struct {
	ID          string `json:"id"`
	Subscriber  string `json:"subscriber"`
	Payment     string `json:"payment"`
	PurchasedAt string `json:"purchased_at"`
	ExpiresAt   string `json:"expires_at"`
	Kind        string `json:"kind"`
}

func viewRecord(rec subscription.Record) subscriptionView {
	return subscriptionView{
		ID:          rec.ID.String(),
		Subscriber:  rec.Subscriber.Hex(),
		Payment:     rec.Payment.String(),
		PurchasedAt: rec.PurchasedAt.UTC().Format(time.RFC3339),
		ExpiresAt:   rec.ExpiresAt.UTC().Format(time.RFC3339),
		Kind:        rec.Kind.String(),
	}
}

// POST /subscribe
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Subscriber) {
		writeError(w, http.StatusBadRequest, "invalid subscriber address")
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment amount")
		return
	}

	rec, err := s.gate.Subscribe(common.HexToAddress(req.Subscriber), payment)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}
	metrics.Subscriptions.Inc()

	writeJSON(w, http.StatusCreated, viewRecord(rec))
}

// RegisterAssetRequest is the body for POST /admin/assets.
type RegisterAssetRequest struct {
	Contract  string `json:"contract"`
	Standard  string `json:"standard"`
	TokenID   string `json:"token_id,omitempty"`
	MinAmount string `json:"min_amount,omitempty"`
	Lifetime  bool   `json:"lifetime"`
}

// POST /admin/assets
func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req RegisterAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Contract) {
		writeError(w, http.StatusBadRequest, "invalid contract address")
		return
	}
	standard, err := registry.ParseStandard(req.Standard)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	rule := registry.AssetRule{
		Contract: common.HexToAddress(req.Contract),
		Standard: standard,
		Lifetime: req.Lifetime,
	}
	if req.TokenID != "" {
		rule.TokenID, err = parseAmount(req.TokenID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid token id")
			return
		}
	}
	if req.MinAmount != "" {
		rule.MinAmount, err = parseAmount(req.MinAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid minimum amount")
			return
		}
	}

	if err := s.gate.RegisterAsset(s.adminAddr, rule); err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.viewRule(rule))
}

// POST /admin/assets/{address}/disable
func (s *Server) handleDisableAsset(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid contract address")
		return
	}

	if err := s.gate.DisableAsset(s.adminAddr, common.HexToAddress(raw)); err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// SetFeeRequest is the body for PUT /admin/fee.
type SetFeeRequest struct {
	Price string `json:"price"`
	Kind  string `json:"kind"`
}

// PUT /admin/fee
func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req SetFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	if err := s.gate.SetFee(s.adminAddr, price, req.Kind); err != nil {
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.feeView())
}

// POST /admin/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.gate.Withdraw(r.Context(), s.adminAddr)
	if err != nil {
		s.logger.Error().Err(err).Msg("withdrawal failed")
		s.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"to":     s.adminAddr.Hex(),
		"amount": amount.String(),
	})
}

type assetView struct {
	Contract  string `json:"contract"`
	Standard  string `json:"standard"`
	TokenID   string `json:"token_id,omitempty"`
	MinAmount string `json:"min_amount,omitempty"`
	Lifetime  bool   `json:"lifetime"`
	Enabled   bool   `json:"enabled"`
}

func (s *Server) viewRule(rule registry.AssetRule) assetView {
	v := assetView{
		Contract: rule.Contract.Hex(),
		Standard: rule.Standard.String(),
		Lifetime: rule.Lifetime,
		Enabled:  s.gate.AssetEnabled(rule.Contract),
	}
	if rule.TokenID != nil {
		v.TokenID = rule.TokenID.String()
	}
	if rule.MinAmount != nil {
		v.MinAmount = rule.MinAmount.String()
	}
	return v
}

// GET /assets
func (s *Server) handleListAssets(w http.ResponseWriter, _ *http.Request) {
	rules := s.gate.Rules()
	views := make([]assetView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, s.viewRule(rule))
	}
	writeJSON(w, http.StatusOK, views)
}

type feeView struct {
	Price string `json:"price"`
	Kind  string `json:"kind"`
}

func (s *Server) feeView() feeView {
	fee := s.gate.Fee()
	return feeView{Price: fee.Price.String(), Kind: fee.Kind.String()}
}

// GET /fee
func (s *Server) handleGetFee(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.feeView())
}

// GET /subscriptions
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	recs := s.gate.Subscriptions()
	views := make([]subscriptionView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, viewRecord(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

// writeCoreError maps core errors onto HTTP statuses.
func (s *Server) writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gatekeeper.ErrUnauthorized),
		errors.Is(err, gatekeeper.ErrNotInitialized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrUnknownAsset):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, subscription.ErrInsufficientPayment):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, registry.ErrUnsupportedAssetType),
		errors.Is(err, registry.ErrMissingTokenID),
		errors.Is(err, registry.ErrMissingAmount),
		errors.Is(err, subscription.ErrUnknownKind),
		errors.Is(err, subscription.ErrNegativePrice):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, holdings.ErrOracleFailure),
		errors.Is(err, treasury.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("not a non-negative decimal integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
