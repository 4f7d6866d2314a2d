package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aerisfi/aeris-contracts/core"
	"github.com/aerisfi/aeris-contracts/core/state"
	"github.com/aerisfi/aeris-contracts/native/escrow"
	"github.com/aerisfi/aeris-contracts/native/registry"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// Server exposes the escrow node over JSON-RPC. Admin methods (asset
// registration, timeout changes, minting) additionally require the configured
// bearer token.
type Server struct {
	node      *core.Node
	authToken string
	log       *slog.Logger
}

// NewServer builds a server around the node. An empty authToken disables all
// admin methods.
func NewServer(node *core.Node, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{node: node, authToken: strings.TrimSpace(authToken), log: log}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on the supplied address, blocking until the listener
// fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return &authError{Code: codeUnauthorized, Message: "admin methods disabled", Data: "no auth token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "bearer token required"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &authError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "escrow_createMarketOrder":
		s.handleCreateOrder(w, req, false)
	case "escrow_createLimitOrder":
		s.handleCreateOrder(w, req, true)
	case "escrow_fulfill":
		s.handleFulfill(w, req)
	case "escrow_cancel":
		s.handleCancel(w, req)
	case "escrow_refund":
		s.handleRefund(w, req)
	case "escrow_getOrder":
		s.handleGetOrder(w, req)
	case "escrow_getTimeout":
		s.handleGetTimeout(w, req)
	case "escrow_setTimeout":
		s.handleSetTimeout(w, r, req)
	case "escrow_custodyBalance":
		s.handleCustodyBalance(w, req)
	case "registry_register":
		s.handleRegistryRegister(w, r, req)
	case "registry_indexOf":
		s.handleRegistryIndexOf(w, req)
	case "registry_assetAt":
		s.handleRegistryAssetAt(w, req)
	case "token_balanceOf":
		s.handleTokenBalance(w, req)
	case "token_mint":
		s.handleTokenMint(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

// writeEngineError maps engine sentinel errors onto RPC error codes and HTTP
// statuses. Every rejection leaves state untouched, so clients may retry once
// the underlying condition clears.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "order not found", err.Error())
	case errors.Is(err, escrow.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "duplicate order id", err.Error())
	case errors.Is(err, escrow.ErrOrderNotFulfillable),
		errors.Is(err, escrow.ErrOrderExpired),
		errors.Is(err, escrow.ErrOrderMismatch),
		errors.Is(err, escrow.ErrTimeoutNotElapsed):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "order state conflict", err.Error())
	case errors.Is(err, escrow.ErrNotAuthorized), errors.Is(err, registry.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "forbidden", err.Error())
	case errors.Is(err, escrow.ErrUnknownAsset),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrExpiryInPast),
		errors.Is(err, registry.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid parameters", err.Error())
	case errors.Is(err, escrow.ErrTransferFailed), errors.Is(err, state.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "token transfer failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal error", err.Error())
	}
}

func decodeSingleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], target)
}
