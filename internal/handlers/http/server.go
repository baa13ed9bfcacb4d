// Package http exposes the watch state over a read-mostly JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/validator"
	"github.com/gabapcia/txwatch/internal/pkg/x/chflow"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Watcher is the part of txwatcher.Service served over HTTP.
type Watcher interface {
	Snapshot() txwatcher.State
	Transactions(key txwatcher.SetKey) txwatcher.TransactionSet
	RemoveAllTransactions(ctx context.Context, address common.Address) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	watcher Watcher
}

// NewRouter returns the API routes backed by w.
func NewRouter(w Watcher) nethttp.Handler {
	h := &handler{watcher: w}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Get("/chains/{chainID}/addresses/{address}/transactions", h.transactions)
		r.Delete("/addresses/{address}", h.forget)
	})

	return r
}

func logRequests(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Debug(r.Context(), "http request",
			"http.method", r.Method,
			"http.path", r.URL.Path,
			"http.status", ww.Status(),
			"http.duration", time.Since(start),
			"http.request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w nethttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w nethttp.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseAddress(raw string) (common.Address, error) {
	if err := validator.ValidateVar(raw, "required,checksum_addr"); err != nil {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func (h *handler) health(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) state(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, h.watcher.Snapshot())
}

// transactions serves the sets of one account on one chain. With ?type= it
// answers that single set, otherwise every stored type.
func (h *handler) transactions(w nethttp.ResponseWriter, r *nethttp.Request) {
	chainID, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
	if err != nil || chainID == 0 {
		writeError(w, nethttp.StatusBadRequest, errors.New("invalid chain id"))
		return
	}

	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, nethttp.StatusBadRequest, err)
		return
	}

	if raw := r.URL.Query().Get("type"); raw != "" {
		txType := txwatcher.TransactionType(raw)
		if !txType.Valid() {
			writeError(w, nethttp.StatusBadRequest, fmt.Errorf("invalid transaction type %q", raw))
			return
		}

		writeJSON(w, nethttp.StatusOK, h.watcher.Transactions(txwatcher.SetKey{
			ChainID: chainID,
			Address: address,
			Type:    txType,
		}))
		return
	}

	sets := h.watcher.Snapshot()[chainID][address]
	if sets == nil {
		sets = map[txwatcher.TransactionType]txwatcher.TransactionSet{}
	}
	writeJSON(w, nethttp.StatusOK, sets)
}

func (h *handler) forget(w nethttp.ResponseWriter, r *nethttp.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, nethttp.StatusBadRequest, err)
		return
	}

	if err := h.watcher.RemoveAllTransactions(r.Context(), address); err != nil {
		logger.Error(r.Context(), "failed to remove transactions",
			"account.address", address,
			"error", err,
		)
		writeError(w, nethttp.StatusInternalServerError, errors.New("failed to remove transactions"))
		return
	}

	w.WriteHeader(nethttp.StatusNoContent)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, w Watcher) error {
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           NewRouter(w),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http api listening", "http.addr", addr)
		chflow.Send(ctx, errCh, server.ListenAndServe())
	}()

	if err, ok := chflow.Receive(ctx, errCh); ok {
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
