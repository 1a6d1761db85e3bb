// Package api exposes the warehouse state over HTTP: charging bays and
// queue, stock levels, orders and the charging journal.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kilianp07/warehouse/infra/logger"
)

// Config defines the HTTP API settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token, when set, is required as "Bearer <token>" on every request.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Deps are the sources served by the API. A nil ChargingLog disables
// /api/charging/log and a nil Tasks disables /api/tasks.
type Deps struct {
	Charging    Charging
	Inventory   Inventory
	Orders      OrderBook
	Tasks       TaskBoard
	ChargingLog ChargingLog
}

// NewMux routes every endpoint behind the optional bearer token.
func NewMux(d Deps, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/charging", requireToken(token, NewChargingHandler(d.Charging)))
	if d.ChargingLog != nil {
		mux.Handle("/api/charging/log", requireToken(token, NewChargingLogHandler(d.ChargingLog)))
	}
	mux.Handle("/api/stock", requireToken(token, NewStockHandler(d.Inventory)))
	orders := requireToken(token, NewOrderHandler(d.Orders))
	mux.Handle("/api/orders", orders)
	mux.Handle("/api/orders/", orders)
	if d.Tasks != nil {
		tasks := requireToken(token, NewTaskHandler(d.Tasks))
		mux.Handle("/api/tasks", tasks)
		mux.Handle("/api/tasks/", tasks)
	}
	return mux
}

// Serve runs an HTTP server for h until ctx is canceled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	log := logger.New("api")
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("api server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requireToken(token string, h http.Handler) http.Handler {
	if token == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.New("api").Warnf("encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
