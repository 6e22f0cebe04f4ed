package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/api/models"
	"github.com/EnzoRigon/udp-client-server/internal/history"
	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/n0needt0/go-goodies/log"
)

// Dashboard serves the raw metric history to an external dashboard.
// It renders nothing itself.
type Dashboard struct {
	History    *history.Store
	Port       int
	httpServer *http.Server
}

func NewDashboard(h *history.Store, port int) *Dashboard {
	d := &Dashboard{
		History: h,
		Port:    port,
	}
	d.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d
}

func (d *Dashboard) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/metrics", d.handleMetrics).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return r
}

func (d *Dashboard) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var resp models.MetricsResponse
	resp.Timestamps, resp.CPU = d.History.Series()

	body, err := sonic.Marshal(&resp)
	if err != nil {
		log.Errorf("failed to encode metric history: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Listen serves until Shutdown. A dashboard shut down before Listen never starts listening.
func (d *Dashboard) Listen() {
	log.Infof("dashboard feed listening on :%d", d.Port)
	if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("dashboard feed failed: %v", err)
	}
}

func (d *Dashboard) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("dashboard shutdown error: %v", err)
	} else {
		log.Info("dashboard shutdown complete")
	}
}
