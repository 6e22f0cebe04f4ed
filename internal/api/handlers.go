package api

import (
	"context"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/api/models"
	"github.com/n0needt0/go-goodies/log"
	"github.com/swaggest/usecase"
	"github.com/swaggest/usecase/status"
)

const (
	HEALTHY  = "healthy"
	DEGRADED = "degraded"
)

// maskSensitiveValue masks sensitive configuration values
func maskSensitiveValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (api *API) HealthCheck() usecase.IOInteractorOf[models.EmptyRequest, models.HealthResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.HealthResponse) error {
		api.count(ctx, "api/health", "health checks served")

		cfg := api.Config
		stats := api.Services.RelayStats

		resp.Status = HEALTHY
		if !api.Services.IsHealthy() {
			resp.Status = DEGRADED
		}
		resp.Version = cfg.App.Version
		resp.ServiceName = cfg.App.Name
		resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

		resp.Relay = models.RelayStatus{
			IP:    cfg.Relay.IP,
			Port:  cfg.Relay.Port,
			Peers: api.Services.Registry.Len(),
		}

		resp.Stats = models.StatsResponse{
			DatagramsReceived: stats.DatagramsReceived.Load(),
			ReceiveErrors:     stats.ReceiveErrors.Load(),
			FanoutSent:        stats.FanoutSent.Load(),
			FanoutErrors:      stats.FanoutErrors.Load(),
			BytesReceived:     stats.BytesReceived.Load(),
			LastActivity:      formatTime(stats.LastActivityTime()),
			UptimeSeconds:     int64(time.Since(stats.StartedAt).Seconds()),
		}

		log.Debugf("health check completed: status=%s", resp.Status)
		return nil
	})
	u.SetTitle("Health Check")
	u.SetDescription("Check status of the relay.")
	u.SetTags("Health")
	u.SetExpectedErrors(status.Internal)
	return u
}

func (api *API) ListPeers() usecase.IOInteractorOf[models.EmptyRequest, models.PeersResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.PeersResponse) error {
		api.count(ctx, "api/peers", "peer listings served")

		peers := api.Services.Registry.Snapshot()
		resp.Count = len(peers)
		resp.Peers = make([]models.Peer, 0, len(peers))
		for _, p := range peers {
			resp.Peers = append(resp.Peers, models.Peer{
				IP:      p.IP.String(),
				Port:    int(p.Port),
				Display: p.String(),
			})
		}
		return nil
	})
	u.SetTitle("List Peers")
	u.SetDescription("Every peer the relay fans messages out to.")
	u.SetTags("Relay")
	return u
}

func (api *API) GetMetrics() usecase.IOInteractorOf[models.EmptyRequest, models.MetricsResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.MetricsResponse) error {
		api.count(ctx, "api/metrics", "metric history queries served")

		resp.Timestamps, resp.CPU = api.Services.History.Series()
		return nil
	})
	u.SetTitle("Metric History")
	u.SetDescription("CPU usage reported by clients, as parallel series of elapsed seconds and values.")
	u.SetTags("Metrics")
	return u
}

// GetConfig returns the effective configuration with credentials masked
func (api *API) GetConfig() usecase.IOInteractorOf[models.EmptyRequest, models.ConfigResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.ConfigResponse) error {
		cfg := api.Config

		resp.App = models.AppConfig{
			Name:    cfg.App.Name,
			Version: cfg.App.Version,
		}
		resp.Relay = models.RelayConfig{
			IP:                cfg.Relay.IP,
			Port:              cfg.Relay.Port,
			DatagramSizeBytes: cfg.Relay.DatagramSizeBytes,
			FanoutWorkers:     cfg.Relay.FanoutWorkers,
			ProbeTimeoutMs:    cfg.Probe.TimeoutMs,
		}
		resp.Client = models.ClientConfig{
			IntervalSeconds: cfg.Client.IntervalSeconds,
			SampleWindowMs:  cfg.Client.SampleWindowMs,
		}
		resp.Archive = models.ArchiveConfig{
			Enabled:   cfg.Archive.Enabled,
			Bucket:    cfg.S3.BucketName,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: maskSensitiveValue(cfg.S3.AccessKey),
			Json:      cfg.Archive.EnableJsonOutput,
			Parquet:   cfg.Archive.EnableParquetOutput,
		}
		resp.Otel = models.OtelConfig{
			Enabled:               cfg.Otel.Enabled,
			Endpoint:              cfg.Otel.Endpoint,
			ScrapeIntervalSeconds: cfg.Otel.ScrapeIntervalSeconds,
		}
		resp.Dev = cfg.Dev

		log.Debugf("retrieved configuration")
		return nil
	})
	u.SetTitle("Get Configuration")
	u.SetDescription("Retrieve the effective configuration (credentials are masked).")
	u.SetTags("Configuration")
	return u
}
