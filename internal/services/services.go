package services

import (
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/alerts"
	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/EnzoRigon/udp-client-server/internal/history"
	"github.com/EnzoRigon/udp-client-server/internal/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	METER = "udprelay-meter"
)

// Services holds the state shared by the relay, the client and the api
type Services struct {
	Config     *config.Config
	OtelMeter  metric.Meter
	Registry   *registry.Registry
	History    *history.Store
	RelayStats *domain.RelayStats
	Alerts     *alerts.Client
}

type HealthService interface {
	IsHealthy() bool
}

func NewServices(conf *config.Config) *Services {
	now := time.Now()
	return &Services{
		Config:     conf,
		OtelMeter:  otel.Meter(METER),
		Registry:   registry.New(),
		History:    history.New(now),
		RelayStats: &domain.RelayStats{StartedAt: now},
		Alerts:     alerts.NewClient(conf),
	}
}

// IsHealthy reports whether the relay keeps receiving without errors piling up.
func (s *Services) IsHealthy() bool {
	received := s.RelayStats.DatagramsReceived.Load()
	errs := s.RelayStats.ReceiveErrors.Load()
	return errs == 0 || errs < received
}
