package main

import (
	"context"
	"strconv"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/api"
	"github.com/EnzoRigon/udp-client-server/internal/archive"
	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/relay"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/n0needt0/go-goodies/log"
)

// Server owns the relay and the http surfaces around it
type Server struct {
	Config    *config.Config
	Name      string
	HttpApi   *api.API
	Dashboard *api.Dashboard
	Relay     *relay.Server
	Archiver  *archive.Archiver
	Services  *services.Services
}

func NewServer(services *services.Services, conf *config.Config) *Server {
	s := &Server{
		Config:   conf,
		Name:     conf.App.Name,
		Services: services,
		Relay:    relay.NewServer(services, services.Registry),
	}

	if conf.Api.Enabled {
		s.HttpApi = api.NewAPI(services, conf)
		s.HttpApi.Bind(":"+strconv.Itoa(conf.Api.Port), s.HttpApi.NewRouter())
	}
	if conf.Dashboard.Enabled {
		s.Dashboard = api.NewDashboard(services.History, conf.Dashboard.Port)
	}
	if conf.Archive.Enabled {
		var uploader *archive.Uploader
		if conf.Archive.EnableJsonOutput || conf.Archive.EnableParquetOutput {
			u, err := archive.NewUploader(conf)
			if err != nil {
				log.Errorf("archive upload disabled: %v", err)
			} else {
				uploader = u
			}
		}
		s.Archiver = archive.NewArchiver(services, uploader)
	}
	return s
}

// Run serves until ctx is cancelled. A relay bind failure is returned immediately.
func (svc *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayErr := make(chan error, 1)
	go func() {
		relayErr <- svc.Relay.Run(ctx)
	}()

	select {
	case <-svc.Relay.Ready():
	case err := <-relayErr:
		return err
	}

	if svc.HttpApi != nil {
		go svc.HttpApi.Serve()
	}
	if svc.Dashboard != nil {
		go svc.Dashboard.Listen()
	}

	svc.housekeeping(ctx)

	svc.stop()
	return <-relayErr
}

// housekeeping runs the periodic jobs until ctx is done
func (svc *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(svc.housekeepingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Debugf("housekeeping: %d peers, %d samples", svc.Services.Registry.Len(), svc.Services.History.Len())

			if !svc.Config.Housekeeping.Enabled || svc.Archiver == nil {
				continue
			}
			if err := svc.Archiver.Flush(ctx); err != nil {
				log.Errorf("archive flush failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (svc *Server) stop() {
	log.Debug("stopping http surfaces")

	if svc.HttpApi != nil {
		svc.HttpApi.Stop()
	}
	if svc.Dashboard != nil {
		svc.Dashboard.Shutdown()
	}

	if svc.Archiver != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := svc.Archiver.Flush(flushCtx); err != nil {
			log.Errorf("final archive flush failed: %v", err)
		}
	}
}

func (svc *Server) housekeepingInterval() time.Duration {
	interval := svc.Config.GetHousekeepingInterval()
	if interval <= 0 {
		log.Errorf("invalid housekeeping-interval: %s, using 10s", interval)
		return 10 * time.Second
	}
	return interval
}
