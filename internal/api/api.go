package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/n0needt0/go-goodies/log"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/swaggest/rest/web"
	swgui "github.com/swaggest/swgui/v5emb"
	"go.opentelemetry.io/otel/metric"
)

type API struct {
	Services   *services.Services
	ApiMetrics map[string]metric.Int64Counter
	HttpServer *http.Server
	sync.RWMutex
	Config *config.Config
}

// new api
func NewAPI(services *services.Services, conf *config.Config) *API {
	return &API{
		Services:   services,
		ApiMetrics: make(map[string]metric.Int64Counter),
		Config:     conf,
	}
}

// UseMetric returns a counter for label, creating it on first use.
// metric label is root/something
func (api *API) UseMetric(label, description string) metric.Int64Counter {
	api.RLock()
	mtr, ok := api.ApiMetrics[label]
	api.RUnlock()
	if ok {
		return mtr
	}

	m, err := api.Services.OtelMeter.Int64Counter(label, metric.WithDescription(description))
	if err != nil {
		log.Error("failed to init the metrics" + err.Error())
		return nil
	}

	api.Lock()
	api.ApiMetrics[label] = m
	api.Unlock()
	return m
}

func (api *API) count(ctx context.Context, label, description string) {
	if m := api.UseMetric(label, description); m != nil {
		m.Add(ctx, 1)
	}
}

// NewRouter returns a new router serving API endpoints
func (api *API) NewRouter() *web.Service {
	service := web.NewService(openapi3.NewReflector())

	service.OpenAPISchema().SetTitle("udprelay API")
	service.OpenAPISchema().SetDescription("Query interface for the UDP broadcast relay")
	service.OpenAPISchema().SetVersion("v2.0.0")

	service.DecoderFactory.ApplyDefaults = true

	service.Wrap()

	service.Get("/api/v2/health", api.HealthCheck())
	service.Get("/api/v2/peers", api.ListPeers())
	service.Get("/api/v2/metrics", api.GetMetrics())
	service.Get("/api/v2/config", api.GetConfig())

	// use /docs for docs UI and redirect from / to /docs
	service.Docs("/v2/docs", swgui.New)

	service.Router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/v2/docs", http.StatusFound)
	})

	return service
}

// Bind prepares the http server for address. It must be called before Serve and Stop.
func (api *API) Bind(address string, router http.Handler) {
	api.Lock()
	defer api.Unlock()
	api.HttpServer = &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Serve serves http endpoints until Stop is called
func (api *API) Serve() {
	api.RLock()
	srv := api.HttpServer
	api.RUnlock()
	if srv == nil {
		log.Error("api server was not bound")
		return
	}

	log.Infof("api server started: on %s", srv.Addr)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("api server closed")
	} else {
		log.Errorf("api server failed and closed: %v", err)
	}
}

// Stop stops the server. A server stopped before Serve runs never starts listening.
func (api *API) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	api.RLock()
	srv := api.HttpServer
	api.RUnlock()

	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("error shutting down api server: %v", err)
	}
}
