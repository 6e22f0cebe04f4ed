package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/api/models"
	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPI() *API {
	conf := &config.Config{}
	conf.SetDefaults()
	conf.Relay.IP = "127.0.0.1"
	conf.S3.AccessKey = "AKIAEXAMPLEKEY"
	svc := services.NewServices(conf)
	return NewAPI(svc, conf)
}

func get(t *testing.T, h http.Handler, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if out != nil {
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out))
	}
	return rr
}

func TestHealth(t *testing.T) {
	a := testAPI()
	a.Services.RelayStats.DatagramsReceived.Add(3)

	var resp models.HealthResponse
	get(t, a.NewRouter(), "/api/v2/health", &resp)

	assert.Equal(t, HEALTHY, resp.Status)
	assert.Equal(t, "udprelay", resp.ServiceName)
	assert.Equal(t, 5005, resp.Relay.Port)
	assert.Equal(t, int64(3), resp.Stats.DatagramsReceived)
}

func TestPeers(t *testing.T) {
	a := testAPI()
	a.Services.Registry.Add(domain.PeerAddress{IP: netip.MustParseAddr("127.0.0.1"), Port: 4000})

	var resp models.PeersResponse
	get(t, a.NewRouter(), "/api/v2/peers", &resp)

	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "127.0.0.1", resp.Peers[0].IP)
	assert.Equal(t, 4000, resp.Peers[0].Port)
	assert.Equal(t, "('127.0.0.1', 4000)", resp.Peers[0].Display)
}

func TestMetricsHistory(t *testing.T) {
	a := testAPI()
	a.Services.History.Append(10)
	a.Services.History.Append(20)

	var resp models.MetricsResponse
	get(t, a.NewRouter(), "/api/v2/metrics", &resp)

	assert.Equal(t, []float64{10, 20}, resp.CPU)
	assert.Len(t, resp.Timestamps, 2)
}

func TestConfigMasksCredentials(t *testing.T) {
	a := testAPI()

	var resp models.ConfigResponse
	get(t, a.NewRouter(), "/api/v2/config", &resp)

	assert.Equal(t, "AKIA***EKEY", resp.Archive.AccessKey)
	assert.Equal(t, 5, resp.Client.IntervalSeconds)
	assert.Equal(t, 2000, resp.Relay.ProbeTimeoutMs)
}

func TestMaskSensitiveValue(t *testing.T) {
	assert.Equal(t, "", maskSensitiveValue(""))
	assert.Equal(t, "***", maskSensitiveValue("short"))
	assert.Equal(t, "abcd***mnop", maskSensitiveValue("abcdefghijklmnop"))
}

func TestUseMetricIsCached(t *testing.T) {
	a := testAPI()
	first := a.UseMetric("api/test", "test counter")
	second := a.UseMetric("api/test", "test counter")
	assert.NotNil(t, first)
	assert.Equal(t, first, second)
	assert.Len(t, a.ApiMetrics, 1)
}

func TestDashboardMetrics(t *testing.T) {
	a := testAPI()
	a.Services.History.Append(55.5)
	d := NewDashboard(a.Services.History, 0)

	var resp struct {
		CPU        []float64 `json:"cpu"`
		Timestamps []float64 `json:"timestamps"`
	}
	get(t, d.Router(), "/metrics", &resp)
	assert.Equal(t, []float64{55.5}, resp.CPU)
	assert.Len(t, resp.Timestamps, 1)

	rr := get(t, d.Router(), "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec := httptest.NewRecorder()
	d.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func waitStopped(t *testing.T, done <-chan struct{}, port int) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("server kept running after shutdown")
	}

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), 300*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatalf("port %d still accepting connections", port)
	}
}

func TestDashboardShutdownRightAfterListen(t *testing.T) {
	port := freePort(t)
	d := NewDashboard(testAPI().Services.History, port)

	done := make(chan struct{})
	go func() {
		d.Listen()
		close(done)
	}()
	d.Shutdown()

	waitStopped(t, done, port)
}

func TestAPIStopRightAfterServe(t *testing.T) {
	port := freePort(t)
	a := testAPI()
	a.Bind("127.0.0.1:"+strconv.Itoa(port), a.NewRouter())

	done := make(chan struct{})
	go func() {
		a.Serve()
		close(done)
	}()
	a.Stop()

	waitStopped(t, done, port)
}

func TestStopWithoutBind(t *testing.T) {
	a := testAPI()
	a.Stop()
	a.Serve()
}
