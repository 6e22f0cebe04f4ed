package models

type EmptyRequest struct{}

type HealthResponse struct {
	Status      string        `json:"status"`
	Version     string        `json:"version"`
	ServiceName string        `json:"service_name"`
	Timestamp   string        `json:"timestamp"`
	Relay       RelayStatus   `json:"relay"`
	Stats       StatsResponse `json:"stats"`
}

type RelayStatus struct {
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Peers int    `json:"peers"`
}

type StatsResponse struct {
	DatagramsReceived int64  `json:"datagrams_received"`
	ReceiveErrors     int64  `json:"receive_errors"`
	FanoutSent        int64  `json:"fanout_sent"`
	FanoutErrors      int64  `json:"fanout_errors"`
	BytesReceived     int64  `json:"bytes_received"`
	LastActivity      string `json:"last_activity"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

type PeersResponse struct {
	Count int    `json:"count"`
	Peers []Peer `json:"peers"`
}

type Peer struct {
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	Display string `json:"display"`
}

// MetricsResponse carries the cpu history as parallel series, elapsed seconds since relay start.
type MetricsResponse struct {
	CPU        []float64 `json:"cpu"`
	Timestamps []float64 `json:"timestamps"`
}

type ConfigResponse struct {
	App     AppConfig     `json:"app"`
	Relay   RelayConfig   `json:"relay"`
	Client  ClientConfig  `json:"client"`
	Archive ArchiveConfig `json:"archive"`
	Otel    OtelConfig    `json:"otel"`
	Dev     bool          `json:"dev"`
}

type AppConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RelayConfig struct {
	IP                string `json:"ip"`
	Port              int    `json:"port"`
	DatagramSizeBytes int    `json:"datagram_size_bytes"`
	FanoutWorkers     int    `json:"fanout_workers"`
	ProbeTimeoutMs    int    `json:"probe_timeout_ms"`
}

type ClientConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	SampleWindowMs  int `json:"sample_window_ms"`
}

type ArchiveConfig struct {
	Enabled   bool   `json:"enabled"`
	Bucket    string `json:"bucket"`
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"` // masked
	Json      bool   `json:"json"`
	Parquet   bool   `json:"parquet"`
}

type OtelConfig struct {
	Enabled               bool   `json:"enabled"`
	Endpoint              string `json:"endpoint"`
	ScrapeIntervalSeconds int    `json:"scrape_interval_seconds"`
}
