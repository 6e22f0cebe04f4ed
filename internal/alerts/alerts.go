// Package alerts posts relay incidents to an HTTP endpoint as JSON.
package alerts

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/bytedance/sonic"
	"github.com/n0needt0/go-goodies/log"
	"github.com/pkg/errors"
)

type Severity string

const (
	Critical Severity = "critical"
	Warning  Severity = "warning"
)

const (
	KindRelayBind     = "relay_bind_failure"
	KindClientReceive = "client_receive_failure"
)

// Event is one incident on a UDP endpoint.
type Event struct {
	Service  string   `json:"service"`
	Version  string   `json:"version"`
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Endpoint string   `json:"endpoint"`
	Error    string   `json:"error"`
	At       string   `json:"at"`
}

type Client struct {
	conf       *config.Config
	httpClient *http.Client
}

func NewClient(conf *config.Config) *Client {
	timeout := time.Duration(conf.Alerts.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		conf:       conf,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RelayBindFailed reports that the relay could not bind addr. The relay does not start.
func (c *Client) RelayBindFailed(ctx context.Context, addr string, err error) error {
	return c.post(ctx, c.event(Critical, KindRelayBind, addr, err))
}

// ClientReceiveFailed reports a dead receive loop; the client keeps reporting.
func (c *Client) ClientReceiveFailed(ctx context.Context, local string, err error) error {
	return c.post(ctx, c.event(Warning, KindClientReceive, local, err))
}

func (c *Client) event(severity Severity, kind, endpoint string, err error) Event {
	ev := Event{
		Severity: severity,
		Kind:     kind,
		Endpoint: endpoint,
		At:       time.Now().UTC().Format(time.RFC3339),
	}
	if c != nil {
		ev.Service = c.conf.App.Name
		ev.Version = c.conf.App.Version
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (c *Client) post(ctx context.Context, ev Event) error {
	if c == nil {
		return nil
	}

	if !c.conf.Alerts.Enabled {
		if c.conf.Dev {
			log.Infof("alert [%s] %s on %s: %s", ev.Severity, ev.Kind, ev.Endpoint, ev.Error)
		}
		return nil
	}

	if c.conf.Alerts.Endpoint == "" {
		return errors.New("alert endpoint not configured")
	}

	body, err := sonic.Marshal(&ev)
	if err != nil {
		return errors.Wrap(err, "failed to encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.Alerts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create alert request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.conf.App.Name+"/"+c.conf.App.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post %s alert", ev.Kind)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("%s alert rejected with status %d", ev.Kind, resp.StatusCode)
	}

	log.Debugf("alert sent: %s on %s", ev.Kind, ev.Endpoint)
	return nil
}
