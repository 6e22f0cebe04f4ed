package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/EnzoRigon/udp-client-server/internal/client"
	"github.com/EnzoRigon/udp-client-server/internal/config"
	"github.com/EnzoRigon/udp-client-server/internal/metrics"
	"github.com/EnzoRigon/udp-client-server/internal/probe"
	"github.com/EnzoRigon/udp-client-server/internal/services"
	"github.com/n0needt0/go-goodies/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	conf        = config.Config{}
	envPrefix   = "RELAY_"
	cfgFilePath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "udprelay",
		Short: "UDP broadcast relay with metric reporting clients",
		Long: "Without a subcommand udprelay probes for a relay, starts one in this process " +
			"if none answers, then runs a reporting client against it.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(cfgFilePath, envPrefix, cmd.Flags(), &conf); err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			setLogLevel(conf.Logging.Level)
			if conf.Relay.IP == "" {
				conf.Relay.IP = config.OutboundIP()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(runCombined)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFilePath, "config", "config.yaml", "config file")
	pf.String("ip", "", "relay ip (default: outbound local address)")
	pf.Int("port", config.DefaultPort, "relay port")
	pf.String("log-level", "", "debug, info, warn or error")

	root.Flags().Int("interval", config.DefaultIntervalSeconds, "initial report interval in seconds")

	root.AddCommand(newServerCmd(), newClientCmd(), newProbeCmd())
	return root
}

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(runServer)
		},
	}
	cmd.Flags().Int("api-port", 0, "query api port")
	return cmd
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Report host metrics to a relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSignals(runClient)
		},
	}
	cmd.Flags().Int("interval", config.DefaultIntervalSeconds, "initial report interval in seconds")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether a relay answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if probe.Probe(cmd.Context(), conf.Relay.IP, conf.Relay.Port, conf.GetProbeTimeout()) {
				fmt.Fprintf(cmd.OutOrStdout(), "relay is running on %s:%d\n", conf.Relay.IP, conf.Relay.Port)
				return nil
			}
			return errors.Errorf("no relay on %s:%d", conf.Relay.IP, conf.Relay.Port)
		},
	}
}

// withSignals runs fn with a context cancelled on SIGINT, SIGQUIT and SIGTERM.
func withSignals(fn func(ctx context.Context, conf *config.Config, svc *services.Services) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	if conf.Otel.Enabled {
		otelshutdown := InitOtelProvider(&conf)
		defer otelshutdown()
	}

	return fn(ctx, &conf, services.NewServices(&conf))
}

func runServer(ctx context.Context, conf *config.Config, svc *services.Services) error {
	return NewServer(svc, conf).Run(ctx)
}

func runClient(ctx context.Context, conf *config.Config, svc *services.Services) error {
	server := &net.UDPAddr{IP: net.ParseIP(conf.Relay.IP), Port: conf.Relay.Port}
	if server.IP == nil {
		return errors.Errorf("invalid relay ip %q", conf.Relay.IP)
	}

	c := client.NewClient(svc, server,
		client.NewInterval(conf.Client.IntervalSeconds),
		metrics.NewHostProvider(conf.GetSampleWindow()),
	)
	return c.Run(ctx)
}

// runCombined starts a relay in this process when none answers, then reports to it.
func runCombined(ctx context.Context, conf *config.Config, svc *services.Services) error {
	if probe.Probe(ctx, conf.Relay.IP, conf.Relay.Port, conf.GetProbeTimeout()) {
		log.Infof("relay already running on %s:%d", conf.Relay.IP, conf.Relay.Port)
		return runClient(ctx, conf, svc)
	}

	log.Infof("no relay on %s:%d, starting one", conf.Relay.IP, conf.Relay.Port)
	server := NewServer(svc, conf)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx)
	}()

	select {
	case <-server.Relay.Ready():
	case err := <-serverErr:
		return err
	}

	clientErr := runClient(ctx, conf, svc)
	cancel()
	if err := <-serverErr; err != nil {
		return err
	}
	return clientErr
}

func setLogLevel(levelStr string) {
	switch strings.ToLower(levelStr) {
	case "debug":
		log.SetMinLogLevel(log.MinLevelDebug)
	case "info":
		log.SetMinLogLevel(log.MinLevelInfo)
	case "warn":
		log.SetMinLogLevel(log.MinLevelWarn)
	case "error":
		log.SetMinLogLevel(log.MinLevelError)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Errorf("udprelay: %v", err)
		os.Exit(11)
	}
}
