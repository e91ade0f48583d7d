// Package main provides the interactive securemsg console client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg"
	"github.com/opd-ai/securemsg/config"
	"github.com/opd-ai/securemsg/contacts"
	"github.com/opd-ai/securemsg/metrics"
)

// CLIConfig holds command-line flags. Flags that are set override the
// configuration file and environment.
type CLIConfig struct {
	configPath    string
	keysDir       string
	contactsFile  string
	port          int
	senderName    string
	logLevel      string
	metricsListen string
	help          bool
}

func parseCLIFlags(args []string) (*CLIConfig, map[string]bool, error) {
	cli := &CLIConfig{}
	fs := flag.NewFlagSet("securemsg", flag.ContinueOnError)

	fs.StringVar(&cli.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&cli.keysDir, "keys", "", "Directory holding public.xml and private.enc")
	fs.StringVar(&cli.contactsFile, "contacts", "", "Contacts file")
	fs.IntVar(&cli.port, "port", config.DefaultPort, "TCP port to receive messages on")
	fs.StringVar(&cli.senderName, "sender", "", "Default sender name")
	fs.StringVar(&cli.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cli.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&cli.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return cli, set, nil
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cfg *config.Config, cli *CLIConfig, set map[string]bool) {
	if set["keys"] {
		cfg.KeysDir = cli.keysDir
	}
	if set["contacts"] {
		cfg.ContactsFile = cli.contactsFile
	}
	if set["port"] {
		cfg.Listen.Port = cli.port
	}
	if set["sender"] {
		cfg.SenderName = cli.senderName
	}
	if set["log-level"] {
		cfg.Log.Level = cli.logLevel
	}
	if set["metrics-listen"] {
		cfg.Metrics.Listen = cli.metricsListen
	}
}

func messengerOptions(cfg config.Config, reg prometheus.Registerer) *securemsg.Options {
	opts := securemsg.NewOptions()
	opts.KeysDir = cfg.KeysDir
	opts.SenderName = cfg.SenderName
	opts.ListenHost = cfg.Listen.Host
	opts.MaxFrameSize = cfg.Listen.MaxFrameSize
	opts.ReadTimeout = cfg.Listen.ReadTimeout
	opts.ShutdownGrace = cfg.Listen.ShutdownGrace
	opts.QueueSize = cfg.Listen.QueueSize
	opts.RateLimit = cfg.Listen.RateLimit
	opts.RateBurst = cfg.Listen.RateBurst
	opts.DialTimeout = cfg.Send.DialTimeout
	opts.WriteTimeout = cfg.Send.WriteTimeout
	opts.Workers = cfg.Messaging.Workers
	opts.MaxLoginAttempts = cfg.Login.MaxAttempts
	opts.Registerer = reg
	return opts
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("addr", addr).Error("Metrics server failed")
		}
	}()
	logrus.WithField("addr", addr).Info("Serving metrics")
	return server
}

func run(args []string) error {
	cli, set, err := parseCLIFlags(args)
	if err != nil {
		return err
	}
	if cli.help {
		fmt.Println("securemsg - end-to-end encrypted messaging over TCP")
		fmt.Println()
		fmt.Println("Usage: securemsg [flags]")
		fmt.Println("Settings are read from securemsg.yaml or config.yaml when present,")
		fmt.Println("then SECUREMSG_* environment variables, then flags.")
		return nil
	}

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg, cli, set)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Listen != "" {
		server := startMetricsServer(cfg.Metrics.Listen, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()
	}

	m, err := securemsg.New(messengerOptions(cfg, reg))
	if err != nil {
		return err
	}
	defer m.Close()

	book, err := contacts.Load(cfg.ContactsFile)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() { done <- newApp(os.Stdin, os.Stdout, m, book, cfg.Listen.Port).run() }()

	select {
	case err := <-done:
		return err
	case sig := <-signals:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
		return nil
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "securemsg: %v\n", err)
		os.Exit(1)
	}
}
