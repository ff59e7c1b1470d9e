package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/DIY-6/web3-script/config"
	"github.com/DIY-6/web3-script/internal/metrics"
	"github.com/DIY-6/web3-script/internal/processor"
	"github.com/DIY-6/web3-script/internal/reader"
	"github.com/DIY-6/web3-script/internal/reader/binance"
	"github.com/DIY-6/web3-script/internal/writer/feishu"
	"github.com/DIY-6/web3-script/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file (default config/config.yml, or the APP_ENV specific file)")
	flag.Parse()

	path := config.ResolvePath(*configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"path": path}).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": env,
		"config":      path,
	}).Info("starting web3-script")

	if err := cfg.DeliveryConfigured(); err != nil {
		if config.IsProductionLike(env) {
			log.WithError(err).Error("webhook is required in " + env)
			os.Exit(1)
		}
		log.WithError(err).Warn("alert delivery disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(ctx, logger.CloudWatchOptions{
			Region:          cw.Region,
			Namespace:       cw.Namespace,
			Dashboard:       cw.Dashboard,
			AccessKeyID:     cw.AccessKeyID,
			SecretAccessKey: cw.SecretAccessKey,
		})
	}

	recorder := metrics.New()
	var wg sync.WaitGroup
	if cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Serve(ctx, cfg.Metrics.Prometheus.Address); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	httpClient := reader.NewHTTPClient(reader.Options{
		Timeout:           cfg.Reader.Timeout,
		RequestsPerSecond: cfg.Reader.RequestsPerSecond,
		Burst:             cfg.Reader.Burst,
		Retries:           cfg.Reader.Retries,
		MaxIdleConns:      cfg.Reader.MaxIdleConns,
		MaxConnsPerHost:   cfg.Reader.MaxConnsPerHost,
		IdleConnTimeout:   cfg.Reader.IdleConnTimeout,
		LocalIP:           cfg.Reader.LocalIP,
	})

	client := binance.NewClient(binance.Endpoints{
		FuturesURL: cfg.Binance.FuturesURL,
		SpotURL:    cfg.Binance.SpotURL,
	}, httpClient)
	client.OnUsedWeight(recorder.SetUsedWeight)

	dispatcher := feishu.NewDispatcher(feishu.Config{
		WebhookURL: cfg.Feishu.WebhookURL,
		Keyword:    cfg.Feishu.Keyword,
		MaxLength:  cfg.Feishu.MaxLength,
		Timeout:    cfg.Feishu.Timeout,
	}, &http.Client{Timeout: cfg.Feishu.Timeout})

	monitors, err := buildMonitors(ctx, cfg, client, httpClient, dispatcher, recorder)
	if err != nil {
		log.WithError(err).Error("failed to build monitors")
		os.Exit(1)
	}

	for _, m := range monitors {
		if m.announce {
			m.Announce(ctx)
		}
		wg.Add(1)
		go func(m *monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}
	log.WithFields(logger.Fields{"monitors": len(monitors)}).Info("all monitors started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	for component, c := range logger.IssueCounts() {
		log.WithFields(logger.Fields{
			"issue_component": component,
			"warnings":        c.Warnings,
			"errors":          c.Errors,
		}).Info("issue summary")
	}
	log.Info("web3-script stopped")
}

// monitor pairs a running loop with its startup options.
type monitor struct {
	*processor.Monitor
	announce bool
}
