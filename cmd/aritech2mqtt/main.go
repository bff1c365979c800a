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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aritech2mqtt/internal/cache"
	"aritech2mqtt/internal/config"
	"aritech2mqtt/internal/homeassistant"
	"aritech2mqtt/internal/log"
	"aritech2mqtt/internal/mqtt"
	"aritech2mqtt/internal/panel"
)

func main() {
	configFile := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.Log)

	p := panel.NewPanel(cfg, logger)

	var store *cache.Cache
	if cfg.Cache {
		store, err = cache.Open(cfg.CachePath)
		if err != nil {
			logger.Warn("Failed to open cache: %v", err)
		} else {
			defer store.Close()
			data, updatedAt, err := store.Load()
			switch {
			case errors.Is(err, cache.ErrNotFound):
				logger.Debug("No cached panel data yet")
			case err != nil:
				logger.Warn("Failed to load cache: %v", err)
			default:
				p.SetCachedData(data)
				logger.Info("Loaded panel data from cache (written %s)", updatedAt.Format("2006-01-02 15:04:05"))
			}
		}
	}

	if cfg.MetricsListen != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logger.Info("Serving metrics on %s/metrics", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, nil); err != nil {
				logger.Error("Metrics listener failed: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		logger.Fatal("Failed to start panel session: %v", err)
	}

	if store != nil {
		if err := store.Save(p.GetCacheableData()); err != nil {
			logger.Warn("Failed to save cache: %v", err)
		} else {
			logger.Debug("Saved panel data to cache")
		}
	}

	mqttClient := mqtt.NewMQTT(cfg, p, logger)
	if err := mqttClient.Connect(); err != nil {
		p.Close()
		logger.Fatal("Failed to connect to MQTT broker: %v", err)
	}

	if cfg.HomeAssistant.Discovery {
		ha := homeassistant.New(&cfg.HomeAssistant, mqttClient, p, logger)
		ha.Start()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	mqttClient.Close()
	p.Close()
	logger.Info("Shutdown complete")
}
