package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"examwatch/config"
	"examwatch/internal/alerts"
	"examwatch/internal/api"
	"examwatch/internal/archive"
	"examwatch/internal/engine"
	inputredis "examwatch/internal/input/redis"
	"examwatch/internal/logger"
	"examwatch/internal/output/alerthttp"
	"examwatch/internal/output/alertjson"
	"examwatch/internal/pipeline"
	"examwatch/internal/store"
	"examwatch/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("examwatch.yml"); err == nil {
		return "examwatch.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "examwatch.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "examwatch.yml"
}

func applyDefaults(cfg *config.Config) {
	ew := &cfg.ExamWatch

	if ew.Engine.DecayWindow == 0 {
		ew.Engine.DecayWindow = config.Duration(120 * time.Second)
	}
	if ew.Engine.Thresholds == (config.ThresholdsConfig{}) {
		ew.Engine.Thresholds = config.ThresholdsConfig{Critical: 75, High: 50, Medium: 25}
	}
	if ew.Engine.TriggerCap == 0 {
		ew.Engine.TriggerCap = 10
	}
	if ew.Engine.IdleWindow == 0 {
		ew.Engine.IdleWindow = config.Duration(5 * time.Minute)
	}
	if ew.Engine.EvictionInterval == 0 {
		ew.Engine.EvictionInterval = config.Duration(30 * time.Second)
	}

	if ew.Input.Redis.Addr == "" {
		ew.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if ew.Input.Redis.Key == "" {
		ew.Input.Redis.Key = "exam_telemetry"
	}
	if ew.Input.Redis.BlockTimeout == 0 {
		ew.Input.Redis.BlockTimeout = config.Duration(5 * time.Second)
	}

	if ew.API.Addr == "" {
		ew.API.Addr = ":8080"
	}

	if ew.Alerts.Mode == "" {
		ew.Alerts.Mode = "file"
	}
	if ew.Alerts.File.Path == "" {
		ew.Alerts.File.Path = "output/alerts.jsonl"
	}
	if ew.Alerts.BufferSize == 0 {
		ew.Alerts.BufferSize = 1024
	}

	if ew.Archive.Redis.Addr == "" {
		ew.Archive.Redis.Addr = ew.Input.Redis.Addr
	}

	if ew.Pipeline.Workers <= 0 {
		ew.Pipeline.Workers = 8
	}
	if ew.Pipeline.BatchSize <= 0 {
		ew.Pipeline.BatchSize = 100
	}
	if ew.Pipeline.FlushInterval <= 0 {
		ew.Pipeline.FlushInterval = config.Duration(2 * time.Second)
	}

	if ew.Logging.Level == "" {
		ew.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *config.Config) {
	ew := &cfg.ExamWatch
	if v := os.Getenv("EXAMWATCH_REDIS_ADDR"); v != "" {
		ew.Input.Redis.Addr = v
	}
	if v := os.Getenv("EXAMWATCH_REDIS_PASSWORD"); v != "" {
		ew.Input.Redis.Password = v
		if ew.Archive.Redis.Password == "" {
			ew.Archive.Redis.Password = v
		}
	}
	if v := os.Getenv("EXAMWATCH_API_ADDR"); v != "" {
		ew.API.Addr = v
	}
}

func buildWeights(raw map[string]float64) (engine.Weights, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	weights := make(engine.Weights, len(raw))
	for name, value := range raw {
		kind, ok := models.ParseDetectorKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown detector kind %q in engine.weights", name)
		}
		weights[kind] = value
	}
	return weights, nil
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}

	configPath := findConfigFile(configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ew := cfg.ExamWatch

	if err := logger.Init(ew.Logging.Enabled, ew.Logging.Level, ew.Logging.File, ew.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("ExamWatch starting")
	logger.Infof("Config loaded from: %s", configPath)

	weights, err := buildWeights(ew.Engine.Weights)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	scorer, err := engine.NewWeightedScorer(engine.ScorerConfig{
		Weights:     weights,
		DecayWindow: ew.Engine.DecayWindow.Std(),
		Thresholds: engine.Thresholds{
			Critical: ew.Engine.Thresholds.Critical,
			High:     ew.Engine.Thresholds.High,
			Medium:   ew.Engine.Thresholds.Medium,
		},
		MaxTriggers: ew.Engine.TriggerCap,
	})
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	buffer := pipeline.NewAlertBuffer(ew.Alerts.BufferSize)
	dispatcher := alerts.NewDispatcher(buffer, alerts.Config{
		EmitInformational: ew.Alerts.EmitInformationalOrDefault(),
	})
	eng := engine.New(store.New(scorer), dispatcher)

	var alertWriter pipeline.AlertWriter
	switch ew.Alerts.Mode {
	case "file":
		w, err := alertjson.NewWriter(ew.Alerts.File.Path)
		if err != nil {
			logger.Errorf("Failed to create alert file writer: %v", err)
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: file (%s)", ew.Alerts.File.Path)
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     ew.Alerts.HTTP.URL,
			Timeout: ew.Alerts.HTTP.Timeout.Std(),
			Headers: ew.Alerts.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create alert HTTP writer: %v", err)
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: http (%s)", ew.Alerts.HTTP.URL)
	}

	var consumer *inputredis.Consumer
	if ew.Input.Redis.Enabled {
		consumer, err = inputredis.NewConsumer(inputredis.Config{
			Addr:         ew.Input.Redis.Addr,
			Password:     ew.Input.Redis.Password,
			DB:           ew.Input.Redis.DB,
			Key:          ew.Input.Redis.Key,
			BlockTimeout: ew.Input.Redis.BlockTimeout.Std(),
		})
		if err != nil {
			logger.Errorf("Failed to create Redis consumer: %v", err)
			log.Fatalf("Failed to create Redis consumer: %v", err)
		}
		logger.Infof("Telemetry input: redis list %s at %s", ew.Input.Redis.Key, ew.Input.Redis.Addr)
	}

	var archiveStore *archive.RedisStore
	if ew.Archive.Enabled {
		archiveStore, err = archive.NewRedisStore(archive.RedisConfig{
			Addr:      ew.Archive.Redis.Addr,
			Password:  ew.Archive.Redis.Password,
			DB:        ew.Archive.Redis.DB,
			KeyPrefix: ew.Archive.Prefix,
		})
		if err != nil {
			logger.Errorf("Failed to create archive store: %v", err)
			log.Fatalf("Failed to create archive store: %v", err)
		}
		logger.Infof("Session archive: redis at %s", ew.Archive.Redis.Addr)
	}

	pipe := pipeline.NewTelemetryPipeline(
		consumer,
		eng,
		buffer,
		alertWriter,
		ew.Pipeline.Workers,
		ew.Pipeline.BatchSize,
		ew.Pipeline.FlushInterval.Std(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	var archiveWriter pipeline.ArchiveWriter
	if archiveStore != nil {
		archiveWriter = archiveStore
	}
	evictor := pipeline.NewEvictor(eng, archiveWriter, ew.Engine.EvictionInterval.Std(), ew.Engine.IdleWindow.Std())
	go evictor.Run(ctx)

	if ew.API.Enabled {
		router := api.NewRouter(eng)
		go func() {
			logger.Infof("API server listening on %s", ew.API.Addr)
			if err := http.ListenAndServe(ew.API.Addr, router); err != nil {
				logger.Errorf("API server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}
	if archiveStore != nil {
		if err := archiveStore.Close(); err != nil {
			logger.Errorf("Error closing archive store: %v", err)
		}
	}

	logger.Infof("ExamWatch stopped")
}
