package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	server "citypulse/server"
	"citypulse/server/internal/bridge"
	"citypulse/server/internal/events"
	servernet "citypulse/server/internal/net"
	"citypulse/server/internal/observability"
	"citypulse/server/internal/sim"
	"citypulse/server/internal/telemetry"
	"citypulse/server/logging"
	loggingSinks "citypulse/server/logging/sinks"
)

const dialTimeout = 10 * time.Second

type Config struct {
	Addr          string
	ConfigPath    string
	Logger        telemetry.Logger
	Observability observability.Config
}

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	configPath := cfg.ConfigPath
	if raw := os.Getenv("SIM_CONFIG"); raw != "" {
		configPath = raw
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	simCfg, err := sim.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load simulation config: %w", err)
	}
	applyEnvOverrides(&simCfg, telemetryLogger)

	logConfig := logging.DefaultConfig()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if path := os.Getenv("LOG_JSON_PATH"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log %s: %w", path, err)
		}
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSONSink(file, logConfig.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	client, err := bridge.Dial(simCfg.EngineAddress, dialTimeout)
	if err != nil {
		return fmt.Errorf("connect engine bridge: %w", err)
	}

	manager := sim.NewManager(client, simCfg, sim.ManagerDeps{
		Logger:    telemetryLogger,
		Publisher: router,
	})
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initialize simulation: %w", err)
	}
	defer manager.Close()

	eventManager := events.NewManager()
	hub := server.NewHubWithConfig(server.HubConfig{Logger: telemetryLogger})

	var policy sim.PreemptionPolicy = sim.NoOpPreemption{}
	if simCfg.Preemption {
		policy = sim.NewEmergencyPreemption(client, router)
	}

	driver := sim.NewDriver(sim.DriverDeps{
		Manager:   manager,
		Policy:    policy,
		Extractor: sim.NewExtractor(client, manager, router),
		Events:    eventManager,
		Publisher: hub,
		Logger:    telemetryLogger,
		LogEvents: router,
	})

	stop := make(chan struct{})
	defer close(stop)

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerDeps{
		Hub:         hub,
		Simulation:  manager,
		Loop:        driver,
		Events:      eventManager,
		StartRun:    func() { go driver.Run(stop) },
		RouterStats: router.Stats,
	}, servernet.HTTPHandlerConfig{
		Logger:        telemetryLogger,
		Observability: observabilityCfg,
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: handler}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *sim.Config, logger telemetry.Logger) {
	if raw := os.Getenv("ENGINE_ADDR"); raw != "" {
		cfg.EngineAddress = raw
	}
	if raw := os.Getenv("MAX_TICKS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.MaxTicks = value
		} else {
			logger.Printf("invalid MAX_TICKS=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("TICK_INTERVAL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			cfg.TickInterval = sim.Duration(value)
		} else {
			logger.Printf("invalid TICK_INTERVAL=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("PREEMPTION"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Preemption = value
		} else {
			logger.Printf("invalid PREEMPTION=%q: %v", raw, err)
		}
	}
}
