package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"demostack/cmd"
	"demostack/internal/api"
	"demostack/internal/brokercfg"
	"demostack/internal/collect"
	"demostack/internal/config"
	"demostack/internal/dashboard"
	"demostack/internal/events"
	"demostack/internal/logging"
	"demostack/internal/metrics"
	"demostack/internal/ports"
	"demostack/internal/process"
	"demostack/internal/stack"
	"demostack/internal/stopfile"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"API listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Stack settings
	Dir             string `help:"Run directory for configs, sinks, and the dashboard" default:"run" toml:"stack.dir" env:"STACK_DIR"`
	StackConfigFile string `help:"Stack definitions file" default:"stack.toml" toml:"stack.config_file" env:"STACK_CONFIG_FILE"`
	StopFile        string `help:"Stop marker file name inside the run directory" default:"demo.stop" toml:"stack.stop_file" env:"STACK_STOP_FILE"`
	RestartBackoff  string `help:"Delay between collector exit and relaunch" default:"1s" toml:"stack.restart_backoff" env:"STACK_RESTART_BACKOFF"`

	// Port settings
	ZookeeperPort      int  `help:"Zookeeper base port" default:"2181" toml:"ports.zookeeper" env:"PORTS_ZOOKEEPER"`
	KafkaPort          int  `help:"Kafka base port" default:"9092" toml:"ports.kafka" env:"PORTS_KAFKA"`
	MosquittoPort      int  `help:"Mosquitto base port" default:"1883" toml:"ports.mosquitto" env:"PORTS_MOSQUITTO"`
	OpcuaPort          int  `help:"OPC UA base port" default:"4841" toml:"ports.opcua" env:"PORTS_OPCUA"`
	PortAttempts       int  `help:"Candidate ports tried per service" default:"10" toml:"ports.attempts" env:"PORTS_ATTEMPTS"`
	DestructiveReclaim bool `help:"Kill foreign listeners on wanted ports instead of skipping them" default:"false" toml:"ports.destructive_reclaim" env:"PORTS_DESTRUCTIVE_RECLAIM"`

	// Kafka settings
	Topic    string `help:"Demo topic to create and seed" default:"demo-topic" toml:"kafka.topic" env:"KAFKA_TOPIC"`
	SkipSeed bool   `help:"Skip topic creation and seeding" default:"false" toml:"kafka.skip_seed" env:"KAFKA_SKIP_SEED"`

	// NATS settings
	NatsURL string `help:"Optional NATS URL for collector line fan-out" default:"" toml:"nats.url" env:"NATS_URL"`

	// Dashboard settings
	DashboardFile     string `help:"Dashboard snapshot file name inside the run directory" default:"dashboard.html" toml:"dashboard.file" env:"DASHBOARD_FILE"`
	DashboardLines    int    `help:"Sink lines shown per dashboard panel" default:"20" toml:"dashboard.lines" env:"DASHBOARD_LINES"`
	DashboardInterval string `help:"Dashboard refresh interval" default:"1s" toml:"dashboard.interval" env:"DASHBOARD_INTERVAL"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStack     string `help:"Stack logging level" default:"info" toml:"logging.stack" env:"LOGGING_STACK"`
	LoggingPorts     string `help:"Port allocator logging level" default:"info" toml:"logging.ports" env:"LOGGING_PORTS"`
	LoggingCollect   string `help:"Collector logging level" default:"info" toml:"logging.collect" env:"LOGGING_COLLECT"`
	LoggingDashboard string `help:"Dashboard logging level" default:"info" toml:"logging.dashboard" env:"LOGGING_DASHBOARD"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// The callback runs inside cli.Run, so the root command and its
		// parsed flags are available for the explicit-flag guard.
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			fmt.Fprintln(os.Stderr, "failed to load config:", loadErr)
		}

		// The [logging] table may carry levels for modules beyond the
		// flag-covered ones; flags win for the modules they name.
		logCfg := config.LoadLoggingConfig(opts.Config)
		logCfg.Level = opts.LoggingLevel
		logCfg.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"stack":     opts.LoggingStack,
			"ports":     opts.LoggingPorts,
			"collect":   opts.LoggingCollect,
			"dashboard": opts.LoggingDashboard,
			"api":       opts.LoggingAPI,
		} {
			logCfg.Modules[module] = level
		}
		logging.Initialize(logCfg)
		logger := logging.GetLogger("main")

		teardownDone := make(chan struct{})
		stopSig := stopfile.New(filepath.Join(opts.Dir, opts.StopFile), logging.GetLogger("stack"))

		hooks.OnStart(func() {
			code := run(opts, stopSig, logger)
			close(teardownDone)
			if code != 0 {
				os.Exit(code)
			}
		})

		hooks.OnStop(func() {
			if err := stopSig.Set("signal"); err != nil {
				logger.Warn("Failed to set stop marker", "error", err)
			}
			select {
			case <-teardownDone:
			case <-time.After(30 * time.Second):
				logger.Error("Teardown timed out")
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateCollectCmd())
	cli.Root().AddCommand(cmd.CreateRenderCmd())

	cli.Run()
}

// run brings up the stack, blocks until the stop signal trips, then
// tears everything down. Returns the process exit code.
func run(opts *Options, stopSig *stopfile.Signal, logger *slog.Logger) int {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		logger.Error("Failed to create run directory", "dir", opts.Dir, "error", err)
		return 1
	}

	bus := events.New()
	unbindMetrics := metrics.BindBus(bus)
	defer unbindMetrics()

	// Feed log entries to the bus so the API can stream them live
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Level:     entry.Level,
			Module:    entry.Module,
			Message:   entry.Message,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	})
	defer logging.SetLogCallback(nil)

	if err := stopSig.Start(); err != nil {
		logger.Error("Failed to watch stop marker", "error", err)
		return 1
	}
	defer stopSig.Close()
	if stopSig.IsSet() {
		logger.Error("Stop marker already present, refusing to start", "marker", filepath.Join(opts.Dir, opts.StopFile))
		return 1
	}
	go func() {
		<-stopSig.Done()
		bus.Publish(events.StopRequestedEvent{
			Reason:    "marker",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}()

	store := stack.NewTOML(opts.StackConfigFile)
	if err := store.Load(); err != nil {
		logger.Warn("Failed to load stack config, using defaults", "error", err)
	}
	services := applyPortOverrides(opts, store.GetAllServices())

	allocOpts := []ports.Option{}
	if opts.DestructiveReclaim {
		logger.Warn("Destructive port reclaim enabled, foreign listeners on wanted ports will be killed")
		allocOpts = append(allocOpts, ports.WithDestructiveReclaim())
	}
	allocator := ports.NewAllocator(logging.GetLogger("ports"), allocOpts...)

	// Everything the run generates gets removed again at teardown
	var artifactsMu sync.Mutex
	var artifacts []string
	trackArtifact := func(path string) {
		if path == "" {
			return
		}
		artifactsMu.Lock()
		artifacts = append(artifacts, path)
		artifactsMu.Unlock()
	}

	var registry *stack.Registry
	registry = stack.NewRegistry(stack.RegistryOptions{
		Logger:    logging.GetLogger("stack"),
		Bus:       bus,
		Allocator: allocator,
		Launcher:  stack.NewLauncher(logging.GetLogger("stack")),
		Dir:       opts.Dir,
		OnPortLeased: func(id string, port int) error {
			path, err := renderServiceConfig(opts, registry, id, port)
			trackArtifact(path)
			return err
		},
		OnCollectorRestart: func(id string, _ int) {
			metrics.IncRestarts(id)
		},
	})

	// The dashboard snapshot lives in the run directory; the API also
	// serves it at /.
	snapshotPath := filepath.Join(opts.Dir, opts.DashboardFile)
	trackArtifact(snapshotPath)
	renderer := dashboard.NewRenderer(
		snapshotPath,
		cmd.PanelsFromCollectors(opts.Dir, store.GetAllCollectors()),
		logging.GetLogger("dashboard"),
		dashboard.WithTailLines(opts.DashboardLines),
		dashboard.WithInterval(parseDurationOr(opts.DashboardInterval, time.Second)),
		dashboard.WithBus(bus),
	)

	apiServer := api.NewServer(&api.Options{
		Registry:          registry,
		Bus:               bus,
		Stop:              stopSig.Set,
		IsStopping:        stopSig.IsSet,
		DashboardPath:     snapshotPath,
		PrometheusHandler: metrics.HTTPHandler(),
	})

	var sinks []*collect.FileSink
	var natsClients []*collect.LineClient
	teardown := func() {
		if err := apiServer.Stop(); err != nil {
			logger.Warn("Error stopping API server", "error", err)
		}
		registry.StopAll()
		for _, client := range natsClients {
			client.Close()
		}
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				logger.Warn("Error closing sink", "error", err)
			}
		}
		if err := stopSig.Clear(); err != nil {
			logger.Warn("Failed to remove stop marker", "error", err)
		}
		artifactsMu.Lock()
		generated := append([]string(nil), artifacts...)
		artifactsMu.Unlock()
		removeArtifacts(logger, generated)
		logger.Info("Teardown complete", "artifacts_removed", len(generated))
	}

	// Bring-up: services in dependency order, required failures fatal,
	// optional failures degrade.
	ctx := context.Background()
	order, err := stack.StartOrder(services)
	if err != nil {
		logger.Error("Invalid stack definition", "error", err)
		teardown()
		return 1
	}

	for _, id := range order {
		spec := services[id]
		if startErr := registry.StartService(ctx, id, spec, nil); startErr != nil {
			if !spec.Optional {
				logger.Error("Required service failed to start", "service", id, "error", startErr)
				teardown()
				return 1
			}
			logger.Warn("Optional service unavailable, continuing degraded", "service", id, "error", startErr)
		}
	}

	// Seed the demo topic once Kafka is up
	if !opts.SkipSeed {
		if info, ok := registry.Get("kafka"); ok && info.State == stack.StateRunning {
			seeder := stack.NewSeeder(logging.GetLogger("stack"))
			if seedErr := seeder.Seed(ctx, info.Port, opts.Topic, stack.DefaultSeedRecords); seedErr != nil {
				logger.Warn("Topic seeding failed, panels may stay empty", "error", seedErr)
			}
		}
	}

	// Collectors for every service that made it up
	backoff := parseDurationOr(opts.RestartBackoff, time.Second)
	collectors := store.GetAllCollectors()
	ids := make([]string, 0, len(collectors))
	for id := range collectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		spec := collectors[id]
		if spec.Service != "" {
			info, ok := registry.Get(spec.Service)
			if !ok || info.State != stack.StateRunning {
				logger.Warn("Skipping collector, its service is not running", "collector", id, "service", spec.Service)
				continue
			}
		}

		sink, sinkErr := collect.NewFileSink(filepath.Join(opts.Dir, spec.Sink), logging.GetLogger("collect"))
		if sinkErr != nil {
			logger.Warn("Skipping collector, sink unavailable", "collector", id, "error", sinkErr)
			continue
		}
		sinks = append(sinks, sink)
		trackArtifact(sink.Path())

		handlers := []process.OutputHandler{
			sink,
			collect.NewBusHandler(id, bus, nil),
		}
		if opts.NatsURL != "" {
			client := collect.NewLineClient(opts.NatsURL, id, logging.GetLogger("collect"))
			// Offline NATS is fine, publishes become no-ops
			_ = client.Connect()
			natsClients = append(natsClients, client)
			handlers = append(handlers, client)
		}

		if colErr := registry.StartCollector(id, spec, stopSig.Done(), collect.Tee(handlers...),
			process.WithBackoff(backoff)); colErr != nil {
			logger.Warn("Failed to start collector", "collector", id, "error", colErr)
		}
	}

	go renderer.Run(stopSig.Done())

	go func() {
		if serveErr := apiServer.Start(opts.Port); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("API server stopped", "error", serveErr)
		}
	}()

	logger.Info("Stack is up",
		"services", len(registry.List()),
		"dashboard", snapshotPath,
		"stop_marker", filepath.Join(opts.Dir, opts.StopFile))

	<-stopSig.Done()
	logger.Info("Stop observed, shutting down")
	teardown()
	return 0
}

// applyPortOverrides replaces the base ports of the built-in services
// with the configured ones.
func applyPortOverrides(opts *Options, services map[string]stack.ServiceSpec) map[string]stack.ServiceSpec {
	overrides := map[string]int{
		"zookeeper": opts.ZookeeperPort,
		"kafka":     opts.KafkaPort,
		"mosquitto": opts.MosquittoPort,
		"opcua":     opts.OpcuaPort,
	}

	out := make(map[string]stack.ServiceSpec, len(services))
	for id, spec := range services {
		if port, ok := overrides[id]; ok && port > 0 {
			spec.BasePort = port
		}
		if spec.PortAttempts == 0 && opts.PortAttempts > 0 {
			spec.PortAttempts = opts.PortAttempts
		}
		out[id] = spec
	}
	return out
}

// renderServiceConfig writes the config file a service consumes, using
// the port it was just leased. Returns the written path so teardown can
// remove it.
func renderServiceConfig(opts *Options, registry *stack.Registry, id string, port int) (string, error) {
	switch id {
	case "zookeeper":
		return brokercfg.RenderZookeeper(opts.Dir, brokercfg.ZookeeperConfig{
			Port:    port,
			DataDir: filepath.Join(opts.Dir, "zookeeper-data"),
		})
	case "kafka":
		zkPort := opts.ZookeeperPort
		if leased, ok := registry.LeasedPorts()["zookeeper"]; ok {
			zkPort = leased
		}
		return brokercfg.RenderKafka(opts.Dir, brokercfg.KafkaConfig{
			Port:          port,
			ZookeeperPort: zkPort,
			LogDir:        filepath.Join(opts.Dir, "kafka-logs"),
		})
	case "mosquitto":
		return brokercfg.RenderMosquitto(opts.Dir, brokercfg.MosquittoConfig{
			Port:           port,
			AllowAnonymous: true,
		})
	case "opcua":
		return brokercfg.RenderOPCUA(opts.Dir, brokercfg.DefaultOPCUAConfig(port))
	default:
		// Custom services bring their own config
		return "", nil
	}
}

// removeArtifacts best-effort deletes the files a run generated,
// including the .bak backup next to each rendered config. Broker data
// directories are kept so a later run can resume their state.
func removeArtifacts(logger *slog.Logger, paths []string) {
	for _, path := range paths {
		for _, target := range []string{path, path + ".bak"} {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				logger.Warn("Failed to remove artifact", "path", target, "error", err)
			}
		}
	}
}

// parseDurationOr parses a duration string, falling back on bad input.
func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
