// Package cmd holds the cobra subcommands attached to the humacli root.
package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"demostack/internal/collect"
	"demostack/internal/config"
	"demostack/internal/logging"
	"demostack/internal/process"
	"demostack/internal/stack"
	"demostack/internal/stopfile"
)

// CreateCollectCmd creates the collect command: run one data-stream
// collector under restart supervision, outside the full stack.
func CreateCollectCmd() *cobra.Command {
	var configFile string
	var dir string
	var stopFile string
	var natsURL string
	var backoff time.Duration
	var servicePorts map[string]int
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "collect [collector-id]",
		Short: "Run one data-stream collector",
		Long: `Runs a single collector (kafka, mqtt, or opcua by default) under auto-restart ` +
			`supervision, appending its output to the sink file the dashboard tails. ` +
			`The collector stops when the stop marker file appears.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			collectorID := args[0]

			loggingConfig := logging.Config{
				Level:  "info",
				Format: "text",
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("collect").With("collector", collectorID)

			logger.Info("Starting collect command", "config", configFile)

			store := stack.NewTOML(configFile)
			if err := store.Load(); err != nil {
				logger.Error("Failed to load stack configuration", "error", err, "config", configFile)
				os.Exit(1)
			}

			spec, exists := store.GetAllCollectors()[collectorID]
			if !exists {
				logger.Error("Collector not found")
				os.Exit(1)
			}

			command, err := stack.ExpandCommand(spec.Command, 0, dir, servicePorts)
			if err != nil {
				logger.Error("Failed to expand collector command", "error", err)
				os.Exit(1)
			}

			sinkPath := filepath.Join(dir, spec.Sink)
			sink, err := collect.NewFileSink(sinkPath, logger)
			if err != nil {
				logger.Error("Failed to open sink file", "error", err, "sink", sinkPath)
				os.Exit(1)
			}
			defer sink.Close()

			handlers := []process.OutputHandler{sink}
			if natsURL != "" {
				natsClient := collect.NewLineClient(natsURL, collectorID, logger)
				// Offline NATS is fine, publishes become no-ops
				_ = natsClient.Connect()
				defer natsClient.Close()
				handlers = append(handlers, natsClient)
			}

			stopSig := stopfile.New(filepath.Join(dir, stopFile), logger)
			if err := stopSig.Start(); err != nil {
				logger.Error("Failed to watch stop marker", "error", err)
				os.Exit(1)
			}
			defer stopSig.Close()

			proc := process.NewWithOutput(collectorID, command, logger, collect.Tee(handlers...))

			// Shut down when the collector disappears from a live-edited config
			watcher := config.NewConfigWatcher(
				configFile,
				func(path string) (map[string]stack.CollectorSpec, error) {
					s := stack.NewTOML(path)
					if err := s.Load(); err != nil {
						return nil, err
					}
					return s.GetAllCollectors(), nil
				},
				logger,
			)
			watcher.OnReload(func(collectors map[string]stack.CollectorSpec) {
				if _, stillThere := collectors[collectorID]; !stillThere {
					logger.Warn("Collector removed from config, shutting down")
					proc.Shutdown()
				}
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			sup := process.NewSupervisor(proc, stopSig.Done(), logger,
				process.WithBackoff(backoff))
			exitCode := sup.Run()

			logger.Info("Collect command exiting", "exit_code", exitCode, "restarts", sup.Restarts())
			os.Exit(exitCode)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "stack.toml", "Path to stack configuration file")
	cmd.Flags().StringVar(&dir, "dir", "run", "Run directory for sink files and the stop marker")
	cmd.Flags().StringVar(&stopFile, "stop-file", "demo.stop", "Stop marker file name inside the run directory")
	cmd.Flags().StringVar(&natsURL, "nats", "", "Optional NATS URL for line fan-out (e.g. nats://localhost:4222)")
	cmd.Flags().DurationVar(&backoff, "backoff", time.Second, "Delay between collector exit and relaunch")
	cmd.Flags().StringToIntVar(&servicePorts, "port", map[string]int{
		"zookeeper": 2181,
		"kafka":     9092,
		"mosquitto": 1883,
		"opcua":     4841,
	}, "Service port overrides as name=port pairs")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}
