package cmd

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"demostack/internal/dashboard"
	"demostack/internal/logging"
	"demostack/internal/stack"
)

// CreateRenderCmd creates the render command: produce one dashboard
// snapshot from the current sink files and exit.
func CreateRenderCmd() *cobra.Command {
	var configFile string
	var dir string
	var out string
	var lines int

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the dashboard snapshot once",
		Long: `Reads the collector sink files in the run directory and writes a single ` +
			`dashboard HTML snapshot, replacing the previous one atomically.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("dashboard")

			store := stack.NewTOML(configFile)
			if err := store.Load(); err != nil {
				logger.Error("Failed to load stack configuration", "error", err, "config", configFile)
				os.Exit(1)
			}

			renderer := dashboard.NewRenderer(
				filepath.Join(dir, out),
				PanelsFromCollectors(dir, store.GetAllCollectors()),
				logger,
				dashboard.WithTailLines(lines),
			)

			if err := renderer.RenderOnce(); err != nil {
				logger.Error("Render failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Snapshot written", "path", renderer.Path())
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "stack.toml", "Path to stack configuration file")
	cmd.Flags().StringVar(&dir, "dir", "run", "Run directory holding the sink files")
	cmd.Flags().StringVar(&out, "out", "dashboard.html", "Snapshot file name inside the run directory")
	cmd.Flags().IntVar(&lines, "lines", dashboard.DefaultTailLines, "Sink lines shown per panel")

	return cmd
}

// PanelsFromCollectors builds dashboard panels from the collector
// definitions, one panel per sink, in stable order.
func PanelsFromCollectors(dir string, collectors map[string]stack.CollectorSpec) []dashboard.Panel {
	order := []string{"kafka", "mqtt", "opcua"}
	seen := make(map[string]bool)
	panels := make([]dashboard.Panel, 0, len(collectors))

	add := func(id string) {
		spec, ok := collectors[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		panels = append(panels, dashboard.Panel{
			Title: panelTitle(id),
			Sink:  filepath.Join(dir, spec.Sink),
		})
	}

	for _, id := range order {
		add(id)
	}
	extras := make([]string, 0, len(collectors))
	for id := range collectors {
		if !seen[id] {
			extras = append(extras, id)
		}
	}
	sort.Strings(extras)
	for _, id := range extras {
		add(id)
	}
	return panels
}

func panelTitle(id string) string {
	switch id {
	case "":
		return "(unnamed)"
	case "kafka":
		return "Kafka"
	case "mqtt":
		return "MQTT"
	case "opcua":
		return "OPC UA"
	default:
		return strings.ToUpper(id[:1]) + id[1:]
	}
}
