// Package dashboard renders a static HTML snapshot of the demo's data
// streams. Each render tails the collector sink files and atomically
// replaces the output file, so a browser on an auto-refresh meta tag
// never sees a half-written page.
package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"demostack/internal/events"
)

// DefaultTailLines is how many trailing sink lines each panel shows.
const DefaultTailLines = 20

// Panel is one data stream shown on the dashboard.
type Panel struct {
	Title string
	Sink  string // sink file path tailed for this panel
}

// Renderer produces dashboard snapshots.
type Renderer struct {
	outPath   string
	panels    []Panel
	tailLines int
	interval  time.Duration
	logger    *slog.Logger
	bus       *events.Bus
	tmpl      *template.Template
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTailLines overrides how many sink lines each panel shows.
func WithTailLines(n int) Option {
	return func(r *Renderer) {
		r.tailLines = n
	}
}

// WithInterval overrides the refresh cadence of Run.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		r.interval = d
	}
}

// WithBus publishes a SnapshotRenderedEvent after each render.
func WithBus(bus *events.Bus) Option {
	return func(r *Renderer) {
		r.bus = bus
	}
}

// NewRenderer creates a renderer writing snapshots to outPath.
func NewRenderer(outPath string, panels []Panel, logger *slog.Logger, opts ...Option) *Renderer {
	r := &Renderer{
		outPath:   outPath,
		panels:    panels,
		tailLines: DefaultTailLines,
		interval:  time.Second,
		logger:    logger,
		tmpl:      template.Must(template.New("dashboard").Parse(pageTemplate)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the snapshot output path.
func (r *Renderer) Path() string {
	return r.outPath
}

type panelView struct {
	Title string
	Lines []string
	Empty bool
}

type pageView struct {
	Refresh     int
	GeneratedAt string
	Panels      []panelView
}

// RenderOnce renders one snapshot and atomically replaces the output
// file. Missing sink files render as empty panels, not errors.
func (r *Renderer) RenderOnce() error {
	view := pageView{
		Refresh:     int(r.interval / time.Second),
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if view.Refresh < 1 {
		view.Refresh = 1
	}

	for _, panel := range r.panels {
		lines, err := tailFile(panel.Sink, r.tailLines)
		if err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to read sink", "sink", panel.Sink, "error", err)
		}
		view.Panels = append(view.Panels, panelView{
			Title: panel.Title,
			Lines: lines,
			Empty: len(lines) == 0,
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}

	if err := replaceFile(r.outPath, buf.Bytes()); err != nil {
		return err
	}

	if r.bus != nil {
		r.bus.Publish(events.SnapshotRenderedEvent{
			Path:      r.outPath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// Run renders every interval until the stop channel closes. Render
// failures are logged and the loop keeps going.
func (r *Renderer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.RenderOnce(); err != nil {
		r.logger.Warn("Dashboard render failed", "error", err)
	}

	for {
		select {
		case <-stop:
			r.logger.Info("Dashboard refresher stopping")
			return
		case <-ticker.C:
			if err := r.RenderOnce(); err != nil {
				r.logger.Warn("Dashboard render failed", "error", err)
			}
		}
	}
}

// replaceFile writes data to a temp file in the target directory and
// renames it over path. The rename keeps readers from ever seeing a
// partial file.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// tailFile returns the last n lines of a file. Sinks are demo-sized so
// reading the whole file is fine.
func tailFile(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.Refresh}}">
<title>Demo Stack Dashboard</title>
<style>
body { font-family: monospace; background: #1e1e1e; color: #d4d4d4; margin: 1em; }
h1 { font-size: 1.2em; }
.meta { color: #808080; margin-bottom: 1em; }
.panels { display: flex; gap: 1em; align-items: flex-start; }
.panel { flex: 1; background: #252526; border: 1px solid #3c3c3c; padding: 0.5em; }
.panel h2 { font-size: 1em; margin: 0 0 0.5em 0; color: #4ec9b0; }
.panel pre { margin: 0; white-space: pre-wrap; word-break: break-all; font-size: 0.85em; }
.empty { color: #808080; font-style: italic; }
</style>
</head>
<body>
<h1>Demo Stack Dashboard</h1>
<div class="meta">Generated {{.GeneratedAt}}</div>
<div class="panels">
{{range .Panels}}<div class="panel">
<h2>{{.Title}}</h2>
{{if .Empty}}<div class="empty">no data yet</div>{{else}}<pre>{{range .Lines}}{{.}}
{{end}}</pre>{{end}}
</div>
{{end}}</div>
</body>
</html>
`
