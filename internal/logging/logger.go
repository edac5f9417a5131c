package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const historySize = 1000

// Config controls the global log level, output format, and per-module
// level overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	history     *RingBuffer
	callback    LogCallback
}

var reg = &registry{
	loggers: make(map[string]*slog.Logger),
	levels:  make(map[string]*slog.LevelVar),
}

// Initialize applies the configuration. Module loggers handed out
// before init stay valid: each shares a LevelVar with its handlers, so
// retuning the level reaches every existing copy. The output format is
// fixed per logger at creation time.
func Initialize(cfg Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cfg = cfg
	reg.initialized = true
	reg.history = NewRingBuffer(historySize)

	for module, lv := range reg.levels {
		lv.Set(resolveLevel(cfg, module))
	}

	root := &slog.LevelVar{}
	root.Set(resolveLevel(cfg, ""))
	slog.SetDefault(slog.New(buildHandler(cfg.Format, root)))
}

// GetLogger hands out the shared logger for a module, creating it on
// first use. Loggers created before Initialize start at info level and
// are rebuilt when Initialize runs.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	if logger, ok := reg.loggers[module]; ok {
		reg.mu.RUnlock()
		return logger
	}
	reg.mu.RUnlock()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if logger, ok := reg.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	format := "text"
	if reg.initialized {
		lv.Set(resolveLevel(reg.cfg, module))
		format = reg.cfg.Format
	} else {
		lv.Set(slog.LevelInfo)
	}

	logger := slog.New(buildHandler(format, lv)).With("module", module)
	reg.loggers[module] = logger
	reg.levels[module] = lv
	return logger
}

// GetBuffer returns the log history buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.history
}

// SetLogCallback registers a function invoked for every entry written.
// The bus bridge uses this to fan entries out to SSE clients.
func SetLogCallback(cb LogCallback) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.callback = cb
}

// resolveLevel picks the level for a module: per-module override first,
// then the global level, then info.
func resolveLevel(cfg Config, module string) slog.Level {
	if module != "" {
		if lv, ok := parseLevel(cfg.Modules[module]); ok {
			return lv
		}
	}
	if lv, ok := parseLevel(cfg.Level); ok {
		return lv
	}
	return slog.LevelInfo
}

// buildHandler assembles the handler chain: stdout (text or json),
// the systemd journal when running under one, and the history buffer.
func buildHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	chain := make([]slog.Handler, 0, 3)
	if stdoutUsable() {
		chain = append(chain, stdout)
	}
	if IsJournalAvailable() {
		chain = append(chain, NewJournalHandler(level))
	}
	chain = append(chain, NewBufferHandler(level))

	if len(chain) == 1 {
		return chain[0]
	}
	return NewMultiHandler(chain...)
}

// stdoutUsable reports whether stdout is attached to something that can
// receive writes (terminal, pipe, socket, or regular file).
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	m := fi.Mode()
	return m&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || m.IsRegular()
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
