package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultKillTimeout     = 5 * time.Second

	// Exit code reported when the subprocess had to be force-killed.
	killedExitCode = 137
)

// OutputHandler receives output lines from the subprocess.
// Implementations forward lines to sink files, the event bus, NATS, etc.
type OutputHandler interface {
	HandleLine(source, line string)
}

// Process runs one external command with line-streamed output and a
// SIGINT-then-SIGKILL shutdown sequence. The subprocess gets its own
// process group so shell-wrapped children die with it.
type Process struct {
	id      string
	command string
	logger  *slog.Logger
	handler OutputHandler
	stdin   io.Reader

	mu  sync.RWMutex
	cmd *exec.Cmd

	ctx    context.Context
	cancel context.CancelFunc

	gracefulTimeout time.Duration
	killTimeout     time.Duration
}

// New creates a process whose output is only logged.
func New(id, command string, logger *slog.Logger) *Process {
	return NewWithOutput(id, command, logger, nil)
}

// NewWithOutput creates a process that feeds every stdout/stderr line
// to the handler.
func NewWithOutput(id, command string, logger *slog.Logger, handler OutputHandler) *Process {
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		handler:         handler,
		ctx:             ctx,
		cancel:          cancel,
		gracefulTimeout: defaultGracefulTimeout,
		killTimeout:     defaultKillTimeout,
	}
}

// GetCommand returns the command line the process runs.
func (p *Process) GetCommand() string {
	return p.command
}

// Pid returns the pid of the running subprocess, or 0 when not running.
// The registry uses exact pids for cleanup instead of name-pattern matching.
func (p *Process) Pid() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// SetStdin attaches a reader as the subprocess's stdin. Must be called
// before the process starts. Used to pipe seed records into producers.
func (p *Process) SetStdin(r io.Reader) {
	p.stdin = r
}

// Shutdown triggers a graceful shutdown of the process.
func (p *Process) Shutdown() {
	p.cancel()
}

// running tracks a started subprocess: its Wait result and the two
// output-streaming goroutines.
type running struct {
	exit    <-chan error
	streams sync.WaitGroup
}

// startProcess launches the subprocess and begins streaming its output.
func (p *Process) startProcess(command string) (*running, error) {
	args, err := parseCommand(command)
	if err != nil {
		p.logger.Error("Failed to parse command", "id", p.id, "error", err)
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if p.stdin != nil {
		cmd.Stdin = p.stdin
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "command", command, "error", err)
		return nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", command)

	r := &running{}
	r.streams.Add(2)
	go p.stream(stdout, "stdout", &r.streams)
	go p.stream(stderr, "stderr", &r.streams)

	exit := make(chan error, 1)
	go func() { exit <- cmd.Wait() }()
	r.exit = exit

	return r, nil
}

// Run starts the subprocess and blocks until it exits, the process is
// shut down, or a termination signal arrives. Returns the exit code.
func (p *Process) Run() int {
	r, err := p.startProcess(p.command)
	if err != nil {
		return 1
	}
	defer r.streams.Wait()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-p.ctx.Done():
		p.logger.Info("Shutdown requested", "id", p.id)
		return p.stopAndWait(r.exit)
	case sig := <-sigs:
		p.logger.Info("Received termination signal", "id", p.id, "signal", sig.String())
		return p.stopAndWait(r.exit)
	case exitErr := <-r.exit:
		code := p.reportExit(exitErr)
		p.logger.Info("Process exited", "id", p.id, "exit_code", code)
		return code
	}
}

// RunContext runs the subprocess until it exits or ctx is cancelled.
// Used for one-shot setup commands like topic seeding.
func (p *Process) RunContext(ctx context.Context) (int, error) {
	r, err := p.startProcess(p.command)
	if err != nil {
		return 1, err
	}
	defer r.streams.Wait()

	select {
	case <-ctx.Done():
		return p.stopAndWait(r.exit), ctx.Err()
	case <-p.ctx.Done():
		return p.stopAndWait(r.exit), nil
	case exitErr := <-r.exit:
		return p.reportExit(exitErr), nil
	}
}

// stopAndWait runs the shutdown sequence: SIGINT, wait, then SIGKILL of
// the process group when the grace period runs out.
func (p *Process) stopAndWait(exit <-chan error) int {
	p.interrupt()
	select {
	case err := <-exit:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timed out, killing process group", "id", p.id)
	p.killGroup()
	select {
	case <-exit:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process survived SIGKILL wait", "id", p.id)
	}
	return killedExitCode
}

func (p *Process) interrupt() {
	p.mu.RLock()
	cmd := p.cmd
	p.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		p.logger.Warn("Failed to signal process", "id", p.id, "error", err)
	}
}

func (p *Process) killGroup() {
	p.mu.RLock()
	cmd := p.cmd
	p.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "id", p.id, "error", killErr)
		}
	}
}

// reportExit maps a Wait error to an exit code, logging unexpected
// launch-level failures.
func (p *Process) reportExit(err error) int {
	code := exitCode(err)
	if err != nil && code == 1 {
		p.logger.Error("Process exited with error", "id", p.id, "error", err)
	}
	return code
}

// exitCode maps a Wait error to the subprocess exit code. Non-exit
// errors map to 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// stream reads one output pipe line by line, forwarding to the handler
// and the debug log.
func (p *Process) stream(pipe io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if p.handler != nil {
			p.handler.HandleLine(source, line)
		}
		p.logger.Debug(line, "id", p.id, "source", source)
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading process output", "id", p.id, "source", source, "error", err)
	}
}

// parseCommand splits a command line into argv, honoring single and
// double quotes and backslash escapes.
func parseCommand(command string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune

	runes := []rune(strings.TrimSpace(command))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
		case r == ' ':
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}

	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote in command")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
