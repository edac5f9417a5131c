package stack

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"syscall"
	"time"

	"demostack/internal/events"
	"demostack/internal/ports"
	"demostack/internal/process"
)

// ServiceInfo is a point-in-time snapshot of a managed service or collector.
type ServiceInfo struct {
	ID        string    `json:"id" doc:"Service identifier"`
	Kind      string    `json:"kind" example:"service" doc:"service or collector"`
	State     State     `json:"state" example:"running" doc:"Lifecycle state"`
	Port      int       `json:"port,omitempty" example:"9092" doc:"Leased port, services only"`
	PID       int       `json:"pid,omitempty" doc:"Process ID while running"`
	Optional  bool      `json:"optional" doc:"Whether bring-up tolerates this service failing"`
	Restarts  int       `json:"restarts" doc:"Relaunches performed by the supervisor"`
	StartedAt time.Time `json:"started_at,omitzero" doc:"Last launch time"`
	LastError string    `json:"last_error,omitempty" doc:"Most recent failure"`
}

const (
	kindService   = "service"
	kindCollector = "collector"
)

// How long StartCollector waits for the first subprocess launch before
// leaving the supervisor to keep retrying in the background.
const launchWaitTimeout = 5 * time.Second

// managedService tracks one running service or collector and everything
// needed to relaunch it.
type managedService struct {
	kind      string
	spec      ServiceSpec
	collector CollectorSpec
	handler   process.OutputHandler
	stop      <-chan struct{}

	proc      *process.Process
	sup       *process.Supervisor
	port      int
	state     State
	startedAt time.Time
	restarts  int
	lastErr   error
	done      chan struct{}
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger    *slog.Logger
	Bus       *events.Bus
	Allocator *ports.Allocator
	Launcher  *Launcher
	Dir       string // run directory substituted for {dir} in commands

	// OnPortLeased runs after a port lease and before the service
	// launches. Used to render config files that embed the port.
	// An error aborts the launch.
	OnPortLeased func(id string, port int) error

	// OnCollectorRestart fires on every supervisor relaunch with the
	// cumulative restart count. Used for metrics.
	OnCollectorRestart func(id string, restarts int)
}

// Registry owns every process the stack launches. All cleanup works
// from these tracked handles; nothing is ever killed by name.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*managedService

	logger             *slog.Logger
	bus                *events.Bus
	allocator          *ports.Allocator
	launcher           *Launcher
	dir                string
	onPortLeased       func(id string, port int) error
	onCollectorRestart func(id string, restarts int)
}

// NewRegistry creates a registry with the given options.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = NewLauncher(logger)
	}
	allocator := opts.Allocator
	if allocator == nil {
		allocator = ports.NewAllocator(logger)
	}
	return &Registry{
		services:           make(map[string]*managedService),
		logger:             logger,
		bus:                opts.Bus,
		allocator:          allocator,
		launcher:           launcher,
		dir:                opts.Dir,
		onPortLeased:       opts.OnPortLeased,
		onCollectorRestart: opts.OnCollectorRestart,
	}
}

// LeasedPorts returns the ports currently leased to services.
func (r *Registry) LeasedPorts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	leased := make(map[string]int)
	for id, svc := range r.services {
		if svc.kind == kindService && svc.port > 0 {
			leased[id] = svc.port
		}
	}
	return leased
}

// StartService leases a port, launches the service, and waits for it to
// accept connections. The error is returned to the caller so bring-up
// can decide whether the failure is fatal or a degradation.
func (r *Registry) StartService(ctx context.Context, id string, spec ServiceSpec, handler process.OutputHandler) error {
	r.mu.Lock()
	if existing, ok := r.services[id]; ok && existing.state.IsActive() {
		r.mu.Unlock()
		return fmt.Errorf("service %s is already active", id)
	}
	svc := &managedService{
		kind:    kindService,
		spec:    spec,
		handler: handler,
		state:   StateIdle,
	}
	r.services[id] = svc
	r.mu.Unlock()

	lease, err := r.allocator.Allocate(ctx, spec.BasePort, id, spec.portAttempts())
	if err != nil {
		r.setState(id, StateError, err)
		return err
	}
	r.publishPortAllocated(id, lease)

	r.mu.Lock()
	svc.port = lease.Port
	r.mu.Unlock()

	if r.onPortLeased != nil {
		if err := r.onPortLeased(id, lease.Port); err != nil {
			r.setState(id, StateError, err)
			return err
		}
	}

	command, err := ExpandCommand(spec.Command, lease.Port, r.dir, r.LeasedPorts())
	if err != nil {
		r.setState(id, StateError, err)
		return err
	}

	r.setState(id, StateStarting, nil)

	proc, exited, err := r.launcher.Start(ctx, id, command, lease.Port, spec.readyRetries(), handler)
	if err != nil {
		r.setState(id, StateError, err)
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	svc.proc = proc
	svc.done = done
	svc.startedAt = time.Now()
	r.mu.Unlock()

	r.setState(id, StateRunning, nil)

	go func() {
		code := <-exited
		r.mu.RLock()
		state := svc.state
		r.mu.RUnlock()
		if state == StateRunning {
			// Died without anyone asking it to
			r.setState(id, StateError, fmt.Errorf("service %s exited with code %d", id, code))
		}
		close(done)
	}()

	return nil
}

// StartCollector runs a data-stream collector under an auto-restart
// supervisor bound to the stop channel. Returns after launch; the
// supervisor loop runs in the background until stop closes.
func (r *Registry) StartCollector(id string, spec CollectorSpec, stop <-chan struct{}, handler process.OutputHandler, opts ...process.SupervisorOption) error {
	leased := r.LeasedPorts()
	command, err := ExpandCommand(spec.Command, 0, r.dir, leased)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if existing, ok := r.services[id]; ok && existing.state.IsActive() {
		r.mu.Unlock()
		return fmt.Errorf("collector %s is already active", id)
	}

	proc := process.NewWithOutput(id, command, r.logger, handler)

	svc := &managedService{
		kind:      kindCollector,
		collector: spec,
		handler:   handler,
		stop:      stop,
		proc:      proc,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	onRestart := func(restarts int) {
		r.mu.Lock()
		svc.restarts = restarts
		r.mu.Unlock()
		if r.onCollectorRestart != nil {
			r.onCollectorRestart(id, restarts)
		}
	}
	launched := make(chan struct{})
	var launchOnce sync.Once
	onLaunch := func(int) {
		launchOnce.Do(func() { close(launched) })
	}
	supOpts := append([]process.SupervisorOption{
		process.WithOnRestart(onRestart),
		process.WithOnLaunch(onLaunch),
	}, opts...)
	svc.sup = process.NewSupervisor(proc, stop, r.logger, supOpts...)
	r.services[id] = svc
	r.mu.Unlock()

	r.setState(id, StateRunning, nil)

	go func() {
		exitCode := svc.sup.Run()
		r.logger.Info("Collector supervisor finished", "id", id, "exit_code", exitCode)
		r.setState(id, StateStopped, nil)
		close(svc.done)
	}()

	// Block until the subprocess exists so callers can rely on its pid.
	// A collector whose command cannot launch keeps retrying in the
	// background; give up waiting rather than stalling bring-up.
	select {
	case <-launched:
	case <-svc.done:
	case <-time.After(launchWaitTimeout):
		r.logger.Warn("Collector still has no process, continuing", "id", id)
	}

	return nil
}

// Restart stops the named service or collector and launches it again.
// For collectors the supervisor is rebuilt against the same stop channel.
func (r *Registry) Restart(ctx context.Context, id string) error {
	r.mu.RLock()
	svc, ok := r.services[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown service %s", id)
	}

	switch svc.kind {
	case kindService:
		r.stopOne(id, svc)
		return r.StartService(ctx, id, svc.spec, svc.handler)
	case kindCollector:
		r.stopOne(id, svc)
		return r.StartCollector(id, svc.collector, svc.stop, svc.handler)
	default:
		return fmt.Errorf("unknown kind %q for %s", svc.kind, id)
	}
}

// stopOne shuts down one entry and waits for its background loop.
func (r *Registry) stopOne(id string, svc *managedService) {
	r.mu.RLock()
	proc := svc.proc
	done := svc.done
	active := svc.state.IsActive()
	r.mu.RUnlock()

	if !active || proc == nil {
		return
	}

	r.setState(id, StateStopping, nil)
	proc.Shutdown()

	if done != nil {
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			r.logger.Warn("Timed out waiting for shutdown", "id", id)
		}
	}

	r.setState(id, StateStopped, nil)
}

// StopAll shuts down every tracked process, collectors first so they
// stop cleanly before their brokers disappear. Leftover processes get
// a SIGKILL by tracked PID.
func (r *Registry) StopAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool {
		return r.kindOf(ids[i]) < r.kindOf(ids[j]) // collector < service
	})

	for _, id := range ids {
		r.mu.RLock()
		svc := r.services[id]
		r.mu.RUnlock()
		r.stopOne(id, svc)
	}

	// Belt and braces: anything still alive gets killed by tracked PID
	for _, pid := range r.Pids() {
		if err := syscall.Kill(pid, 0); err == nil {
			r.logger.Warn("Force killing leftover process", "pid", pid)
			syscall.Kill(-pid, syscall.SIGKILL)
		}
	}
}

func (r *Registry) kindOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if svc, ok := r.services[id]; ok {
		return svc.kind
	}
	return ""
}

// Pids returns the PIDs of all live tracked processes.
func (r *Registry) Pids() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pids := make([]int, 0, len(r.services))
	for _, svc := range r.services {
		if svc.proc == nil {
			continue
		}
		if pid := svc.proc.Pid(); pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// Get returns a snapshot of one entry.
func (r *Registry) Get(id string) (ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return ServiceInfo{}, false
	}
	return r.infoLocked(id, svc), true
}

// List returns snapshots of every entry, sorted by ID.
func (r *Registry) List() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ServiceInfo, 0, len(r.services))
	for id, svc := range r.services {
		infos = append(infos, r.infoLocked(id, svc))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Registry) infoLocked(id string, svc *managedService) ServiceInfo {
	info := ServiceInfo{
		ID:        id,
		Kind:      svc.kind,
		State:     svc.state,
		Port:      svc.port,
		Optional:  svc.spec.Optional,
		Restarts:  svc.restarts,
		StartedAt: svc.startedAt,
	}
	if svc.proc != nil {
		info.PID = svc.proc.Pid()
	}
	if svc.lastErr != nil {
		info.LastError = svc.lastErr.Error()
	}
	return info
}

// setState records a state transition and publishes it on the bus.
func (r *Registry) setState(id string, state State, err error) {
	r.mu.Lock()
	svc, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	old := svc.state
	svc.state = state
	if err != nil {
		svc.lastErr = err
	}
	r.mu.Unlock()

	if old == state {
		return
	}

	if err != nil {
		r.logger.Warn("Service state changed", "id", id, "from", old, "to", state, "error", err)
	} else {
		r.logger.Debug("Service state changed", "id", id, "from", old, "to", state)
	}

	if r.bus != nil {
		evt := events.ServiceStateChangedEvent{
			Service:   id,
			OldState:  string(old),
			NewState:  string(state),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err != nil {
			evt.Error = err.Error()
		}
		r.bus.Publish(evt)
	}
}

func (r *Registry) publishPortAllocated(id string, lease *ports.Lease) {
	r.logger.Info("Port leased", "service", id, "port", lease.Port, "attempts", lease.Attempts)
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.PortAllocatedEvent{
		Service:   id,
		Port:      lease.Port,
		Attempts:  lease.Attempts,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
