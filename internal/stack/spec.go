package stack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Default attempt budgets used when a definition leaves them unset.
const (
	DefaultPortAttempts = 10
	DefaultReadyRetries = 30
)

// ServiceSpec defines one external service in the demo stack.
// The command is a template; see ExpandCommand for placeholders.
type ServiceSpec struct {
	Command      string   `toml:"command" json:"command"`
	BasePort     int      `toml:"base_port" json:"base_port"`
	Optional     bool     `toml:"optional" json:"optional"`
	PortAttempts int      `toml:"port_attempts,omitempty" json:"port_attempts,omitempty"`
	ReadyRetries int      `toml:"ready_retries,omitempty" json:"ready_retries,omitempty"`
	DependsOn    []string `toml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// CollectorSpec defines one data-stream collector run under auto-restart.
type CollectorSpec struct {
	Command string `toml:"command" json:"command"`
	Sink    string `toml:"sink" json:"sink"`       // file name under the run directory
	Service string `toml:"service" json:"service"` // service whose availability gates this collector
}

// portAttempts returns the configured or default port attempt budget.
func (s ServiceSpec) portAttempts() int {
	if s.PortAttempts > 0 {
		return s.PortAttempts
	}
	return DefaultPortAttempts
}

// readyRetries returns the configured or default readiness poll budget.
func (s ServiceSpec) readyRetries() int {
	if s.ReadyRetries > 0 {
		return s.ReadyRetries
	}
	return DefaultReadyRetries
}

// ExpandCommand substitutes placeholders in a command template:
//
//	{port}       the port leased for this service
//	{port:name}  the port leased for another service (e.g. {port:zookeeper})
//	{dir}        the run directory holding configs and sinks
//
// Unresolvable references are an error so a typo in stack.toml fails
// loudly instead of launching a broken command. {port} is only valid
// for services, which hold a lease; collectors have no port of their
// own and must name the service they read from via {port:name}.
func ExpandCommand(template string, ownPort int, dir string, leased map[string]int) (string, error) {
	if ownPort <= 0 && strings.Contains(template, "{port}") {
		return "", fmt.Errorf("command references {port} but no port is leased: %s", template)
	}
	out := strings.ReplaceAll(template, "{port}", strconv.Itoa(ownPort))
	out = strings.ReplaceAll(out, "{dir}", dir)

	for {
		start := strings.Index(out, "{port:")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in command: %s", template)
		}
		name := out[start+len("{port:") : start+end]
		port, ok := leased[name]
		if !ok {
			return "", fmt.Errorf("command references unleased service %q", name)
		}
		out = out[:start] + strconv.Itoa(port) + out[start+end+1:]
	}

	return out, nil
}

// DefaultServices returns the built-in stack definition used when no
// stack.toml is present: the bring-up order and base ports of the
// original demo (Zookeeper 2181, Kafka 9092, Mosquitto 1883, OPC UA 4841).
func DefaultServices() map[string]ServiceSpec {
	return map[string]ServiceSpec{
		"zookeeper": {
			Command:  "zookeeper-server-start.sh {dir}/zookeeper.properties",
			BasePort: 2181,
		},
		"kafka": {
			Command:   "kafka-server-start.sh {dir}/server.properties",
			BasePort:  9092,
			DependsOn: []string{"zookeeper"},
		},
		"mosquitto": {
			Command:  "mosquitto -c {dir}/mosquitto.conf",
			BasePort: 1883,
			Optional: true,
		},
		"opcua": {
			Command:  "opcua-mock-server --config {dir}/opcua.yaml",
			BasePort: 4841,
			Optional: true,
		},
	}
}

// DefaultCollectors returns the built-in data-stream collectors tailing
// the three demo streams into sink files.
func DefaultCollectors() map[string]CollectorSpec {
	return map[string]CollectorSpec{
		"kafka": {
			Command: "kafka-console-consumer.sh --bootstrap-server localhost:{port:kafka} --topic demo-topic --from-beginning",
			Sink:    "kafka.log",
			Service: "kafka",
		},
		"mqtt": {
			Command: "mosquitto_sub -p {port:mosquitto} -t demo/#",
			Sink:    "mqtt.log",
			Service: "mosquitto",
		},
		"opcua": {
			Command: "opcua-mock-client --endpoint opc.tcp://localhost:{port:opcua}",
			Sink:    "opcua.log",
			Service: "opcua",
		},
	}
}

// StartOrder returns service IDs sorted so dependencies come first.
// Cycles are reported as an error.
func StartOrder(services map[string]ServiceSpec) ([]string, error) {
	order := make([]string, 0, len(services))
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case 1:
			return fmt.Errorf("dependency cycle involving %q", id)
		case 2:
			return nil
		}
		state[id] = 1
		spec := services[id]
		for _, dep := range spec.DependsOn {
			if _, ok := services[dep]; !ok {
				return fmt.Errorf("service %q depends on unknown service %q", id, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = 2
		order = append(order, id)
		return nil
	}

	// Deterministic iteration for stable bring-up logs
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
