package stack

import (
	"strings"
	"testing"
)

func TestExpandCommandOwnPort(t *testing.T) {
	out, err := ExpandCommand("mosquitto -p {port} -c {dir}/mosquitto.conf", 1883, "/tmp/run", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "mosquitto -p 1883 -c /tmp/run/mosquitto.conf"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestExpandCommandCrossService(t *testing.T) {
	leased := map[string]int{"zookeeper": 2182, "kafka": 9093}
	out, err := ExpandCommand("consume --zk localhost:{port:zookeeper} --broker localhost:{port:kafka}", 0, "", leased)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "localhost:2182") || !strings.Contains(out, "localhost:9093") {
		t.Errorf("placeholders not substituted: %q", out)
	}
}

func TestExpandCommandUnknownService(t *testing.T) {
	_, err := ExpandCommand("consume --broker localhost:{port:kafkaa}", 0, "", map[string]int{"kafka": 9092})
	if err == nil {
		t.Fatal("expected error for unleased service reference")
	}
	if !strings.Contains(err.Error(), "kafkaa") {
		t.Errorf("error should name the bad reference: %v", err)
	}
}

func TestExpandCommandUnterminated(t *testing.T) {
	_, err := ExpandCommand("consume {port:kafka", 0, "", map[string]int{"kafka": 9092})
	if err == nil {
		t.Fatal("expected error for unterminated placeholder")
	}
}

func TestExpandCommandOwnPortWithoutLease(t *testing.T) {
	// {port} in a collector template would expand to a literal 0
	_, err := ExpandCommand("consume --broker localhost:{port}", 0, "", map[string]int{"kafka": 9092})
	if err == nil {
		t.Fatal("expected error for {port} without an own lease")
	}
	if !strings.Contains(err.Error(), "{port}") {
		t.Errorf("error should name the placeholder: %v", err)
	}
}

func TestDefaultServicesPorts(t *testing.T) {
	services := DefaultServices()

	wantPorts := map[string]int{
		"zookeeper": 2181,
		"kafka":     9092,
		"mosquitto": 1883,
		"opcua":     4841,
	}
	for id, port := range wantPorts {
		spec, ok := services[id]
		if !ok {
			t.Fatalf("missing default service %s", id)
		}
		if spec.BasePort != port {
			t.Errorf("%s base port = %d, want %d", id, spec.BasePort, port)
		}
	}

	if services["zookeeper"].Optional {
		t.Error("zookeeper should be required")
	}
	if services["kafka"].Optional {
		t.Error("kafka should be required")
	}
	if !services["mosquitto"].Optional {
		t.Error("mosquitto should be optional")
	}
	if !services["opcua"].Optional {
		t.Error("opcua should be optional")
	}
}

func TestStartOrderDependenciesFirst(t *testing.T) {
	order, err := StartOrder(DefaultServices())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("got %d services, want 4", len(order))
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos["zookeeper"] > pos["kafka"] {
		t.Errorf("zookeeper must start before kafka: %v", order)
	}
}

func TestStartOrderCycle(t *testing.T) {
	services := map[string]ServiceSpec{
		"a": {DependsOn: []string{"b"}},
		"b": {DependsOn: []string{"a"}},
	}
	if _, err := StartOrder(services); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestStartOrderUnknownDependency(t *testing.T) {
	services := map[string]ServiceSpec{
		"a": {DependsOn: []string{"ghost"}},
	}
	if _, err := StartOrder(services); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestSpecDefaults(t *testing.T) {
	var s ServiceSpec
	if got := s.portAttempts(); got != DefaultPortAttempts {
		t.Errorf("portAttempts = %d, want %d", got, DefaultPortAttempts)
	}
	if got := s.readyRetries(); got != DefaultReadyRetries {
		t.Errorf("readyRetries = %d, want %d", got, DefaultReadyRetries)
	}

	s = ServiceSpec{PortAttempts: 3, ReadyRetries: 7}
	if got := s.portAttempts(); got != 3 {
		t.Errorf("portAttempts = %d, want 3", got)
	}
	if got := s.readyRetries(); got != 7 {
		t.Errorf("readyRetries = %d, want 7", got)
	}
}
