package stack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"demostack/internal/process"
)

// DefaultSeedRecords are the demo payloads produced into the topic so
// the Kafka panel shows traffic immediately after bring-up.
var DefaultSeedRecords = []string{
	`{"sensor":"temperature","value":23.5}`,
	`{"sensor":"pressure","value":1002.1}`,
	`{"sensor":"flow_rate","value":9.8}`,
}

// SeedError wraps a failure in one step of topic seeding.
type SeedError struct {
	Step string
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seeding failed at %s: %v", e.Step, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// Seeder creates the demo topic and produces initial records into it
// by shelling out to the Kafka CLI tools, the same tools the broker
// installation ships.
type Seeder struct {
	logger  *slog.Logger
	timeout time.Duration

	// overridable for tests
	createCommand  func(port int, topic string) string
	produceCommand func(port int, topic string) string
}

// SeederOption configures a Seeder.
type SeederOption func(*Seeder)

// WithSeedTimeout bounds each seeding step.
func WithSeedTimeout(d time.Duration) SeederOption {
	return func(s *Seeder) {
		s.timeout = d
	}
}

// WithCommands overrides the CLI invocations used for each step.
func WithCommands(create, produce func(port int, topic string) string) SeederOption {
	return func(s *Seeder) {
		s.createCommand = create
		s.produceCommand = produce
	}
}

// NewSeeder creates a seeder using the stock Kafka CLI tools.
func NewSeeder(logger *slog.Logger, opts ...SeederOption) *Seeder {
	s := &Seeder{
		logger:  logger,
		timeout: 30 * time.Second,
		createCommand: func(port int, topic string) string {
			return fmt.Sprintf(
				"kafka-topics.sh --create --if-not-exists --topic %s --bootstrap-server localhost:%d --partitions 1 --replication-factor 1",
				topic, port)
		},
		produceCommand: func(port int, topic string) string {
			return fmt.Sprintf(
				"kafka-console-producer.sh --bootstrap-server localhost:%d --topic %s",
				port, topic)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed creates the topic and produces the records. Both steps run as
// one-shot subprocesses; a non-zero exit fails the step.
func (s *Seeder) Seed(ctx context.Context, brokerPort int, topic string, records []string) error {
	s.logger.Info("Creating topic", "topic", topic, "port", brokerPort)
	if err := s.runStep(ctx, "topic-create", s.createCommand(brokerPort, topic), ""); err != nil {
		return err
	}

	s.logger.Info("Producing seed records", "topic", topic, "count", len(records))
	stdin := strings.Join(records, "\n") + "\n"
	if err := s.runStep(ctx, "produce", s.produceCommand(brokerPort, topic), stdin); err != nil {
		return err
	}

	return nil
}

// runStep executes one seeding command to completion with a deadline.
func (s *Seeder) runStep(ctx context.Context, step, command, stdin string) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	proc := process.New("seed-"+step, command, s.logger)
	if stdin != "" {
		proc.SetStdin(strings.NewReader(stdin))
	}

	code, err := proc.RunContext(stepCtx)
	if err != nil {
		return &SeedError{Step: step, Err: err}
	}
	if code != 0 {
		return &SeedError{Step: step, Err: fmt.Errorf("exit code %d", code)}
	}
	return nil
}
