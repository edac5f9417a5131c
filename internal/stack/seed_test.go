package stack

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedCommand(cmd string) func(int, string) string {
	return func(int, string) string { return cmd }
}

func TestSeedSuccess(t *testing.T) {
	seeder := NewSeeder(testLogger(),
		WithCommands(fixedCommand("true"), fixedCommand("cat")))

	err := seeder.Seed(context.Background(), 9092, "demo-topic", DefaultSeedRecords)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestSeedTopicCreateFails(t *testing.T) {
	seeder := NewSeeder(testLogger(),
		WithCommands(fixedCommand("false"), fixedCommand("cat")))

	err := seeder.Seed(context.Background(), 9092, "demo-topic", DefaultSeedRecords)
	if err == nil {
		t.Fatal("expected failure from topic creation")
	}

	var seedErr *SeedError
	if !errors.As(err, &seedErr) {
		t.Fatalf("expected SeedError, got %T", err)
	}
	if seedErr.Step != "topic-create" {
		t.Errorf("failing step = %q, want topic-create", seedErr.Step)
	}
}

func TestSeedProduceFails(t *testing.T) {
	seeder := NewSeeder(testLogger(),
		WithCommands(fixedCommand("true"), fixedCommand("false")))

	err := seeder.Seed(context.Background(), 9092, "demo-topic", DefaultSeedRecords)
	var seedErr *SeedError
	if !errors.As(err, &seedErr) {
		t.Fatalf("expected SeedError, got %v", err)
	}
	if seedErr.Step != "produce" {
		t.Errorf("failing step = %q, want produce", seedErr.Step)
	}
}

func TestSeedTimeout(t *testing.T) {
	seeder := NewSeeder(testLogger(),
		WithCommands(fixedCommand("sleep 30"), fixedCommand("cat")),
		WithSeedTimeout(100*time.Millisecond))

	start := time.Now()
	err := seeder.Seed(context.Background(), 9092, "demo-topic", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 10*time.Second {
		t.Error("timeout took far longer than the configured deadline")
	}
}
