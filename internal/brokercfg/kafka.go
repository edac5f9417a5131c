package brokercfg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// KafkaConfig holds the values substituted into server.properties.
type KafkaConfig struct {
	Port          int
	ZookeeperPort int
	LogDir        string
	BrokerID      int
}

// RenderKafka writes server.properties into dir, backing up any
// previous file. Returns the path written.
func RenderKafka(dir string, cfg KafkaConfig) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "broker.id=%d\n", cfg.BrokerID)
	fmt.Fprintf(&b, "listeners=PLAINTEXT://:%d\n", cfg.Port)
	fmt.Fprintf(&b, "advertised.listeners=PLAINTEXT://localhost:%d\n", cfg.Port)
	fmt.Fprintf(&b, "zookeeper.connect=localhost:%d\n", cfg.ZookeeperPort)
	fmt.Fprintf(&b, "log.dirs=%s\n", cfg.LogDir)
	b.WriteString("num.partitions=1\n")
	b.WriteString("offsets.topic.replication.factor=1\n")
	b.WriteString("transaction.state.log.replication.factor=1\n")
	b.WriteString("transaction.state.log.min.isr=1\n")
	b.WriteString("auto.create.topics.enable=true\n")

	path := filepath.Join(dir, "server.properties")
	if err := WriteWithBackup(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}

// ZookeeperConfig holds the values substituted into zookeeper.properties.
type ZookeeperConfig struct {
	Port    int
	DataDir string
}

// RenderZookeeper writes zookeeper.properties into dir, backing up any
// previous file. Returns the path written.
func RenderZookeeper(dir string, cfg ZookeeperConfig) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "clientPort=%d\n", cfg.Port)
	fmt.Fprintf(&b, "dataDir=%s\n", cfg.DataDir)
	b.WriteString("maxClientCnxns=0\n")
	b.WriteString("admin.enableServer=false\n")

	path := filepath.Join(dir, "zookeeper.properties")
	if err := WriteWithBackup(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}
