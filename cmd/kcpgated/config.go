package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuukiPS/grasskcpper-v2/config"
)

// daemonConfig is the on-disk configuration for the kcpgated demo
// command: the core's own configuration surface, inlined, plus the
// handful of knobs that only matter to this process (where to listen,
// how big the executor pool is, how chatty the logger is).
type daemonConfig struct {
	config.Config `yaml:",inline"`

	Listen             string `yaml:"listen"`
	LogLevel           string `yaml:"log_level"`
	ExecutorPoolSize   int    `yaml:"executor_pool_size"`
	ExecutorQueueDepth int    `yaml:"executor_queue_depth"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Config:             config.Default(),
		Listen:             ":29900",
		LogLevel:           "info",
		ExecutorPoolSize:   4,
		ExecutorQueueDepth: 256,
	}
}

// loadDaemonConfig reads path and fills in any zero-valued field from
// defaultDaemonConfig, the same "load then backfill defaults" shape
// zgrnetd's run() uses for its own config.
func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("kcpgated: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return daemonConfig{}, fmt.Errorf("kcpgated: parse config %s: %w", path, err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":29900"
	}
	if cfg.ExecutorPoolSize <= 0 {
		cfg.ExecutorPoolSize = 4
	}
	if cfg.ExecutorQueueDepth <= 0 {
		cfg.ExecutorQueueDepth = 256
	}
	if cfg.WaiterCap <= 0 {
		cfg.WaiterCap = config.DefaultWaiterCap
	}
	return cfg, nil
}
