package chain

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// StageConfig describes one scale stage.
type StageConfig struct {
	Name  string `yaml:"name"`
	Scale uint16 `yaml:"scale"` // incoming ticks per outgoing tick
}

// Config mirrors chain.yml
type Config struct {
	Root   string        `yaml:"root"`    // "millisecond" (by default)
	PollMS int           `yaml:"poll_ms"` // 10 (by default)
	Stages []StageConfig `yaml:"stages"`  // decisecond, second, minute (by default)
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		Root:   "millisecond",
		PollMS: 10,
		Stages: []StageConfig{
			{Name: "decisecond", Scale: 100},
			{Name: "second", Scale: 10},
			{Name: "minute", Scale: 60},
		},
	}
}

// maxPollMS keeps polls well inside one wrap of the 16 bit root delta.
const maxPollMS = 60000

// MaxStep is the most root ticks one poll may feed in. The finest stage
// carries once per call, so a poll longer than its scale leaves a backlog
// that grows until its accumulator wraps.
func (c Config) MaxStep() int {
	if len(c.Stages) > 0 && c.Stages[0].Scale > 0 && int(c.Stages[0].Scale) < maxPollMS {
		return int(c.Stages[0].Scale)
	}
	return maxPollMS
}

// Load reads YAML and overrides defaults; empty or missing path = defaults only
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("chain: parse %s: %w", path, err)
	}

	// sanity clamps
	if file.Root != "" {
		cfg.Root = file.Root
	}
	if file.Stages != nil {
		cfg.Stages = file.Stages
	}
	if file.PollMS > 0 {
		cfg.PollMS = file.PollMS
	}
	if cfg.PollMS > cfg.MaxStep() {
		cfg.PollMS = cfg.MaxStep()
	}

	return cfg, nil
}
