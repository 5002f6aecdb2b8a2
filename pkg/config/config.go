package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/hamster/pkg/api"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/manager"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. HAMSTER_MANAGER_NODE_ID
const EnvPrefix = "HAMSTER"

// Config is the configuration of a manager daemon
type Config struct {
	Manager ManagerConfig `mapstructure:"manager"`
	API     APIConfig     `mapstructure:"api"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ManagerConfig configures the Raft node and the provider
type ManagerConfig struct {
	NodeID   string `mapstructure:"node_id" validate:"required"`
	BindAddr string `mapstructure:"bind_addr" validate:"required,hostname_port"`
	DataDir  string `mapstructure:"data_dir" validate:"required_unless=InMemory true"`
	InMemory bool   `mapstructure:"in_memory"`

	// TimeoutEpochs is the heartbeat timeout; zero selects the provider default
	TimeoutEpochs uint64 `mapstructure:"timeout_epochs"`

	// EpochInterval is the wall-clock length of one epoch
	EpochInterval time.Duration `mapstructure:"epoch_interval" validate:"gt=0"`

	// GenesisFile is a YAML file of resources loaded on first start
	GenesisFile string `mapstructure:"genesis_file"`
}

// APIConfig configures the gRPC and HTTP listeners
type APIConfig struct {
	Addr       string `mapstructure:"addr" validate:"required,hostname_port"`
	HTTPAddr   string `mapstructure:"http_addr" validate:"required,hostname_port"`
	UnixSocket string `mapstructure:"unix_socket"`

	// RateLimit is the requests per second allowed per account; zero disables it
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`
}

// KafkaConfig configures forwarding of events to a Kafka topic
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"node-id":        "manager.node_id",
	"bind-addr":      "manager.bind_addr",
	"data-dir":       "manager.data_dir",
	"in-memory":      "manager.in_memory",
	"timeout-epochs": "manager.timeout_epochs",
	"epoch-interval": "manager.epoch_interval",
	"genesis":        "manager.genesis_file",
	"api-addr":       "api.addr",
	"http-addr":      "api.http_addr",
	"unix-socket":    "api.unix_socket",
	"rate-limit":     "api.rate_limit",
	"burst":          "api.burst",
	"kafka-brokers":  "kafka.brokers",
	"kafka-topic":    "kafka.topic",
	"log-level":      "logging.level",
	"log-json":       "logging.json",
}

var validate = validator.New()

// Load reads configuration from defaults, an optional YAML file, HAMSTER_
// environment variables and the flags of cmd, later sources overriding
// earlier ones. Only flags set on the command line override the others.
func Load(cfgFile string, cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	// listing brokers turns the sink on
	if len(cfg.Kafka.Brokers) > 0 {
		cfg.Kafka.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manager.node_id", "manager-1")
	v.SetDefault("manager.bind_addr", "127.0.0.1:7946")
	v.SetDefault("manager.data_dir", "./hamster-data")
	v.SetDefault("manager.in_memory", false)
	v.SetDefault("manager.timeout_epochs", provider.DefaultTimeoutEpochs)
	v.SetDefault("manager.epoch_interval", "6s")
	v.SetDefault("manager.genesis_file", "")

	v.SetDefault("api.addr", "127.0.0.1:7070")
	v.SetDefault("api.http_addr", "127.0.0.1:9090")
	v.SetDefault("api.unix_socket", "")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.burst", 20)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "hamster.events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// LogConfig returns the logger configuration
func (c *Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Logging.Level),
		JSONOutput: c.Logging.JSON,
		Output:     os.Stderr,
	}
}

// ManagerConfig returns the manager configuration, loading the genesis file
// when one is set
func (c *Config) ManagerConfig() (*manager.Config, error) {
	cfg := &manager.Config{
		NodeID:        c.Manager.NodeID,
		BindAddr:      c.Manager.BindAddr,
		DataDir:       c.Manager.DataDir,
		InMemory:      c.Manager.InMemory,
		TimeoutEpochs: c.Manager.TimeoutEpochs,
	}
	if c.Manager.GenesisFile != "" {
		genesis, err := LoadGenesis(c.Manager.GenesisFile)
		if err != nil {
			return nil, err
		}
		cfg.Genesis = genesis
	}
	return cfg, nil
}

// RateLimit returns the API rate limit
func (c *Config) RateLimit() api.RateLimit {
	return api.RateLimit{
		RequestsPerSecond: c.API.RateLimit,
		Burst:             c.API.Burst,
	}
}

// LoadGenesis reads a genesis file:
//
//	resource_index: 10
//	resources:
//	  - index: 0
//	    owner: alice
//	    peer_id: 12D3KooW...
//	    public_ip: 203.0.113.7
//	    cpu: 4
//	    memory: 8
func LoadGenesis(path string) (*provider.Genesis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genesis file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var genesis provider.Genesis
	if err := dec.Decode(&genesis); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}

	seen := make(map[uint64]bool, len(genesis.Resources))
	for _, r := range genesis.Resources {
		if r.Owner == "" {
			return nil, fmt.Errorf("genesis resource %d has no owner", r.Index)
		}
		if seen[r.Index] {
			return nil, fmt.Errorf("duplicate genesis resource index %d", r.Index)
		}
		seen[r.Index] = true
	}
	return &genesis, nil
}
