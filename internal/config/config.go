// Package config loads availctl settings from AVAIL_* environment
// variables and an optional YAML file of extra networks.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gabapcia/availkit/internal/connection"
	"github.com/gabapcia/availkit/internal/pkg/validator"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "avail"

var ErrNetworksFile = errors.New("invalid networks file")

type Redis struct {
	Addr     string `envconfig:"ADDR" validate:"omitempty,hostname_port" name:"AVAIL_REDIS_ADDR"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"gte=0" name:"AVAIL_REDIS_DB"`
}

// Enabled reports whether transfers should lock nonces in Redis instead of
// in process.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Config struct {
	Network         string `envconfig:"NETWORK" default:"testnet" validate:"required" name:"AVAIL_NETWORK"`
	EndpointProfile string `envconfig:"ENDPOINT_PROFILE" default:"static" validate:"oneof=static env" name:"AVAIL_ENDPOINT_PROFILE"`
	TestnetWS       string `envconfig:"TESTNET_WS" validate:"omitempty,url" name:"AVAIL_TESTNET_WS"`
	NetworksFile    string `envconfig:"NETWORKS_FILE" validate:"omitempty,file" name:"AVAIL_NETWORKS_FILE"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error" name:"AVAIL_LOG_LEVEL"`

	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s" validate:"gt=0" name:"AVAIL_DIAL_TIMEOUT"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0" name:"AVAIL_REQUEST_TIMEOUT"`
	RPCRateLimit    float64       `envconfig:"RPC_RATE_LIMIT" default:"0" validate:"gte=0" name:"AVAIL_RPC_RATE_LIMIT"`
	RPCRateBurst    int           `envconfig:"RPC_RATE_BURST" default:"1" validate:"gte=1" name:"AVAIL_RPC_RATE_BURST"`
	RPCReadLimit    int64         `envconfig:"RPC_READ_LIMIT" default:"67108864" validate:"gt=0" name:"AVAIL_RPC_READ_LIMIT"`
	ConnectAttempts uint          `envconfig:"CONNECT_ATTEMPTS" default:"3" validate:"gte=1" name:"AVAIL_CONNECT_ATTEMPTS"`
	SS58Format      uint16        `envconfig:"SS58_FORMAT" default:"42" validate:"lte=16383" name:"AVAIL_SS58_FORMAT"`

	// RPCHeaders are sent with every request, as "Name:value,Other:value".
	RPCHeaders map[string]string `envconfig:"RPC_HEADERS"`

	Redis   Redis         `envconfig:"REDIS"`
	LockTTL time.Duration `envconfig:"LOCK_TTL" default:"30s" validate:"gt=0" name:"AVAIL_LOCK_TTL"`

	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"false"`
	ServiceName      string `envconfig:"SERVICE_NAME" default:"availctl" validate:"required" name:"AVAIL_SERVICE_NAME"`
}

// Load reads and validates the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, err
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RPCHeader returns RPCHeaders in canonical form.
func (c Config) RPCHeader() http.Header {
	header := make(http.Header, len(c.RPCHeaders))
	for name, value := range c.RPCHeaders {
		header.Set(name, value)
	}
	return header
}

// Networks returns the endpoint mapping of the configured profile with the
// networks file, if any, merged over it.
func (c Config) Networks() (connection.Networks, error) {
	networks, err := connection.NetworksForProfile(c.EndpointProfile, c.TestnetWS)
	if err != nil {
		return nil, err
	}

	if c.NetworksFile == "" {
		return networks, nil
	}

	extra, err := LoadNetworksFile(c.NetworksFile)
	if err != nil {
		return nil, err
	}
	return networks.Merge(extra), nil
}

type networksFile struct {
	Networks map[string]string `yaml:"networks"`
}

// LoadNetworksFile reads a YAML document of the form
//
//	networks:
//	  turing: wss://turing-rpc.avail.so/ws
func LoadNetworksFile(path string) (connection.Networks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworksFile, err)
	}

	var file networksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetworksFile, path, err)
	}

	networks := make(connection.Networks, len(file.Networks))
	for name, endpoint := range file.Networks {
		if err := validator.ValidateVar("networks."+name, endpoint, "required,url"); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNetworksFile, path, err)
		}
		networks[name] = endpoint
	}
	return networks, nil
}
