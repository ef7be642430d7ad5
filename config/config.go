// Package config loads the daemon configuration from YAML with environment
// overrides, and validates it before anything is dialled.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vitwit/wrldpay/types"
	"github.com/vitwit/wrldpay/utils"
)

// EnvPrefix is prepended to every environment override, e.g.
// WRLDPAY_NETWORKS_POLYGON_RPC_URL.
const EnvPrefix = "WRLDPAY_"

const (
	StrategyFailStop    = "fail-stop"
	StrategyExponential = "exponential"
)

// Config captures the runtime configuration for wrldpayd.
type Config struct {
	LogLevel            string          `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFile             string          `yaml:"log_file" env:"LOG_FILE"`
	Debug               bool            `yaml:"debug" env:"DEBUG"`
	Listen              string          `yaml:"listen" env:"LISTEN" validate:"required"`
	ServerWalletAddress string          `yaml:"server_wallet_address" env:"SERVER_WALLET_ADDRESS"`
	Networks            NetworksConfig  `yaml:"networks" envPrefix:"NETWORKS_"`
	Reconnect           ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Listener            ListenerConfig  `yaml:"listener" envPrefix:"LISTENER_"`
}

type NetworksConfig struct {
	Polygon  NetworkConfig `yaml:"polygon" envPrefix:"POLYGON_"`
	Ethereum NetworkConfig `yaml:"ethereum" envPrefix:"ETHEREUM_"`
}

// NetworkConfig describes one chain the WRLD contract is deployed on.
type NetworkConfig struct {
	RPCURL         string        `yaml:"rpc_url" env:"RPC_URL" validate:"required,url"`
	ChainID        int64         `yaml:"chain_id" env:"CHAIN_ID" validate:"gt=0"`
	WRLDContract   string        `yaml:"wrld_contract" env:"WRLD_CONTRACT" validate:"required"`
	ConfirmChainID bool          `yaml:"confirm_chain_id" env:"CONFIRM_CHAIN_ID"`
	DialTimeout    time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// ReconnectConfig selects what a listener does after its feed fails.
type ReconnectConfig struct {
	Strategy        string        `yaml:"strategy" env:"STRATEGY" validate:"oneof=fail-stop exponential"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL"`
	// MaxElapsed of zero retries forever.
	MaxElapsed time.Duration `yaml:"max_elapsed" env:"MAX_ELAPSED"`
}

type ListenerConfig struct {
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE" validate:"gt=0"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and defaults, then validates.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, configErr("open config", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, configErr("decode config", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, configErr("parse env", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8088"
	}
	cfg.Networks.Polygon.applyDefaults(types.NetworkPolygon)
	cfg.Networks.Ethereum.applyDefaults(types.NetworkEthereum)

	cfg.Reconnect.Strategy = strings.ToLower(strings.TrimSpace(cfg.Reconnect.Strategy))
	if cfg.Reconnect.Strategy == "" {
		cfg.Reconnect.Strategy = StrategyFailStop
	}
	if cfg.Reconnect.InitialInterval <= 0 {
		cfg.Reconnect.InitialInterval = time.Second
	}
	if cfg.Reconnect.MaxInterval <= 0 {
		cfg.Reconnect.MaxInterval = time.Minute
	}
	if cfg.Listener.BufferSize == 0 {
		cfg.Listener.BufferSize = 128
	}
}

func (n *NetworkConfig) applyDefaults(network types.Network) {
	n.RPCURL = strings.TrimSpace(n.RPCURL)
	n.WRLDContract = strings.TrimSpace(n.WRLDContract)
	if n.ChainID == 0 {
		n.ChainID = network.DefaultChainID()
	}
	if n.DialTimeout <= 0 {
		n.DialTimeout = 15 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects configurations the engine cannot start with: a missing RPC
// endpoint or a missing, malformed or badly checksummed contract address on
// either network.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return configErr(fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()), err)
		}
		return configErr("validate config", err)
	}
	for _, n := range types.Networks() {
		nc, _ := cfg.Network(n)
		if _, err := utils.ValidateAddress(nc.WRLDContract); err != nil {
			return configErr(fmt.Sprintf("networks.%s.wrld_contract", n), err)
		}
	}
	if cfg.ServerWalletAddress != "" {
		if _, err := utils.ValidateAddress(cfg.ServerWalletAddress); err != nil {
			return configErr("server_wallet_address", err)
		}
	}
	if cfg.Reconnect.MaxInterval < cfg.Reconnect.InitialInterval {
		return configErr("reconnect.max_interval must not be below initial_interval", nil)
	}
	return nil
}

func configErr(msg string, err error) error {
	return &types.WrldError{Code: types.ErrConfig, Message: msg, Err: err}
}

// Network returns the settings of n.
func (c Config) Network(n types.Network) (NetworkConfig, bool) {
	switch n {
	case types.NetworkPolygon:
		return c.Networks.Polygon, true
	case types.NetworkEthereum:
		return c.Networks.Ethereum, true
	default:
		return NetworkConfig{}, false
	}
}

// ClientConfig converts the settings of n for clients.NewEVMClient.
func (c Config) ClientConfig(n types.Network) (types.ClientConfig, error) {
	nc, ok := c.Network(n)
	if !ok {
		return types.ClientConfig{}, &types.WrldError{Code: types.ErrUnsupportedNetwork, Message: fmt.Sprintf("unsupported network: %q", n)}
	}
	contract, err := utils.ValidateAddress(nc.WRLDContract)
	if err != nil {
		return types.ClientConfig{}, configErr(fmt.Sprintf("networks.%s.wrld_contract", n), err)
	}
	return types.ClientConfig{
		Network:       n,
		RPCUrl:        nc.RPCURL,
		ChainID:       nc.ChainID,
		Contract:      contract,
		VerifyChainID: nc.ConfirmChainID,
		DialTimeout:   nc.DialTimeout,
	}, nil
}

// BackOff returns a factory for the configured reconnect strategy.
func (r ReconnectConfig) BackOff() func() backoff.BackOff {
	if r.Strategy != StrategyExponential {
		return func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.InitialInterval
		b.MaxInterval = r.MaxInterval
		b.MaxElapsedTime = r.MaxElapsed
		return b
	}
}
