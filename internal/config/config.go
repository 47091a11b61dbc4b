package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the stakeflow binaries
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Network  NetworkConfig
	Signer   SignerConfig
	Sink     SinkConfig
	Verifier VerifierConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int
	SeedProtocolOptions bool
	AllowedOrigins      []string // CORS; empty allows any origin
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SignerConfig holds the single signer used by the stake CLI
type SignerConfig struct {
	PrivateKey string // hex, optional 0x prefix
}

// SinkConfig holds the transaction sink client configuration
type SinkConfig struct {
	URL     string
	Timeout time.Duration
}

// VerifierConfig holds configuration of the record verification workers
type VerifierConfig struct {
	PollInterval time.Duration
}

// Defaults applied when the environment does not say otherwise
const (
	DefaultServerPort         = 3001
	DefaultSinkURL            = "http://localhost:3001"
	DefaultSinkTimeout        = 10 * time.Second
	DefaultVerifyPollInterval = 30 * time.Second
)

// LoadConfig loads configuration from a .env file (if present) and environment variables
func LoadConfig() (*Config, error) {
	// A missing .env is not an error
	_ = godotenv.Load()

	networkName := getEnv("NETWORK", DefaultNetwork)
	networks := DefaultNetworks()

	if path := getEnv("NETWORK_TABLE_FILE", ""); path != "" {
		loaded, err := LoadNetworkTable(path)
		if err != nil {
			return nil, err
		}
		for name, n := range loaded {
			networks[name] = n
		}
	}

	network, ok := networks[networkName]
	if !ok {
		return nil, fmt.Errorf("network %q is not configured", networkName)
	}
	applyNetworkEnv(&network)

	cfg := &Config{
		Server: ServerConfig{
			Port:                getEnvInt("SERVER_PORT", DefaultServerPort),
			SeedProtocolOptions: getEnvBool("SEED_PROTOCOL_OPTIONS", false),
			AllowedOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stakeflow"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Network: network,
		Signer: SignerConfig{
			PrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
		},
		Sink: SinkConfig{
			URL:     strings.TrimRight(getEnv("SINK_URL", DefaultSinkURL), "/"),
			Timeout: getEnvDuration("SINK_TIMEOUT", DefaultSinkTimeout),
		},
		Verifier: VerifierConfig{
			PollInterval: getEnvDuration("VERIFY_POLL_INTERVAL", DefaultVerifyPollInterval),
		},
	}

	return cfg, nil
}

// applyNetworkEnv overrides network table entries with environment-provided values.
// Variables are prefixed with the upper-cased network name, e.g. SEPOLIA_WETH.
func applyNetworkEnv(n *NetworkConfig) {
	prefix := strings.ToUpper(n.Name) + "_"

	n.RPCEndpoint = getEnv("RPC_ENDPOINT", n.RPCEndpoint)
	n.RouterAddress = getEnv(prefix+"STAKING_ROUTER", n.RouterAddress)

	for symbol, tok := range n.Tokens {
		tok.Address = getEnv(prefix+tokenEnvName(symbol), tok.Address)
		n.Tokens[symbol] = tok
	}
}

// ValidateServer checks the configuration needed by the sink service
func (c *Config) ValidateServer() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	return c.Network.Validate()
}

// ValidateClient checks the configuration needed to submit stakes
func (c *Config) ValidateClient() error {
	if c.Signer.PrivateKey == "" {
		return fmt.Errorf("signer private key is required")
	}

	if c.Network.RPCEndpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}

	if c.Sink.Timeout <= 0 {
		return fmt.Errorf("invalid sink timeout: %s", c.Sink.Timeout)
	}

	return c.Network.Validate()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
