package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tipflow-ledger/internal/models"
	"tipflow-ledger/internal/validation"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel            string
	Chain               models.ChainName
	MaxRetries          int
	RetryDelay          time.Duration
	BalanceTTL          time.Duration
	ReceiptPollInterval time.Duration
	EventPollInterval   time.Duration
	SignerKey           string
	HealthAddr          string
	HTTP                HTTPConfig
	Kafka               KafkaConfig
	Database            DatabaseConfig
	Chains              map[models.ChainName]ChainConfig
}

// HTTPConfig holds HTTP client configuration
type HTTPConfig struct {
	Timeout time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	BrokerAddress string
	Topic         string
	BatchSize     int
	BatchTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ChainConfig holds configuration for each chain the ledger is deployed on
type ChainConfig struct {
	Name            models.ChainName
	ChainID         int64
	RpcEndpoints    []string
	ApiKey          string
	RateLimit       float64
	ExplorerBaseURL string
	FactoryAddress  common.Address
	NativeSymbol    string
	NativeDecimals  uint8
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env is fine, variables may be set externally
	_ = godotenv.Load()

	config := &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Chain:               models.ChainName(getEnv("CHAIN", models.BaseSepolia.String())),
		MaxRetries:          getEnvAsInt("MAX_RETRIES", 2),
		RetryDelay:          time.Duration(getEnvAsInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		BalanceTTL:          time.Duration(getEnvAsInt("BALANCE_TTL_MS", 5000)) * time.Millisecond,
		ReceiptPollInterval: time.Duration(getEnvAsInt("RECEIPT_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		EventPollInterval:   time.Duration(getEnvAsInt("EVENT_POLL_INTERVAL_MS", 4000)) * time.Millisecond,
		SignerKey:           getEnv("SIGNER_PRIVATE_KEY", ""),
		HealthAddr:          getEnv("HEALTH_ADDR", ":8080"),
		HTTP: HTTPConfig{
			Timeout: time.Duration(getEnvAsInt("HTTP_TIMEOUT", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			BrokerAddress: getEnv("KAFKA_BROKER_ADDRESS", "localhost:9092"),
			Topic:         getEnv("KAFKA_TOPIC", "tipflow-settlements"),
			BatchSize:     getEnvAsInt("KAFKA_BATCH_SIZE", 10),
			BatchTimeout:  time.Duration(getEnvAsInt("KAFKA_BATCH_TIMEOUT", 5)) * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tipflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Chains: make(map[models.ChainName]ChainConfig),
	}

	factories := map[models.ChainName]string{
		models.BaseSepolia: strings.TrimSpace(getEnv("BASE_SEPOLIA_FACTORY_ADDRESS", "")),
		models.LiskSepolia: strings.TrimSpace(getEnv("LISK_SEPOLIA_FACTORY_ADDRESS", "")),
	}

	config.Chains[models.BaseSepolia] = ChainConfig{
		Name:            models.BaseSepolia,
		ChainID:         int64(getEnvAsInt("BASE_SEPOLIA_CHAIN_ID", 84532)),
		RpcEndpoints:    getEnvAsList("BASE_SEPOLIA_RPC_ENDPOINTS", "https://sepolia.base.org,https://base-sepolia.g.alchemy.com/v2/demo"),
		ApiKey:          getEnv("BASE_SEPOLIA_API_KEY", ""),
		RateLimit:       getEnvAsFloat("BASE_SEPOLIA_RATE_LIMIT", 4),
		ExplorerBaseURL: "https://sepolia.basescan.org/tx/",
		FactoryAddress:  common.HexToAddress(factories[models.BaseSepolia]),
		NativeSymbol:    "ETH",
		NativeDecimals:  18,
	}

	config.Chains[models.LiskSepolia] = ChainConfig{
		Name:            models.LiskSepolia,
		ChainID:         int64(getEnvAsInt("LISK_SEPOLIA_CHAIN_ID", 4202)),
		RpcEndpoints:    getEnvAsList("LISK_SEPOLIA_RPC_ENDPOINTS", "https://rpc.sepolia-api.lisk.com"),
		ApiKey:          getEnv("LISK_SEPOLIA_API_KEY", ""),
		RateLimit:       getEnvAsFloat("LISK_SEPOLIA_RATE_LIMIT", 4),
		ExplorerBaseURL: "https://sepolia-blockscout.lisk.com/tx/",
		FactoryAddress:  common.HexToAddress(factories[models.LiskSepolia]),
		NativeSymbol:    "LSK",
		NativeDecimals:  18,
	}

	chain, ok := config.Chains[config.Chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", config.Chain)
	}
	for _, endpoint := range chain.RpcEndpoints {
		if err := validation.ValidateURL(endpoint); err != nil {
			return nil, fmt.Errorf("%s RPC endpoint %q: %w", chain.Name, endpoint, err)
		}
	}
	// a zero factory answers every lookup with no data, which reads as "not registered"
	if err := validation.ValidateAddress(factories[chain.Name]); err != nil {
		return nil, fmt.Errorf("%s factory address %q: %w", chain.Name, factories[chain.Name], err)
	}

	return config, nil
}

// ActiveChain returns the configuration of the selected chain
func (c *Config) ActiveChain() ChainConfig {
	return c.Chains[c.Chain]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
