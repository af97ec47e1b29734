package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers.
const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DBDriverNone     = "none"
)

type Config struct {
	// MQTT
	MQTTBroker        string
	MQTTClientID      string
	MQTTUsername      string
	MQTTPassword      string
	MQTTKeepAlive     time.Duration
	ReconnectInterval time.Duration
	OrderQoS          int

	// VDA5050
	InterfaceName   string
	MajorVersion    string
	ProtocolVersion string
	Manufacturer    string
	SerialNumber    string
	ProfilePath     string

	// Adapter and simulator
	MaxDistanceInAdvance int64
	StateRequestInterval time.Duration
	StatePublishInterval time.Duration
	RequestFactsheet     bool

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPath     string

	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	StateTTL      time.Duration

	// Application
	HTTPAddr string
	LogLevel string
}

// ValidationError names the offending setting.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Message)
}

// Load reads an optional .env file and the environment, then validates.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		MQTTBroker:        getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:      getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername:      getEnv("MQTT_USERNAME", ""),
		MQTTPassword:      getEnv("MQTT_PASSWORD", ""),
		MQTTKeepAlive:     time.Duration(getEnvInt("MQTT_KEEPALIVE_SECONDS", 60)) * time.Second,
		ReconnectInterval: time.Duration(getEnvInt("MQTT_RECONNECT_INTERVAL_MS", 5000)) * time.Millisecond,
		OrderQoS:          getEnvInt("MQTT_QOS_ORDER", 1),

		InterfaceName:   getEnv("VDA_INTERFACE_NAME", "uagv"),
		MajorVersion:    getEnv("VDA_VERSION", "v2"),
		ProtocolVersion: getEnv("VDA_PROTOCOL_VERSION", "2.0.0"),
		Manufacturer:    getEnv("VEHICLE_MANUFACTURER", ""),
		SerialNumber:    getEnv("VEHICLE_SERIAL_NUMBER", ""),
		ProfilePath:     getEnv("VEHICLE_PROFILE", ""),

		MaxDistanceInAdvance: int64(getEnvInt("MAX_DISTANCE_IN_ADVANCE", 20000)),
		StateRequestInterval: time.Duration(getEnvInt("STATE_REQUEST_INTERVAL_MS", 0)) * time.Millisecond,
		StatePublishInterval: time.Duration(getEnvInt("STATE_PUBLISH_INTERVAL_MS", 1000)) * time.Millisecond,
		RequestFactsheet:     getEnvBool("REQUEST_FACTSHEET", true),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", DBDriverNone)),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "vda5050_bridge"),
		DBPath:     getEnv("DB_PATH", "vda5050_bridge.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		StateTTL:      time.Duration(getEnvInt("REDIS_STATE_TTL_SECONDS", 300)) * time.Second,

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = cfg.Manufacturer + "_" + cfg.SerialNumber
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the bridge cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MQTTBroker == "":
		return &ValidationError{Key: "MQTT_BROKER", Message: "is required"}
	case c.Manufacturer == "":
		return &ValidationError{Key: "VEHICLE_MANUFACTURER", Message: "is required"}
	case c.SerialNumber == "":
		return &ValidationError{Key: "VEHICLE_SERIAL_NUMBER", Message: "is required"}
	case c.ReconnectInterval <= 0:
		return &ValidationError{Key: "MQTT_RECONNECT_INTERVAL_MS", Message: "must be greater than 0"}
	case c.MaxDistanceInAdvance < 1:
		return &ValidationError{Key: "MAX_DISTANCE_IN_ADVANCE", Message: "must be at least 1"}
	case c.OrderQoS < 1 || c.OrderQoS > 2:
		return &ValidationError{Key: "MQTT_QOS_ORDER", Message: "must be 1 or 2"}
	case c.StateRequestInterval < 0:
		return &ValidationError{Key: "STATE_REQUEST_INTERVAL_MS", Message: "must not be negative"}
	}
	switch c.DBDriver {
	case DBDriverPostgres, DBDriverSQLite, DBDriverNone:
	default:
		return &ValidationError{Key: "DB_DRIVER", Message: fmt.Sprintf("unknown driver %q", c.DBDriver)}
	}
	return nil
}

// PostgresDSN returns the connection string for the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// RedisAddr returns host:port of the redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

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
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
