package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"arksync/backend/internal/fleet"
	"arksync/backend/pkg/dialect"
)

type EnvKey string

const (
	// EnvConfigFile points to an optional YAML file keyed by the same names
	// as the environment. Values there are defaults, the environment wins.
	EnvConfigFile EnvKey = "CONFIG_FILE"

	EnvPort      EnvKey = "PORT"
	EnvDataDir   EnvKey = "DATA_DIR"
	EnvLogLevel  EnvKey = "LOG_LEVEL"
	EnvLogToFile EnvKey = "LOG_TO_FILE"

	EnvDBDialect EnvKey = "DB_DIALECT"
	EnvDBHost    EnvKey = "DB_HOST"
	EnvDBPort    EnvKey = "DB_PORT"
	EnvDBName    EnvKey = "DB_NAME"
	EnvDBUser    EnvKey = "DB_USER"
	EnvDBPass    EnvKey = "DB_PASSWORD"
	EnvDBSSLMode EnvKey = "DB_SSLMODE"

	EnvMQTTBrokerPort     EnvKey = "MQTT_SERVER_PORT"
	EnvMQTTEmbeddedBroker EnvKey = "MQTT_EMBEDDED_BROKER"

	EnvMQTTBroker   EnvKey = "MQTT_BROKER"
	EnvMQTTClientID EnvKey = "MQTT_CLIENT_ID"
	EnvMQTTUsername EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword EnvKey = "MQTT_PASSWORD"

	EnvRedisAddr     EnvKey = "REDIS_ADDR"
	EnvRedisPassword EnvKey = "REDIS_PASSWORD"
	EnvRedisDB       EnvKey = "REDIS_DB"
	EnvRedisChannel  EnvKey = "REDIS_CHANNEL"

	EnvDetectInterval EnvKey = "DETECT_INTERVAL"
	EnvHealthInterval EnvKey = "HEALTH_INTERVAL"
	EnvGraceWindow    EnvKey = "GRACE_WINDOW"
	EnvReadInterval   EnvKey = "READ_INTERVAL"
)

type Config struct {
	Port      int
	DataDir   string
	Database  string
	Dialect   dialect.Dialect
	LogLevel  slog.Leveler
	LogOutput io.Writer

	// MQTT Server configuration
	MQTTBrokerPort     int
	MQTTEmbeddedBroker bool

	// MQTT configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Redis is disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	DetectInterval time.Duration
	HealthInterval time.Duration
	GraceWindow    time.Duration
	ReadInterval   time.Duration
}

// env resolves keys from the process environment, then from the config file.
type env struct {
	file map[string]string
}

func New() (*Config, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}

	dataDir := e.getStringEnv(EnvDataDir, "data")

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var logOutput io.Writer = os.Stdout

	if e.getBoolEnv(EnvLogToFile, false) {
		f, err := os.OpenFile(filepath.Join(dataDir, "app.log"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logOutput = f
	}

	dbDialect, err := dialect.Parse(e.getStringEnv(EnvDBDialect, string(dialect.SQLite)))
	if err != nil {
		return nil, fmt.Errorf("invalid database dialect: %w", err)
	}

	var dbConnString string

	switch dbDialect {
	case dialect.SQLite:
		dbConnString = filepath.Join(dataDir, "database.sqlite")
	case dialect.PostgreSQL:
		host := e.getStringEnv(EnvDBHost, "localhost")
		port := e.getIntEnv(EnvDBPort, 5432)
		dbName := e.getStringEnv(EnvDBName, "arksync")
		user := e.getStringEnv(EnvDBUser, "arksync")
		password := e.getStringEnv(EnvDBPass, "")
		sslmode := e.getStringEnv(EnvDBSSLMode, "disable")

		dbConnString = fmt.Sprintf(
			"postgresql://%s:%s@%s/%s?sslmode=%s",
			url.QueryEscape(user),
			url.QueryEscape(password),
			net.JoinHostPort(host, strconv.Itoa(port)),
			dbName, sslmode,
		)
	}

	return &Config{
		Port:               e.getIntEnv(EnvPort, 8080),
		DataDir:            dataDir,
		Database:           dbConnString,
		Dialect:            dbDialect,
		LogLevel:           e.getLogLevelEnv(EnvLogLevel, slog.LevelInfo),
		LogOutput:          logOutput,
		MQTTBrokerPort:     e.getIntEnv(EnvMQTTBrokerPort, 1883),
		MQTTEmbeddedBroker: e.getBoolEnv(EnvMQTTEmbeddedBroker, true),
		MQTTBroker:         e.getStringEnv(EnvMQTTBroker, "tcp://127.0.0.1:1883"),
		MQTTClientID:       e.getStringEnv(EnvMQTTClientID, "arksync-"+uuid.NewString()[:8]),
		MQTTUsername:       e.getStringEnv(EnvMQTTUsername, ""),
		MQTTPassword:       e.getStringEnv(EnvMQTTPassword, ""),
		RedisAddr:          e.getStringEnv(EnvRedisAddr, ""),
		RedisPassword:      e.getStringEnv(EnvRedisPassword, ""),
		RedisDB:            e.getIntEnv(EnvRedisDB, 0),
		RedisChannel:       e.getStringEnv(EnvRedisChannel, "arksync:readings"),
		DetectInterval:     e.getDurationEnv(EnvDetectInterval, fleet.DefaultDetectInterval),
		HealthInterval:     e.getDurationEnv(EnvHealthInterval, fleet.DefaultHealthInterval),
		GraceWindow:        e.getDurationEnv(EnvGraceWindow, fleet.DefaultGraceWindow),
		ReadInterval:       e.getDurationEnv(EnvReadInterval, fleet.DefaultReadInterval),
	}, nil
}

func (c *Config) Close() error {
	if f, ok := c.LogOutput.(*os.File); ok {
		if f != os.Stdout && f != os.Stderr {
			return f.Close()
		}
	}

	return nil
}

func loadEnv() (*env, error) {
	e := &env{file: map[string]string{}}

	path, ok := os.LookupEnv(string(EnvConfigFile))
	if !ok || path == "" {
		return e, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	file, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	e.file = file

	return e, nil
}

// parseFile reads a flat YAML mapping. Scalars of any type are kept as text
// and parsed by the typed getters.
func parseFile(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	file := make(map[string]string, len(raw))

	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("key %s: nested values are not supported", k)
		case nil:
			file[strings.ToUpper(k)] = ""
		default:
			file[strings.ToUpper(k)] = fmt.Sprint(v)
		}
	}

	return file, nil
}

func (e *env) lookup(key EnvKey) (string, bool) {
	if val, exists := os.LookupEnv(string(key)); exists {
		return val, true
	}

	val, exists := e.file[string(key)]

	return val, exists
}

func (e *env) getStringEnv(key EnvKey, defaultVal string) string {
	val, exists := e.lookup(key)
	if !exists {
		return defaultVal
	}

	return val
}

func (e *env) getBoolEnv(key EnvKey, defaultVal bool) bool {
	val, exists := e.lookup(key)
	if !exists {
		return defaultVal
	}

	val = strings.ToLower(val)
	switch val {
	case "true", "1":
		return true
	default:
		return false
	}
}

func (e *env) getIntEnv(key EnvKey, defaultVal int) int {
	val, exists := e.lookup(key)
	if !exists {
		return defaultVal
	}

	if intVal, err := strconv.Atoi(val); err == nil {
		return intVal
	}

	return defaultVal
}

// getDurationEnv accepts Go durations ("5s", "2m"). Non-positive values fall back to the default.
func (e *env) getDurationEnv(key EnvKey, defaultVal time.Duration) time.Duration {
	val, exists := e.lookup(key)
	if !exists {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

func (e *env) getLogLevelEnv(key EnvKey, defaultVal slog.Leveler) slog.Leveler {
	val, exists := e.lookup(key)
	if !exists {
		return defaultVal
	}

	switch strings.ToUpper(val) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}

	return defaultVal
}
