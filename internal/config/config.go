package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ModeBenchmark   = "benchmark"
	ModeLongRunning = "long_running"

	PacingInterval = "interval"
	PacingLimiter  = "limiter"

	BackendMongo    = "mongo"
	BackendKafka    = "kafka"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	// weightTolerance bounds how far operation weights may drift from 1.0.
	weightTolerance = 1e-6
)

type WindowConfig struct {
	Capacity     int     `yaml:"capacity" json:"capacity"`
	SkewExponent float64 `yaml:"skew_exponent" json:"skew_exponent"`
}

type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxFailures int           `yaml:"max_failures" json:"max_failures"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Successes   int           `yaml:"successes" json:"successes"`
}

type BackendConfig struct {
	Kind            string        `yaml:"kind" json:"kind"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts" json:"connect_attempts"`
	OpTimeout       time.Duration `yaml:"op_timeout" json:"op_timeout"`
	Mongo           struct {
		URI string `yaml:"uri" json:"uri"`
	} `yaml:"mongo" json:"mongo"`
	Kafka struct {
		Brokers  []string      `yaml:"brokers" json:"brokers"`
		ClientID string        `yaml:"client_id" json:"client_id"`
		Linger   time.Duration `yaml:"linger" json:"linger"`
	} `yaml:"kafka" json:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr" json:"addr"`
		Password string `yaml:"password" json:"password"`
		DB       int    `yaml:"db" json:"db"`
	} `yaml:"redis" json:"redis"`
	Postgres struct {
		DSN string `yaml:"dsn" json:"dsn"`
	} `yaml:"postgres" json:"postgres"`
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// StatusTLSConfig serves the status API over HTTPS. A self-signed pair is
// generated at CertFile/KeyFile when either file is missing.
type StatusTLSConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	CertFile string   `yaml:"cert_file" json:"cert_file"`
	KeyFile  string   `yaml:"key_file" json:"key_file"`
	Hosts    []string `yaml:"hosts" json:"hosts"`
}

type OTLPConfig struct {
	Endpoint    string            `yaml:"endpoint" json:"endpoint"`
	Insecure    bool              `yaml:"insecure" json:"insecure"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	Compression string            `yaml:"compression" json:"compression"`
	Headers     map[string]string `yaml:"headers" json:"headers"`
	SampleRatio float64           `yaml:"sample_ratio" json:"sample_ratio"`
}

type TelemetryConfig struct {
	OTLP OTLPConfig `yaml:"otlp" json:"otlp"`
}

type VaultTLSConfig struct {
	CAFile   string `yaml:"ca_file" json:"ca_file"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

type VaultConfig struct {
	Enabled        bool           `yaml:"enabled" json:"enabled"`
	Address        string         `yaml:"address" json:"address"`
	Token          string         `yaml:"token" json:"token"`
	TokenFile      string         `yaml:"token_file" json:"token_file"`
	Namespace      string         `yaml:"namespace" json:"namespace"`
	MountPath      string         `yaml:"mount_path" json:"mount_path"`
	KVVersion      int            `yaml:"kv_version" json:"kv_version"`
	CacheTTL       time.Duration  `yaml:"cache_ttl" json:"cache_ttl"`
	RequestTimeout time.Duration  `yaml:"request_timeout" json:"request_timeout"`
	TLSSkipVerify  bool           `yaml:"tls_skip_verify" json:"tls_skip_verify"`
	TLS            VaultTLSConfig `yaml:"tls" json:"tls"`
}

type Config struct {
	Mode            string              `yaml:"mode" json:"mode"`
	DurationSeconds int                 `yaml:"duration_seconds" json:"duration_seconds"`
	RPS             float64             `yaml:"rps" json:"rps"`
	DocumentSize    int                 `yaml:"document_size" json:"document_size"`
	ReportInterval  time.Duration       `yaml:"report_interval" json:"report_interval"`
	Seed            int64               `yaml:"seed" json:"seed"`
	Pacing          string              `yaml:"pacing" json:"pacing"`
	Operations      map[string]float64  `yaml:"operations" json:"operations"`
	Window          WindowConfig        `yaml:"window" json:"window"`
	DBCollectionMap map[string][]string `yaml:"db_collection_map" json:"db_collection_map"`
	Topics          []string            `yaml:"topics" json:"topics"`
	Backend         BackendConfig       `yaml:"backend" json:"backend"`
	Logging         struct {
		Level  string `yaml:"level" json:"level"`   // debug|info|warn|error
		Format string `yaml:"format" json:"format"` // text|json
	} `yaml:"logging" json:"logging"`
	Status struct {
		Enabled bool            `yaml:"enabled" json:"enabled"`
		Listen  string          `yaml:"listen" json:"listen"`
		TLS     StatusTLSConfig `yaml:"tls" json:"tls"`
	} `yaml:"status" json:"status"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Secrets   struct {
		Vault VaultConfig `yaml:"vault" json:"vault"`
	} `yaml:"secrets" json:"secrets"`
}

// defaultTopics covers one topic per event schema, plus an audit stream.
var defaultTopics = []string{"events_user.raw", "events_user.audit", "notifications_user.raw", "orders_user.raw"}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	// Environment variable support. Example: WORKLOADGEN_RPS=50
	v.SetEnvPrefix("WORKLOADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", ModeBenchmark)
	v.SetDefault("duration_seconds", 60)
	v.SetDefault("rps", 10)
	v.SetDefault("document_size", 1024)
	v.SetDefault("report_interval", "10s")
	v.SetDefault("seed", 0)
	v.SetDefault("pacing", PacingInterval)
	v.SetDefault("operations", map[string]any{"insert": 1.0})
	v.SetDefault("window.capacity", 10000)
	v.SetDefault("window.skew_exponent", 2.0)
	v.SetDefault("db_collection_map", map[string]any{})
	v.SetDefault("topics", defaultTopics)

	v.SetDefault("backend.kind", BackendMongo)
	v.SetDefault("backend.connect_timeout", "10s")
	v.SetDefault("backend.connect_attempts", 5)
	v.SetDefault("backend.op_timeout", "5s")
	v.SetDefault("backend.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("backend.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("backend.kafka.client_id", "event-generator")
	v.SetDefault("backend.kafka.linger", "5ms")
	v.SetDefault("backend.redis.addr", "localhost:6379")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.postgres.dsn", "postgres://localhost:5432/postgres?sslmode=disable")
	v.SetDefault("backend.circuit_breaker.enabled", false)
	v.SetDefault("backend.circuit_breaker.max_failures", 5)
	v.SetDefault("backend.circuit_breaker.timeout", "10s")
	v.SetDefault("backend.circuit_breaker.successes", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen", "127.0.0.1:9464")
	v.SetDefault("status.tls.enabled", false)
	v.SetDefault("status.tls.cert_file", "./certs/workloadgen.crt")
	v.SetDefault("status.tls.key_file", "./certs/workloadgen.key")
	v.SetDefault("status.tls.hosts", []string{"localhost", "127.0.0.1"})

	v.SetDefault("telemetry.otlp.endpoint", "")
	v.SetDefault("telemetry.otlp.insecure", true)
	v.SetDefault("telemetry.otlp.timeout", "10s")
	v.SetDefault("telemetry.otlp.sample_ratio", 1.0)

	v.SetDefault("secrets.vault.enabled", false)
	v.SetDefault("secrets.vault.mount_path", "secret")
	v.SetDefault("secrets.vault.kv_version", 2)
	v.SetDefault("secrets.vault.cache_ttl", "5m")
	v.SetDefault("secrets.vault.request_timeout", "10s")
	return v
}

// Load reads configuration from path, or from ./config.yaml when path is
// empty. A missing default file is not an error; defaults and WORKLOADGEN_*
// environment variables still apply.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	// mongo_uri is the flat key older loader config files use.
	if v.IsSet("mongo_uri") && !v.InConfig("backend.mongo.uri") {
		v.Set("backend.mongo.uri", v.GetString("mongo_uri"))
	}
	cfg := fromViper(v)
	if file := v.ConfigFileUsed(); file != "" && os.Getenv("WORKLOADGEN_DB_COLLECTION_MAP") == "" {
		m, err := readCollectionMap(file)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if m != nil {
			cfg.DBCollectionMap = m
		}
	}
	return cfg, nil
}

// readCollectionMap decodes db_collection_map straight from the file. Viper
// lowercases map keys, and database names are case-sensitive.
func readCollectionMap(file string) (map[string][]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var doc struct {
		DBCollectionMap map[string]any `yaml:"db_collection_map"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.DBCollectionMap == nil {
		return nil, nil
	}
	return parseCollectionMap(doc.DBCollectionMap), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}
	cfg.Mode = strings.ToLower(strings.TrimSpace(v.GetString("mode")))
	cfg.DurationSeconds = v.GetInt("duration_seconds")
	cfg.RPS = v.GetFloat64("rps")
	cfg.DocumentSize = v.GetInt("document_size")
	cfg.ReportInterval = v.GetDuration("report_interval")
	cfg.Seed = v.GetInt64("seed")
	cfg.Pacing = strings.ToLower(v.GetString("pacing"))
	cfg.Operations = parseOperations(v.Get("operations"))
	cfg.Window.Capacity = v.GetInt("window.capacity")
	cfg.Window.SkewExponent = v.GetFloat64("window.skew_exponent")
	cfg.DBCollectionMap = parseCollectionMap(v.Get("db_collection_map"))
	cfg.Topics = v.GetStringSlice("topics")

	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(v.GetString("backend.kind")))
	cfg.Backend.ConnectTimeout = v.GetDuration("backend.connect_timeout")
	cfg.Backend.ConnectAttempts = v.GetInt("backend.connect_attempts")
	cfg.Backend.OpTimeout = v.GetDuration("backend.op_timeout")
	cfg.Backend.Mongo.URI = v.GetString("backend.mongo.uri")
	cfg.Backend.Kafka.Brokers = v.GetStringSlice("backend.kafka.brokers")
	cfg.Backend.Kafka.ClientID = v.GetString("backend.kafka.client_id")
	cfg.Backend.Kafka.Linger = v.GetDuration("backend.kafka.linger")
	cfg.Backend.Redis.Addr = v.GetString("backend.redis.addr")
	cfg.Backend.Redis.Password = v.GetString("backend.redis.password")
	cfg.Backend.Redis.DB = v.GetInt("backend.redis.db")
	cfg.Backend.Postgres.DSN = v.GetString("backend.postgres.dsn")
	cfg.Backend.CircuitBreaker.Enabled = v.GetBool("backend.circuit_breaker.enabled")
	cfg.Backend.CircuitBreaker.MaxFailures = v.GetInt("backend.circuit_breaker.max_failures")
	cfg.Backend.CircuitBreaker.Timeout = v.GetDuration("backend.circuit_breaker.timeout")
	cfg.Backend.CircuitBreaker.Successes = v.GetInt("backend.circuit_breaker.successes")

	cfg.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	cfg.Logging.Format = strings.ToLower(v.GetString("logging.format"))
	cfg.Status.Enabled = v.GetBool("status.enabled")
	cfg.Status.Listen = v.GetString("status.listen")
	cfg.Status.TLS.Enabled = v.GetBool("status.tls.enabled")
	cfg.Status.TLS.CertFile = v.GetString("status.tls.cert_file")
	cfg.Status.TLS.KeyFile = v.GetString("status.tls.key_file")
	cfg.Status.TLS.Hosts = v.GetStringSlice("status.tls.hosts")

	cfg.Telemetry.OTLP.Endpoint = v.GetString("telemetry.otlp.endpoint")
	cfg.Telemetry.OTLP.Insecure = v.GetBool("telemetry.otlp.insecure")
	cfg.Telemetry.OTLP.Timeout = v.GetDuration("telemetry.otlp.timeout")
	cfg.Telemetry.OTLP.Compression = v.GetString("telemetry.otlp.compression")
	cfg.Telemetry.OTLP.Headers = v.GetStringMapString("telemetry.otlp.headers")
	cfg.Telemetry.OTLP.SampleRatio = v.GetFloat64("telemetry.otlp.sample_ratio")

	vc := &cfg.Secrets.Vault
	vc.Enabled = v.GetBool("secrets.vault.enabled")
	vc.Address = v.GetString("secrets.vault.address")
	vc.Token = v.GetString("secrets.vault.token")
	vc.TokenFile = v.GetString("secrets.vault.token_file")
	vc.Namespace = v.GetString("secrets.vault.namespace")
	vc.MountPath = v.GetString("secrets.vault.mount_path")
	vc.KVVersion = v.GetInt("secrets.vault.kv_version")
	vc.CacheTTL = v.GetDuration("secrets.vault.cache_ttl")
	vc.RequestTimeout = v.GetDuration("secrets.vault.request_timeout")
	vc.TLSSkipVerify = v.GetBool("secrets.vault.tls_skip_verify")
	vc.TLS.CAFile = v.GetString("secrets.vault.tls.ca_file")
	vc.TLS.CertFile = v.GetString("secrets.vault.tls.cert_file")
	vc.TLS.KeyFile = v.GetString("secrets.vault.tls.key_file")
	return cfg
}

// parseOperations accepts the weight map as YAML decodes it (map[string]any
// with int or float values) or as a "insert=0.5,update=0.5" env string.
func parseOperations(raw any) map[string]float64 {
	out := map[string]float64{}
	switch m := raw.(type) {
	case map[string]any:
		for k, val := range m {
			out[strings.ToLower(strings.TrimSpace(k))] = toFloat(val)
		}
	case map[string]float64:
		for k, val := range m {
			out[strings.ToLower(strings.TrimSpace(k))] = val
		}
	case string:
		for _, part := range strings.Split(m, ",") {
			k, val, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			var f float64
			if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err != nil {
				f = math.NaN()
			}
			out[strings.ToLower(strings.TrimSpace(k))] = f
		}
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f
		}
	}
	return math.NaN()
}

// parseCollectionMap accepts db -> [collections] with list or comma separated
// string values.
func parseCollectionMap(raw any) map[string][]string {
	out := map[string][]string{}
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for db, val := range m {
		var colls []string
		switch vv := val.(type) {
		case string:
			for _, c := range strings.Split(vv, ",") {
				if c = strings.TrimSpace(c); c != "" {
					colls = append(colls, c)
				}
			}
		case []any:
			for _, x := range vv {
				if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
					colls = append(colls, strings.TrimSpace(s))
				}
			}
		case []string:
			colls = append(colls, vv...)
		}
		if len(colls) > 0 {
			out[db] = colls
		}
	}
	return out
}

// Duration is the benchmark run length.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// Interval is the pacing gap between two cycles of one worker.
func (c *Config) Interval() time.Duration {
	if c.RPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RPS)
}

// TargetNames lists every configured target, sorted, in display form.
func (c *Config) TargetNames() []string {
	var out []string
	if c.Backend.Kind == BackendKafka {
		out = append(out, c.Topics...)
	} else {
		for db, colls := range c.DBCollectionMap {
			for _, coll := range colls {
				out = append(out, db+"."+coll)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Validate performs static validation and returns error and warning messages.
func (c *Config) Validate() (errs []string, warnings []string) {
	switch c.Mode {
	case ModeBenchmark:
		if c.DurationSeconds <= 0 {
			errs = append(errs, "duration_seconds must be > 0 in benchmark mode")
		}
	case ModeLongRunning:
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q (benchmark|long_running)", c.Mode))
	}
	if c.RPS <= 0 || math.IsNaN(c.RPS) || math.IsInf(c.RPS, 0) {
		errs = append(errs, "rps must be > 0")
	}
	if c.DocumentSize < 0 {
		errs = append(errs, "document_size must be >= 0")
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, "report_interval must be > 0")
	}
	if c.Pacing != PacingInterval && c.Pacing != PacingLimiter {
		errs = append(errs, "pacing must be interval|limiter")
	}
	if c.Window.Capacity <= 0 {
		errs = append(errs, "window.capacity must be > 0")
	}
	if c.Window.SkewExponent <= 0 || math.IsNaN(c.Window.SkewExponent) {
		errs = append(errs, "window.skew_exponent must be > 0")
	}
	errs = append(errs, c.validateOperations()...)

	switch c.Backend.Kind {
	case BackendKafka:
		if len(c.Topics) == 0 {
			errs = append(errs, "topics required for kafka backend")
		}
		if len(c.Backend.Kafka.Brokers) == 0 {
			errs = append(errs, "backend.kafka.brokers required")
		}
		if c.Operations["update"] > 0 || c.Operations["delete"] > 0 {
			errs = append(errs, "kafka backend supports insert only (update/delete weights must be 0)")
		}
	case BackendMongo, BackendRedis, BackendPostgres, BackendMemory:
		if len(c.DBCollectionMap) == 0 {
			errs = append(errs, "db_collection_map must list at least one collection")
		}
		switch c.Backend.Kind {
		case BackendMongo:
			if strings.TrimSpace(c.Backend.Mongo.URI) == "" {
				errs = append(errs, "backend.mongo.uri (mongo_uri) required")
			}
		case BackendRedis:
			if strings.TrimSpace(c.Backend.Redis.Addr) == "" {
				errs = append(errs, "backend.redis.addr required")
			}
		case BackendPostgres:
			if strings.TrimSpace(c.Backend.Postgres.DSN) == "" {
				errs = append(errs, "backend.postgres.dsn required")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown backend.kind %q (mongo|kafka|redis|postgres|memory)", c.Backend.Kind))
	}
	if c.Backend.ConnectAttempts <= 0 {
		errs = append(errs, "backend.connect_attempts must be > 0")
	}
	if c.Backend.OpTimeout <= 0 {
		errs = append(errs, "backend.op_timeout must be > 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug|info|warn|error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, "logging.format must be text|json")
	}
	if c.Status.Enabled && strings.TrimSpace(c.Status.Listen) == "" {
		errs = append(errs, "status.listen required when status.enabled")
	}
	if c.Status.TLS.Enabled && (c.Status.TLS.CertFile == "" || c.Status.TLS.KeyFile == "") {
		errs = append(errs, "status.tls.cert_file and key_file required when status.tls.enabled")
	}
	if c.Secrets.Vault.Enabled && c.Secrets.Vault.Token == "" && c.Secrets.Vault.TokenFile == "" {
		errs = append(errs, "secrets.vault.token or token_file required when vault enabled")
	}

	// warnings (do not block startup)
	if c.Mode == ModeLongRunning && c.DurationSeconds > 0 {
		warnings = append(warnings, "duration_seconds ignored in long_running mode")
	}
	if c.Operations["update"] > 0 || c.Operations["delete"] > 0 {
		if c.Operations["insert"] == 0 {
			warnings = append(warnings, "update/delete without inserts only operate on an empty window")
		}
	}
	if c.RPS > 10000 {
		warnings = append(warnings, "rps above 10000 per worker is unlikely to be reached")
	}
	return
}

func (c *Config) validateOperations() (errs []string) {
	if len(c.Operations) == 0 {
		return []string{"operations must define at least one weight"}
	}
	sum := 0.0
	names := make([]string, 0, len(c.Operations))
	for name := range c.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w := c.Operations[name]
		switch name {
		case "insert", "update", "delete":
		default:
			errs = append(errs, fmt.Sprintf("operations.%s: unknown operation", name))
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Sprintf("operations.%s: weight must be a non-negative number", name))
			continue
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		errs = append(errs, fmt.Sprintf("operations weights must sum to 1.0 (got %g)", sum))
	}
	return errs
}
