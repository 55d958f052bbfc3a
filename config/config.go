package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor de batallas.
type Config struct {
	Settlement SettlementConfig `yaml:"settlement"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// SettlementConfig controla las reglas de liquidación.
type SettlementConfig struct {
	AbuseThreshold    int     `yaml:"abuse_threshold"`      // reps por participante y operador, batalla actual incluida; <0 desactiva
	AbuseWindowHours  int     `yaml:"abuse_window_hours"`   // ventana del anti-abuse
	MVPMinSuccessRate float64 `yaml:"mvp_min_success_rate"` // 0..1
	RefundCap         int     `yaml:"refund_cap"`           // tope del refund del MVP perdedor
	ConsolationPoints int     `yaml:"consolation_points"`   // MVP en empate de equipos
	MinPointsPerRep   int     `yaml:"min_points_per_rep"`   // piso del rate mode
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// HTTPConfig controla la API JSON.
type HTTPConfig struct {
	Addr              string `yaml:"addr"`
	RequestsPerMinute int    `yaml:"requests_per_minute"` // por operador; <0 desactiva
	Burst             int    `yaml:"burst"`
}

// SweeperConfig controla el settle automático de batallas completas.
type SweeperConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

// TelemetryConfig controla el export de trazas OTLP/HTTP.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"` // vacío = tracing desactivado
}

// envOverrides son las variables de entorno que pisan al YAML.
// Los punteros distinguen "no definida" de "definida a cero".
type envOverrides struct {
	DSN               string `env:"BATTLE_DSN"`
	LogLevel          string `env:"LOG_LEVEL"`
	LogFormat         string `env:"LOG_FORMAT"`
	HTTPAddr          string `env:"HTTP_ADDR"`
	AbuseThreshold    *int   `env:"BATTLE_ABUSE_THRESHOLD"`
	RequestsPerMinute *int   `env:"HTTP_REQUESTS_PER_MINUTE"`
	SweeperEnabled    *bool  `env:"BATTLE_SWEEPER_ENABLED"`
	SweeperInterval   *int   `env:"BATTLE_SWEEPER_INTERVAL_SECONDS"`
	OTelEndpoint      string `env:"BATTLE_OTEL_ENDPOINT"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
// Un path vacío arranca de la configuración por defecto.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// AbuseWindow devuelve la ventana del anti-abuse como time.Duration.
func (c *Config) AbuseWindow() time.Duration {
	return time.Duration(c.Settlement.AbuseWindowHours) * time.Hour
}

// SweepInterval devuelve el intervalo del sweeper como time.Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if ov.DSN != "" {
		cfg.Storage.DSN = ov.DSN
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.Log.Format = ov.LogFormat
	}
	if ov.HTTPAddr != "" {
		cfg.HTTP.Addr = ov.HTTPAddr
	}
	if ov.AbuseThreshold != nil {
		cfg.Settlement.AbuseThreshold = *ov.AbuseThreshold
	}
	if ov.RequestsPerMinute != nil {
		cfg.HTTP.RequestsPerMinute = *ov.RequestsPerMinute
	}
	if ov.SweeperEnabled != nil {
		cfg.Sweeper.Enabled = *ov.SweeperEnabled
	}
	if ov.SweeperInterval != nil {
		cfg.Sweeper.IntervalSeconds = *ov.SweeperInterval
	}
	if ov.OTelEndpoint != "" {
		cfg.Telemetry.Endpoint = ov.OTelEndpoint
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Cero significa "no configurado"; los negativos desactivan donde aplica.
func setDefaults(cfg *Config) {
	s := &cfg.Settlement
	if s.AbuseThreshold == 0 {
		s.AbuseThreshold = 20
	}
	if s.AbuseWindowHours <= 0 {
		s.AbuseWindowHours = 24
	}
	if s.MVPMinSuccessRate <= 0 || s.MVPMinSuccessRate > 1 {
		s.MVPMinSuccessRate = 0.6
	}
	if s.RefundCap <= 0 {
		s.RefundCap = 50
	}
	if s.ConsolationPoints <= 0 {
		s.ConsolationPoints = 10
	}
	if s.MinPointsPerRep <= 0 {
		s.MinPointsPerRep = 3
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "battlewager.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestsPerMinute == 0 {
		cfg.HTTP.RequestsPerMinute = 120
	}
	if cfg.HTTP.Burst <= 0 {
		cfg.HTTP.Burst = 20
	}

	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
}
