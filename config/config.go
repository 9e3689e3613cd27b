package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del trader.
type Config struct {
	Trading     TradingConfig     `yaml:"trading"`
	Risk        RiskConfig        `yaml:"risk"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Kalshi      KalshiConfig      `yaml:"kalshi"`
	Weather     WeatherConfig     `yaml:"weather"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Cities      map[string]City   `yaml:"cities"`
}

// TradingConfig controla el ciclo y los gates de edge.
type TradingConfig struct {
	Mode            string  `yaml:"mode"` // paper | demo | live
	IntervalMinutes int     `yaml:"interval_minutes"`
	MinEdge         float64 `yaml:"min_edge"`         // net edge mínimo por pata
	BracketMinEdge  float64 `yaml:"bracket_min_edge"` // bar más alto: dos patas pagan doble fee
	FeeRate         float64 `yaml:"fee_rate"`         // fee por contrato de $1 de payout
	KellyMultiplier float64 `yaml:"kelly_multiplier"` // fracción del Kelly completo
	MaxSpread       float64 `yaml:"max_spread"`
	MinVolume       int     `yaml:"min_volume"`
	MinAsk          float64 `yaml:"min_ask"`
	MaxAsk          float64 `yaml:"max_ask"`
	StartingBalance float64 `yaml:"starting_balance"` // cuenta paper y fallback de arranque
}

// RiskConfig son los límites de la máquina de estados de riesgo.
type RiskConfig struct {
	MaxPositionPctPerCity float64 `yaml:"max_position_pct_per_city"`
	MaxOpenPositions      int     `yaml:"max_open_positions"`
	DailyStopLossPct      float64 `yaml:"daily_stop_loss_pct"`
}

// CalibrationConfig controla la actualización diaria de bias/scale.
type CalibrationConfig struct {
	LookbackDays int `yaml:"lookback_days"`
	MinRecords   int `yaml:"min_records"`
}

// KalshiConfig son las credenciales y el entorno de la API.
// La key privada nunca va en el YAML: solo por env.
type KalshiConfig struct {
	BaseURL       string `yaml:"base_url"` // vacío = según mode
	KeyID         string `yaml:"-"`
	PrivateKeyPEM string `yaml:"-"`
}

// WeatherConfig son los endpoints de datos meteorológicos.
type WeatherConfig struct {
	NBMBase string `yaml:"nbm_base"`
	NWSBase string `yaml:"nws_base"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// City es la configuración de una ciudad operada.
type City struct {
	Name         string  `yaml:"name"`
	KalshiSeries string  `yaml:"kalshi_series"` // ej. KXHIGHNY
	NBMStation   string  `yaml:"nbm_station"`   // ej. KNYC
	Lat          float64 `yaml:"lat"`
	Lon          float64 `yaml:"lon"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Las env vars sobreescriben al YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CycleInterval devuelve el intervalo del loop como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Trading.IntervalMinutes) * time.Minute
}

// CityCodes devuelve los códigos de ciudad en orden estable.
func (c *Config) CityCodes() []string {
	codes := make([]string, 0, len(c.Cities))
	for _, code := range defaultCityOrder {
		if _, ok := c.Cities[code]; ok {
			codes = append(codes, code)
		}
	}
	for code := range c.Cities {
		if !contains(codes, code) {
			codes = append(codes, code)
		}
	}
	return codes
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// applyEnvOverrides sobreescribe valores con variables de entorno.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("STARTING_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.StartingBalance = f
		}
	}
	cfg.Kalshi.KeyID = os.Getenv("KALSHI_KEY_ID")
	cfg.Kalshi.PrivateKeyPEM = os.Getenv("KALSHI_PRIVATE_KEY_PEM")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

var defaultCityOrder = []string{"LA", "NYC", "MIA", "CHI", "PHX"}

// defaultCities son las 5 ciudades con mercados diarios de temperatura.
var defaultCities = map[string]City{
	"LA":  {Name: "Los Angeles", KalshiSeries: "KXHIGHLAX", NBMStation: "KLAX", Lat: 34.0522, Lon: -118.2437},
	"NYC": {Name: "New York", KalshiSeries: "KXHIGHNY", NBMStation: "KNYC", Lat: 40.7829, Lon: -73.9654},
	"MIA": {Name: "Miami", KalshiSeries: "KXHIGHMIA", NBMStation: "KMIA", Lat: 25.7617, Lon: -80.1918},
	"CHI": {Name: "Chicago", KalshiSeries: "KXHIGHCHI", NBMStation: "KORD", Lat: 41.8781, Lon: -87.6298},
	"PHX": {Name: "Phoenix", KalshiSeries: "KXHIGHTPHX", NBMStation: "KPHX", Lat: 33.4484, Lon: -112.0740},
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.IntervalMinutes <= 0 {
		cfg.Trading.IntervalMinutes = 30
	}
	if cfg.Trading.MinEdge <= 0 {
		cfg.Trading.MinEdge = 0.05
	}
	if cfg.Trading.BracketMinEdge <= 0 {
		cfg.Trading.BracketMinEdge = 0.08
	}
	if cfg.Trading.FeeRate <= 0 {
		cfg.Trading.FeeRate = 0.01
	}
	if cfg.Trading.KellyMultiplier <= 0 {
		cfg.Trading.KellyMultiplier = 0.25
	}
	if cfg.Trading.MaxSpread <= 0 {
		cfg.Trading.MaxSpread = 0.12
	}
	if cfg.Trading.MinVolume <= 0 {
		cfg.Trading.MinVolume = 5
	}
	if cfg.Trading.MinAsk <= 0 {
		cfg.Trading.MinAsk = 0.05
	}
	if cfg.Trading.MaxAsk <= 0 {
		cfg.Trading.MaxAsk = 0.95
	}
	if cfg.Trading.StartingBalance <= 0 {
		cfg.Trading.StartingBalance = 1000
	}
	if cfg.Risk.MaxPositionPctPerCity <= 0 {
		cfg.Risk.MaxPositionPctPerCity = 0.03
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 5
	}
	if cfg.Risk.DailyStopLossPct <= 0 {
		cfg.Risk.DailyStopLossPct = 0.05
	}
	if cfg.Calibration.LookbackDays <= 0 {
		cfg.Calibration.LookbackDays = 30
	}
	if cfg.Calibration.MinRecords <= 0 {
		cfg.Calibration.MinRecords = 7
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tempedge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.Cities) == 0 {
		cfg.Cities = defaultCities
	}
}

func validate(cfg *Config) error {
	switch cfg.Trading.Mode {
	case "paper", "demo", "live":
	default:
		return fmt.Errorf("config: trading mode inválido %q (paper|demo|live)", cfg.Trading.Mode)
	}
	if cfg.Trading.Mode != "paper" && cfg.Kalshi.PrivateKeyPEM == "" {
		return fmt.Errorf("config: modo %s requiere KALSHI_PRIVATE_KEY_PEM", cfg.Trading.Mode)
	}
	for code, city := range cfg.Cities {
		if city.KalshiSeries == "" || city.NBMStation == "" {
			return fmt.Errorf("config: ciudad %s sin kalshi_series o nbm_station", code)
		}
	}
	return nil
}
