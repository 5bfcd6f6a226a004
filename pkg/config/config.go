package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"retail-cohorts/pkg/calculator"
	"retail-cohorts/pkg/filter"
	"retail-cohorts/pkg/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config regroupe la configuration de l'outil (fichier YAML + variables d'environnement).
type Config struct {
	Source      SourceConfig         `yaml:"source"`
	Filter      FilterConfig         `yaml:"filter"`
	Scenario    models.ScenarioInput `yaml:"scenario"`
	Sensitivity SensitivityConfig    `yaml:"sensitivity"`
	Cache       CacheConfig          `yaml:"cache"`
	Output      OutputConfig         `yaml:"output"`
	Verbose     bool                 `yaml:"verbose"`
}

// SourceConfig décrit d'où viennent les transactions : fichiers CSV ou table MySQL.
type SourceConfig struct {
	CSVPaths     []string `yaml:"csv_path"`
	DSN          string   `yaml:"dsn"`
	Table        string   `yaml:"table"`
	CSVDelimiter string   `yaml:"csv_delimiter"`
	DecimalComma bool     `yaml:"decimal_comma"`
	Latin1       bool     `yaml:"latin1"`
	DayFirst     bool     `yaml:"day_first"`
}

// FilterConfig : bornes au format MMYYYY, comme les flags -start_month/-end_month.
type FilterConfig struct {
	StartMonth      string   `yaml:"start_month"`
	EndMonth        string   `yaml:"end_month"`
	Countries       []string `yaml:"countries"`
	MinInvoiceTotal float64  `yaml:"min_invoice_total"`
	Returns         string   `yaml:"returns"`
}

type SensitivityConfig struct {
	Steps []int `yaml:"steps"`
}

// CacheConfig : backend "memory" (défaut) ou "redis".
type CacheConfig struct {
	Backend    string `yaml:"backend"`
	RedisAddr  string `yaml:"redis_addr"`
	Prefix     string `yaml:"prefix"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// TTL renvoie la durée de vie des entrées Redis.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// OutputConfig : formats parmi json, csv, xlsx.
type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
	Segment string   `yaml:"segment"`
}

// Wants indique si le format est demandé.
func (o OutputConfig) Wants(format string) bool {
	for _, f := range o.Formats {
		if strings.EqualFold(strings.TrimSpace(f), format) {
			return true
		}
	}
	return false
}

// Default renvoie la configuration utilisée sans fichier. Les leviers du
// scénario reprennent les valeurs initiales des curseurs du tableau de bord ;
// ils sont posés avant le décodage pour qu'un 0 explicite soit conservé.
func Default() *Config {
	cfg := &Config{
		Scenario: models.ScenarioInput{Margin: 0.20, DiscountRate: 0.10},
	}
	applyDefaults(cfg)
	return cfg
}

// Load lit et parse le fichier de configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Table == "" {
		cfg.Source.Table = "transactions"
	}
	if cfg.Source.CSVDelimiter == "" {
		cfg.Source.CSVDelimiter = ","
	}
	if cfg.Filter.Returns == "" {
		cfg.Filter.Returns = string(filter.ReturnsInclude)
	}
	if len(cfg.Sensitivity.Steps) == 0 {
		cfg.Sensitivity.Steps = append([]int(nil), calculator.DefaultSensitivitySteps...)
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "retail-cohorts"
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = 60
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{"json"}
	}
}

// LoadFromEnv charge le .env s'il existe, puis le fichier (optionnel),
// puis applique les surcharges d'environnement.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("RETAIL_COHORTS_DSN"); v != "" {
		cfg.Source.DSN = v
	}
	if v := os.Getenv("RETAIL_COHORTS_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv("RETAIL_COHORTS_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate vérifie les valeurs qui ne peuvent pas être corrigées par défaut.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend %q (memory|redis): %w", c.Cache.Backend, models.ErrInvalidInput)
	}
	for _, f := range c.Output.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "json", "csv", "xlsx":
		default:
			return fmt.Errorf("output.formats %q (json|csv|xlsx): %w", f, models.ErrInvalidInput)
		}
	}
	if len([]rune(c.Source.CSVDelimiter)) != 1 {
		return fmt.Errorf("source.csv_delimiter %q: %w", c.Source.CSVDelimiter, models.ErrInvalidInput)
	}
	if _, err := filter.ParseReturnsMode(c.Filter.Returns); err != nil {
		return err
	}
	return nil
}

// Delimiter renvoie le séparateur CSV sous forme de rune.
func (s SourceConfig) Delimiter() rune {
	r := []rune(s.CSVDelimiter)
	if len(r) == 0 {
		return ','
	}
	return r[0]
}

// Criteria convertit la section filter en critères pour les moteurs.
// Une borne vide n'est pas appliquée.
func (f FilterConfig) Criteria() (filter.Criteria, error) {
	mode, err := filter.ParseReturnsMode(f.Returns)
	if err != nil {
		return filter.Criteria{}, err
	}
	from, to, err := calculator.MonthRange(f.StartMonth, f.EndMonth)
	if err != nil {
		return filter.Criteria{}, err
	}
	c := filter.Criteria{
		From:            from,
		To:              to,
		Countries:       f.Countries,
		MinInvoiceTotal: f.MinInvoiceTotal,
		Returns:         mode,
	}
	return c, c.Validate()
}
