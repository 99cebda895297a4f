// Package config loads planeboard.cfg.json through viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "planeboard.cfg.json"

// EngineConfig holds the geometry settings of the drag engine.
type EngineConfig struct {
	GridEnabled         bool          `json:"gridEnabled" mapstructure:"gridEnabled"`
	GridUnit            float64       `json:"gridUnit" mapstructure:"gridUnit"`
	SnapTolerance       float64       `json:"snapTolerance" mapstructure:"snapTolerance"`
	IndexTolerance      float64       `json:"indexTolerance" mapstructure:"indexTolerance"`
	SearchMargin        float64       `json:"searchMargin" mapstructure:"searchMargin"`
	FrameTitleBarHeight float64       `json:"frameTitleBarHeight" mapstructure:"frameTitleBarHeight"`
	FramePadding        float64       `json:"framePadding" mapstructure:"framePadding"`
	Predominance        float64       `json:"predominance" mapstructure:"predominance"`
	FrameInterval       time.Duration `json:"frameInterval" mapstructure:"frameInterval"`
}

// Validate rejects settings the geometry code cannot work with.
func (c EngineConfig) Validate() error {
	var errs []error
	if c.GridUnit <= 0 {
		errs = append(errs, fmt.Errorf("engine.gridUnit must be positive, got %v", c.GridUnit))
	}
	if c.SnapTolerance < 0 || c.IndexTolerance < 0 || c.SearchMargin < 0 {
		errs = append(errs, errors.New("engine tolerances and search margin must not be negative"))
	}
	if c.Predominance <= 0 || c.Predominance > 1 {
		errs = append(errs, fmt.Errorf("engine.predominance must be in (0, 1], got %v", c.Predominance))
	}
	if c.FrameInterval < 0 {
		errs = append(errs, errors.New("engine.frameInterval must not be negative"))
	}
	return errors.Join(errs...)
}

// MemoryConfig configures the JSON export backend.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpDir      string        `json:"dumpDir" mapstructure:"dumpDir"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// sections are the typed parts of the config file.
type sections struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Storage StorageConfig `mapstructure:"storage"`
	OTel    OTelConfig    `mapstructure:"otel"`
}

var defaults = map[string]any{
	"logLevel": "info",
	"logsDir":  "./planeboard-logs",
	"boardId":  "default",

	"engine.gridEnabled":         false,
	"engine.gridUnit":            20.0,
	"engine.snapTolerance":       4.0,
	"engine.indexTolerance":      4.0,
	"engine.searchMargin":        200.0,
	"engine.frameTitleBarHeight": 32.0,
	"engine.framePadding":        20.0,
	"engine.predominance":        0.5,
	"engine.frameInterval":       "16ms",

	"api.serverUrl":     "http://localhost:5000",
	"api.apiKey":        "",
	"api.uploadOnClose": false,

	"db.host":     "localhost",
	"db.port":     "5432",
	"db.username": "postgres",
	"db.password": "postgres",
	"db.database": "planeboard",
	"db.sslmode":  "disable",

	"influx.enabled":       false,
	"influx.host":          "localhost",
	"influx.port":          "8086",
	"influx.protocol":      "http",
	"influx.token":         "supersecrettoken",
	"influx.org":           "planeboard-metrics",
	"influx.retention":     "720h",
	"influx.batchSize":     500,
	"influx.flushInterval": "1s",

	"storage.type":                  "memory",
	"storage.memory.outputDir":      "./boards",
	"storage.memory.compressOutput": false,
	"storage.sqlite.path":           "",
	"storage.sqlite.dumpInterval":   "3m",
	"storage.sqlite.dumpDir":        "./boards",

	"otel.enabled":      false,
	"otel.serviceName":  "planeboard",
	"otel.batchTimeout": "5s",
	"otel.endpoint":     "",
	"otel.insecure":     true,
}

// SetDefaults registers every default value with viper.
func SetDefaults() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// Load registers the defaults and reads FileName from configDir.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if _, err := decode(); err != nil {
		return fmt.Errorf("error decoding config file: %w", err)
	}
	return nil
}

// decode reads the typed sections from everything viper knows, so keys
// missing from the file keep their defaults.
func decode() (sections, error) {
	var s sections
	err := viper.Unmarshal(&s)
	return s, err
}

func current() sections {
	s, _ := decode()
	return s
}

func GetEngineConfig() EngineConfig   { return current().Engine }
func GetStorageConfig() StorageConfig { return current().Storage }
func GetOTelConfig() OTelConfig       { return current().OTel }
