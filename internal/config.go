package internal

import (
	"fmt"

	"github.com/spf13/viper"
)

type NovaBufConfig struct {
	AppName string `mapstructure:"app_name"`

	Buffer struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer"`

	Storage struct {
		Workdir string `mapstructure:"workdir"`
		File    string `mapstructure:"file"`
	} `mapstructure:"storage"`

	WAL struct {
		Enabled bool   `mapstructure:"enabled"`
		Dir     string `mapstructure:"dir"`
	} `mapstructure:"wal"`

	Log struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		OutputFile string `mapstructure:"output_file"`
	} `mapstructure:"log"`

	Telemetry struct {
		Enabled          bool    `mapstructure:"enabled"`
		ServiceName      string  `mapstructure:"service_name"`
		PrometheusPort   int     `mapstructure:"prometheus_port"`
		TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
	} `mapstructure:"telemetry"`

	Workload struct {
		Ops        int     `mapstructure:"ops"`
		Pages      int     `mapstructure:"pages"`
		RatePerSec float64 `mapstructure:"rate_per_sec"`
		Burst      int     `mapstructure:"burst"`
		WriteRatio float64 `mapstructure:"write_ratio"`
	} `mapstructure:"workload"`
}

// LoadConfig reads the yaml config at path. An empty path yields the
// built-in defaults.
func LoadConfig(path string) (*NovaBufConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaBufConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novabuf")
	v.SetDefault("buffer.capacity", 128)
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.file", "novabuf.db")
	v.SetDefault("wal.enabled", true)
	v.SetDefault("wal.dir", "./data/wal")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "stdout")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "novabuf")
	v.SetDefault("telemetry.prometheus_port", 9464)
	v.SetDefault("telemetry.trace_sample_ratio", 1.0)
	v.SetDefault("workload.ops", 10000)
	v.SetDefault("workload.pages", 512)
	v.SetDefault("workload.rate_per_sec", 2000)
	v.SetDefault("workload.burst", 64)
	v.SetDefault("workload.write_ratio", 0.5)
}
