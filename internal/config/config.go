// Package config holds the converter's run configuration, read from CLI
// flags with an optional JSON config file underneath.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config selects the inputs and outputs of one converter invocation.
type Config struct {
	TrainImageDir        string `mapstructure:"train_image_dir"`
	ValImageDir          string `mapstructure:"val_image_dir"`
	TrainAnnotationsFile string `mapstructure:"train_annotations_file"`
	ValAnnotationsFile   string `mapstructure:"val_annotations_file"`
	OutputDir            string `mapstructure:"output_dir"`
	IncludeMasks         bool   `mapstructure:"include_masks"`
	NumShards            int    `mapstructure:"num_shards"`
	PreviewDir           string `mapstructure:"preview_dir"`
}

// Load resolves the configuration: defaults, then the JSON config file if
// one is given, then any flag the user actually set.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("output_dir", "/tmp/")
	v.SetDefault("include_masks", true)
	v.SetDefault("num_shards", 10)

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations that cannot possibly run.
func (c *Config) Validate() error {
	if c.TrainAnnotationsFile == "" {
		return fmt.Errorf("train_annotations_file is required")
	}
	if c.ValAnnotationsFile == "" {
		return fmt.Errorf("val_annotations_file is required")
	}
	if c.NumShards <= 0 {
		return fmt.Errorf("num_shards must be positive, got %d", c.NumShards)
	}

	return nil
}
