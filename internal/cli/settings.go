// Package cli holds the settings shared by the dsanalysis subcommands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-ds-analysis-report-ui/internal/histogram"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Settings are the resolved values of flags, DSA_* environment variables
// and the optional config file, in that order of precedence.
type Settings struct {
	Granularity    float64
	Format         string
	Excludes       []string
	FollowSymlinks bool
}

// NewViper wires a viper instance to the persistent flags of root. Flags
// must be defined before calling it.
func NewViper(root *cobra.Command) *viper.Viper {
	v := viper.New()
	if cfgDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(cfgDir, "ds-analysis-report"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("dsanalysis") // dsanalysis.{yaml|yml|json|toml}

	v.SetEnvPrefix("DSA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("granularity", histogram.DefaultGranularity)
	v.SetDefault("format", FormatText)

	flags := root.PersistentFlags()
	_ = v.BindPFlag("granularity", flags.Lookup("granularity"))
	_ = v.BindPFlag("format", flags.Lookup("format"))
	_ = v.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = v.BindPFlag("follow_symlinks", flags.Lookup("follow-symlinks"))
	return v
}

// Load reads the config file, if any, and validates the merged settings.
func Load(v *viper.Viper, configFile string) (Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	s := Settings{
		Granularity:    v.GetFloat64("granularity"),
		Format:         strings.ToLower(strings.TrimSpace(v.GetString("format"))),
		Excludes:       v.GetStringSlice("exclude"),
		FollowSymlinks: v.GetBool("follow_symlinks"),
	}
	if s.Granularity < histogram.MinGranularity || s.Granularity > 100 {
		return Settings{}, fmt.Errorf("invalid --granularity: %v (valid: %v <= g <= 100)", s.Granularity, histogram.MinGranularity)
	}
	switch s.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return Settings{}, fmt.Errorf("invalid --format: %q (valid: text|json|yaml)", s.Format)
	}
	return s, nil
}
