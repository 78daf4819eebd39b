package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "PSBKIT_CONFIG"

// Config represents the psb configuration file (~/.config/psbkit/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Decompile defaults
	Format    string `yaml:"format"`
	Resources string `yaml:"resources"`
	Verify    *bool  `yaml:"verify"`

	// Compile defaults
	Version  *int64 `yaml:"version"`
	MDF      *bool  `yaml:"mdf"`
	MDFLevel *int64 `yaml:"mdf_level"`
	Dedup    *bool  `yaml:"dedup"`

	OutDir  string `yaml:"out_dir"`
	Workers *int64 `yaml:"workers"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxBodyBytes  *int64 `yaml:"max_body_bytes"`
	MaxDocuments  *int64 `yaml:"max_documents"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "psbkit", "config.yaml")
}

// applyLogConfig applies config file defaults to the logging flags.
func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyDecompileConfig applies config file defaults to decompile flags.
func applyDecompileConfig(c *cli.Command, cfg Config) {
	if cfg.Format != "" && !c.IsSet("format") {
		treeFormat = cfg.Format
	}
	if cfg.Resources != "" && !c.IsSet("resources") {
		resources = cfg.Resources
	}
	if cfg.Verify != nil && !c.IsSet("verify") {
		verify = *cfg.Verify
	}
	applyOutDirConfig(c, cfg)
}

// applyCompileConfig applies config file defaults to compile flags.
func applyCompileConfig(c *cli.Command, cfg Config) {
	if cfg.Version != nil && !c.IsSet("version") {
		psbVersion = *cfg.Version
	}
	if cfg.MDF != nil && !c.IsSet("mdf") {
		mdf = *cfg.MDF
	}
	applyMDFLevelConfig(c, cfg)
	if cfg.Dedup != nil && !c.IsSet("dedup") {
		dedup = *cfg.Dedup
	}
	applyOutDirConfig(c, cfg)
}

func applyMDFLevelConfig(c *cli.Command, cfg Config) {
	if cfg.MDFLevel != nil && !c.IsSet("mdf-level") {
		mdfLevel = *cfg.MDFLevel
	}
}

func applyOutDirConfig(c *cli.Command, cfg Config) {
	if cfg.OutDir != "" && !c.IsSet("out-dir") {
		outDir = cfg.OutDir
	}
}

// applyBatchConfig applies config file defaults to batch command variables.
func applyBatchConfig(c *cli.Command, cfg Config, workers *int64) {
	if cfg.Workers != nil && !c.IsSet("workers") {
		*workers = *cfg.Workers
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxBody, maxDocs *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxBodyBytes != nil && !c.IsSet("max-body") {
		*maxBody = *cfg.MaxBodyBytes
	}
	if cfg.MaxDocuments != nil && !c.IsSet("max-documents") {
		*maxDocs = *cfg.MaxDocuments
	}
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. Returns a zero Config if the file doesn't exist or
// doesn't parse.
func LoadConfig(path string) Config {
	path = strings.TrimSpace(path)
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
