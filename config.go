package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

// AppEnv represents the application environment
// ENUM(local,production,development,testing)
type AppEnv string

type Config struct {
	HTTPPort         string `koanf:"http_port"`
	TelegramAPIURL   string `koanf:"telegram_api_url"`
	OpenAIAPIKey     string `koanf:"openai_api_key"`
	OpenAIModel      string `koanf:"openai_model"`
	OpenAIImageModel string `koanf:"openai_image_model"`
	DatabaseURL      string `koanf:"database_url"`
	SweepInterval    int    `koanf:"sweep_interval"` // seconds between scheduled-content sweeps
	AppEnv           AppEnv `koanf:"app_env"`
}

func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	// Try to load config file from various formats
	configFiles := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"config.toml",
	}

	// Use lo.Find to find the first existing config file
	configFile, found := lo.Find(configFiles, func(file string) bool {
		_, err := os.Stat(file)
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(configFile), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Load environment variables (they override config file values)
	// Convert OPENAI_API_KEY -> openai_api_key
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	// Set defaults
	if !k.Exists("http_port") {
		k.Set("http_port", "8080")
	}
	if !k.Exists("telegram_api_url") {
		k.Set("telegram_api_url", "https://api.telegram.org")
	}
	if !k.Exists("openai_model") {
		k.Set("openai_model", "gpt-4o-mini")
	}
	if !k.Exists("openai_image_model") {
		k.Set("openai_image_model", "dall-e-3")
	}
	if !k.Exists("sweep_interval") {
		k.Set("sweep_interval", 60)
	}
	if !k.Exists("app_env") {
		k.Set("app_env", "production")
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	// Parse AppEnv from string if needed
	if appEnvStr := k.String("app_env"); appEnvStr != "" {
		appEnv, err := ParseAppEnv(appEnvStr)
		if err != nil {
			return nil, oops.With("app_env", appEnvStr).Wrap(err)
		}
		cfg.AppEnv = appEnv
	}

	return &cfg, nil
}
