package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"gopkg.in/yaml.v3"
)

// Config represents the persisted application configuration.
type Config struct {
	UserAgent               string `yaml:"user_agent"`
	TimeoutSec              int    `yaml:"timeout_seconds"`
	Proxy                   string `yaml:"proxy,omitempty"`
	TLSVerify               bool   `yaml:"tls_verify"`
	ProgressSaveIntervalSec int    `yaml:"progress_save_interval_seconds"`
	SkipSeconds             int    `yaml:"skip_seconds"`
	SearchLimit             int    `yaml:"search_limit"`
	SearchCountry           string `yaml:"search_country"`
	PodcastIndexKey         string `yaml:"podcastindex_key,omitempty"`
	PodcastIndexSecret      string `yaml:"podcastindex_secret,omitempty"`
	TrendingCategory        string `yaml:"trending_category,omitempty"`
}

// Defaults returns the baseline configuration used on first run.
func Defaults() Config {
	return Config{
		UserAgent:               "podtrack/dev",
		TimeoutSec:              15,
		TLSVerify:               true,
		ProgressSaveIntervalSec: 15,
		SkipSeconds:             30,
		SearchLimit:             25,
		SearchCountry:           "us",
	}
}

// Ensure loads configuration from the provided path, prompting the user to
// create one if it does not yet exist.
func Ensure(ctx context.Context, path string) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg = Defaults()
	if err := bootstrap(ctx, &cfg); err != nil {
		return Config{}, err
	}

	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Load reads configuration from disk.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = Defaults().TimeoutSec
	}
	if cfg.ProgressSaveIntervalSec <= 0 {
		cfg.ProgressSaveIntervalSec = Defaults().ProgressSaveIntervalSec
	}
	if cfg.SkipSeconds <= 0 {
		cfg.SkipSeconds = Defaults().SkipSeconds
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = Defaults().SearchLimit
	}
	if strings.TrimSpace(cfg.SearchCountry) == "" {
		cfg.SearchCountry = Defaults().SearchCountry
	}
	return cfg, nil
}

// Save writes configuration back to disk, ensuring directory permissions are restrictive.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

func bootstrap(ctx context.Context, cfg *Config) error {
	if fromEnv := strings.TrimSpace(os.Getenv("PODTRACK_USER_AGENT")); fromEnv != "" {
		cfg.UserAgent = fromEnv
		return nil
	}

	prompt := &survey.Input{
		Message: "HTTP user agent",
		Default: cfg.UserAgent,
	}

	var answer string
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(survey.Required)); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return fmt.Errorf("initialisation interrupted")
		}
		return err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	cfg.UserAgent = answer
	return nil
}

// EditableKeys returns the ordered list of configuration keys exposed via the
// interactive editor.
func EditableKeys() []string {
	return []string{
		"user_agent",
		"timeout_seconds",
		"proxy",
		"tls_verify",
		"progress_save_interval_seconds",
		"skip_seconds",
		"search_limit",
		"search_country",
		"podcastindex_key",
		"podcastindex_secret",
		"trending_category",
	}
}

// EditInteractive opens an interactive survey session allowing the user to
// update configuration values.
func EditInteractive(ctx context.Context, cfg Config) (Config, error) {
	questions := []*survey.Question{
		{
			Name: "user_agent",
			Prompt: &survey.Input{
				Message: "User agent",
				Default: cfg.UserAgent,
			},
			Validate: survey.Required,
		},
		{
			Name: "timeout_seconds",
			Prompt: &survey.Input{
				Message: "HTTP timeout (seconds)",
				Default: fmt.Sprintf("%d", cfg.TimeoutSec),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "proxy",
			Prompt: &survey.Input{
				Message: "HTTP proxy (optional)",
				Default: cfg.Proxy,
			},
		},
		{
			Name: "tls_verify",
			Prompt: &survey.Confirm{
				Message: "Verify TLS certificates",
				Default: cfg.TLSVerify,
			},
		},
		{
			Name: "progress_save_interval_seconds",
			Prompt: &survey.Input{
				Message: "Playback progress save interval (seconds)",
				Default: fmt.Sprintf("%d", cfg.ProgressSaveIntervalSec),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "skip_seconds",
			Prompt: &survey.Input{
				Message: "Skip forward/back step (seconds)",
				Default: fmt.Sprintf("%d", cfg.SkipSeconds),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "search_limit",
			Prompt: &survey.Input{
				Message: "Maximum search results",
				Default: fmt.Sprintf("%d", cfg.SearchLimit),
			},
			Validate: validatePositiveInt,
		},
		{
			Name: "search_country",
			Prompt: &survey.Input{
				Message: "Store country for charts",
				Default: cfg.SearchCountry,
			},
			Validate: survey.Required,
		},
		{
			Name: "podcastindex_key",
			Prompt: &survey.Input{
				Message: "PodcastIndex API key (optional)",
				Default: cfg.PodcastIndexKey,
			},
		},
		{
			Name: "podcastindex_secret",
			Prompt: &survey.Password{
				Message: "PodcastIndex API secret (optional)",
			},
		},
		{
			Name: "trending_category",
			Prompt: &survey.Input{
				Message: "Trending category filter (optional)",
				Default: cfg.TrendingCategory,
			},
		},
	}

	answers := map[string]interface{}{}
	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	default:
	}

	if err := survey.Ask(questions, &answers); err != nil {
		return Config{}, err
	}

	cfg.UserAgent = strings.TrimSpace(answers["user_agent"].(string))
	cfg.TimeoutSec = toInt(answers["timeout_seconds"])
	cfg.Proxy = strings.TrimSpace(answers["proxy"].(string))
	cfg.TLSVerify = answers["tls_verify"].(bool)
	cfg.ProgressSaveIntervalSec = toInt(answers["progress_save_interval_seconds"])
	cfg.SkipSeconds = toInt(answers["skip_seconds"])
	cfg.SearchLimit = toInt(answers["search_limit"])
	cfg.SearchCountry = strings.TrimSpace(answers["search_country"].(string))
	cfg.PodcastIndexKey = strings.TrimSpace(answers["podcastindex_key"].(string))
	if secret := strings.TrimSpace(answers["podcastindex_secret"].(string)); secret != "" {
		cfg.PodcastIndexSecret = secret
	}
	cfg.TrendingCategory = strings.TrimSpace(answers["trending_category"].(string))

	return cfg, nil
}

func validatePositiveInt(ans interface{}) error {
	v := strings.TrimSpace(ans.(string))
	if v == "" {
		return errors.New("value required")
	}
	i, err := parseInt(v)
	if err != nil {
		return err
	}
	if i <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}

func parseInt(value string) (int, error) {
	var i int
	_, err := fmt.Sscanf(value, "%d", &i)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	return i, nil
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case string:
		i, _ := parseInt(v)
		return i
	default:
		return 0
	}
}
