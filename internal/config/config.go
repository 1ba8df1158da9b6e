// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendLocal    = "local"
	BackendGitHub   = "github"
	BackendPostgres = "postgres"
)

// DefaultServiceOptions are the service tags offered before anyone adds one.
var DefaultServiceOptions = []string{"1부", "2부", "3부", "오후예배"}

// runtime settings singleton, persisted as JSON under the data directory
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig is the runtime settings file. It survives restarts; the base
// configuration from the environment always wins for the fields it covers.
type AppConfig struct {
	Port           string   `json:"port"`
	DataDir        string   `json:"data_dir"`
	LogDir         string   `json:"log_dir"`
	DebugMode      bool     `json:"debug_mode"`
	DocLocale      string   `json:"doc_locale"`
	ServiceOptions []string `json:"service_options"`
}

// Config is the base configuration read from the environment.
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool
	LogLevel  string

	AccessCode    string
	AuthSecretKey string

	StoreBackend string
	StoreBaseDir string
	VersePrefix  string
	DocLocale    string

	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string
	GitHubAPIURL string

	DatabaseURL string
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DataDir:   getEnvPath("DATA_DIR", "data"),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		AccessCode:    getEnv("ACCESS_CODE", "0001"),
		AuthSecretKey: getEnv("AUTH_SECRET_KEY", ""),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendLocal)),
		StoreBaseDir: strings.Trim(getEnv("STORE_BASE_DIR", "submissions"), "/"),
		VersePrefix:  strings.Trim(getEnv("VERSE_PREFIX", "bible"), "/"),
		DocLocale:    getEnv("DOC_LOCALE", "ko"),

		GitHubOwner:  getEnv("GITHUB_OWNER", ""),
		GitHubRepo:   getEnv("GITHUB_REPO", ""),
		GitHubBranch: getEnv("GITHUB_BRANCH", "main"),
		GitHubToken:  getEnv("GITHUB_TOKEN", ""),
		GitHubAPIURL: getEnv("GITHUB_API_URL", "https://api.github.com"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the chosen store backend is fully configured.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendLocal:
	case BackendGitHub:
		if c.GitHubOwner == "" || c.GitHubRepo == "" {
			return fmt.Errorf("STORE_BACKEND=github requires GITHUB_OWNER and GITHUB_REPO")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want local, github or postgres)", c.StoreBackend)
	}
	if c.AccessCode == "" {
		return fmt.Errorf("ACCESS_CODE must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath also makes sure the directory exists.
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create directory %s: %v\n", path, err)
		}
	}
	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// InitConfig loads the runtime settings from dataDir/config.json, merges
// the base configuration over them and writes the result back.
func InitConfig(dataDir string, base *Config) error {
	if base == nil {
		var err error
		if base, err = Load(); err != nil {
			return err
		}
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(dataDir, "config.json")
	cfg := &AppConfig{ServiceOptions: append([]string(nil), DefaultServiceOptions...)}

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if err := json.Unmarshal(data, &saved); err == nil {
			cfg = &saved
		}
	}

	cfg.Port = base.Port
	cfg.DataDir = base.DataDir
	cfg.LogDir = base.LogDir
	cfg.DebugMode = base.DebugMode
	cfg.DocLocale = base.DocLocale
	cfg.ServiceOptions = mergeOptions(DefaultServiceOptions, cfg.ServiceOptions)

	currentConfig = cfg
	return saveLocked()
}

// GetCurrentConfig returns a copy of the runtime settings.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return &AppConfig{ServiceOptions: append([]string(nil), DefaultServiceOptions...)}
	}
	c := *currentConfig
	c.ServiceOptions = append([]string(nil), currentConfig.ServiceOptions...)
	return &c
}

// ServiceOptions lists the selectable service tags.
func ServiceOptions() []string {
	return GetCurrentConfig().ServiceOptions
}

// AddServiceOption appends a custom service tag and persists it. It reports
// the trimmed label and whether it was new.
func AddServiceOption(name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, fmt.Errorf("service name must not be empty")
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return "", false, fmt.Errorf("config not initialized")
	}
	for _, o := range currentConfig.ServiceOptions {
		if o == name {
			return name, false, nil
		}
	}
	currentConfig.ServiceOptions = append(currentConfig.ServiceOptions, name)
	return name, true, saveLocked()
}

// SaveConfig writes the runtime settings file.
func SaveConfig() error {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("no config to save")
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(configFile, data, 0644)
}

func mergeOptions(defaults, saved []string) []string {
	seen := make(map[string]bool, len(defaults)+len(saved))
	out := make([]string, 0, len(defaults)+len(saved))
	for _, list := range [][]string{defaults, saved} {
		for _, o := range list {
			o = strings.TrimSpace(o)
			if o == "" || seen[o] {
				continue
			}
			seen[o] = true
			out = append(out, o)
		}
	}
	return out
}
