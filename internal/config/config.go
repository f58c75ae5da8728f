package config

import "strings"

type Config struct {
	Server    ServerConfig
	Meta      MetaConfig
	AI        AIConfig
	Storage   StorageConfig
	Optimizer OptimizerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type MetaConfig struct {
	BaseURL string
}

type AIConfig struct {
	OpenAIAPIKey string
	GeminiAPIKey string
	OpenAIModel  string
	GeminiModel  string
}

type StorageConfig struct {
	DataDir string
}

type OptimizerConfig struct {
	IntervalMinutes int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4400,
			MCPPort: 4401,
		},
		Meta: MetaConfig{
			BaseURL: "https://graph.facebook.com/v19.0",
		},
		AI: AIConfig{
			OpenAIModel: "gpt-4o",
			GeminiModel: "gemini-1.5-flash",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Optimizer: OptimizerConfig{
			IntervalMinutes: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.castora.adops) and AI
// API keys fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/adops/config.json
// and AI API keys fall back to $XDG_DATA_HOME/adops/secrets.json.
//
// Environment variables (ADOPS_*) override backend values on all platforms.
// AI API keys are optional: with neither key set the service runs with the
// rule-based analysis only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts platform secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for API keys still empty.
	if cfg.AI.OpenAIAPIKey == "" {
		if key, err := kc.Get("adops", "openai_api_key"); err == nil && key != "" {
			cfg.AI.OpenAIAPIKey = key
		}
	}
	if cfg.AI.GeminiAPIKey == "" {
		if key, err := kc.Get("adops", "gemini_api_key"); err == nil && key != "" {
			cfg.AI.GeminiAPIKey = key
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
