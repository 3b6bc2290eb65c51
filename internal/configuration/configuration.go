package configuration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bisacoding/bisacoding/internal/file"
)

// APIKeyEnvVariable overrides the configured api key when set.
const APIKeyEnvVariable = "BISACODING_API_KEY"

var defaultConfig = Config{
	APIKey:         "",
	APIHost:        "https://api.openai.com/v1",
	Model:          "gpt-4o-mini",
	RequestTimeout: 120,

	SystemInstruction: `You are the Bisa Coding Mentor, a senior software architect. ` +
		`Answer coding questions clearly, review code that is pasted or attached, ` +
		`and always include complete example code. Format answers with markdown.`,

	Temperature:    0.7,
	MaxTokens:      0,
	HistoryWindow:  0,
	MaxRetries:     2,
	RetryBaseDelay: 2,

	StorePath: "~/.config/bisacoding/projects.db",
}

// Config holds configuration for the bisacoding tool.
type Config struct {
	// Credentials and endpoint of the completion API.
	APIKey         string `json:"api_key"`
	APIHost        string `json:"api_host"`
	Model          string `json:"model"`
	RequestTimeout int    `json:"request_timeout"`

	// Prompting.
	SystemInstruction string  `json:"system_instruction"`
	Temperature       float32 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`

	// Number of most recent turns sent upstream. 0 means unbounded.
	HistoryWindow int `json:"history_window"`

	// Quota-error retry policy.
	MaxRetries     int `json:"max_retries"`
	RetryBaseDelay int `json:"retry_base_delay_seconds"`

	// Where the project store lives.
	StorePath string `json:"store_path"`
}

// Parse a configuration file.
func Parse(path string) (*Config, error) {
	path, err := file.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	if err := initializeIfNotPresent(path); err != nil {
		return nil, errors.Wrap(err, "initializing configuration")
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling into config")
	}

	if apiKey := os.Getenv(APIKeyEnvVariable); apiKey != "" {
		config.APIKey = apiKey
	}

	expandedStorePath, err := file.ExpandPath(config.StorePath)
	if err != nil {
		return nil, errors.Wrap(err, "expanding store path")
	}
	config.StorePath = expandedStorePath
	if err := file.CreateDirectoryIfNotExist(filepath.Dir(config.StorePath)); err != nil {
		return nil, errors.Wrap(err, "creating store directory")
	}
	return config, nil
}

// save a configuration file.
func (c *Config) save(path string) error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	err = os.WriteFile(path, bytes, 0644)
	if err != nil {
		return errors.Wrap(err, "writing file")
	}

	return nil
}

// initializeIfNotPresent initializes a config if it does not exist.
func initializeIfNotPresent(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	// Create the directories.
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating folders")
	}

	if err := defaultConfig.save(path); err != nil {
		return errors.Wrap(err, "saving default config")
	}
	return nil
}
