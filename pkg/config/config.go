package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/recall/pkg/chatbot"
)

// ErrInvalidConfig marks configuration that fails validation. Invalid
// configuration aborts construction; it is never retried or defaulted over.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// defaultPromptTemplate embeds history and question into a single system
// block. It must contain exactly two %s slots: history first, question
// second.
const defaultPromptTemplate = `Assistant is a large language model trained by OpenAI.

Assistant is designed to be able to assist with a wide range of tasks, from answering simple questions to providing in-depth explanations and discussions on a wide range of topics. As a language model, Assistant is able to generate human-like text based on the input it receives, allowing it to engage in natural-sounding conversations and provide responses that are coherent and relevant to the topic at hand.

Assistant is constantly learning and improving, and its capabilities are constantly evolving. It is able to process and understand large amounts of text, and can use this knowledge to provide accurate and informative responses to a wide range of questions. Additionally, Assistant is able to generate its own text based on the input it receives, allowing it to engage in discussions and provide explanations and descriptions on a wide range of topics.

Overall, Assistant is a powerful tool that can help with a wide range of tasks and provide valuable insights and information on a wide range of topics. Whether you need help with a specific question or just want to have a conversation about a particular topic, Assistant is here to assist.

History: %s
Human: %s
Assistant:`

// HistoryConfig selects and configures the conversation store backend.
type HistoryConfig struct {
	Backend       string `yaml:"backend"` // memory | redis | sqlite
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// KnowledgeConfig locates the per-user index storage and the optional
// knowledge-base seed directory.
type KnowledgeConfig struct {
	RootPath string `yaml:"root_path"`
	DataDir  string `yaml:"data_dir"`
}

// EventsConfig selects the turn-event transport.
type EventsConfig struct {
	Transport string `yaml:"transport"` // none | gochannel | redis
	RedisAddr string `yaml:"redis_addr"`
}

// Config is the full recognized configuration surface.
type Config struct {
	Model             string  `yaml:"model"`
	MaxResponseTokens int     `yaml:"max_response_tokens"`
	Temperature       float32 `yaml:"temperature"`
	TopP              float32 `yaml:"top_p"`
	PresencePenalty   float32 `yaml:"presence_penalty"`
	FrequencyPenalty  float32 `yaml:"frequency_penalty"`
	PromptTemplate    string  `yaml:"prompt_template"`
	Encoding          string  `yaml:"encoding"`

	ChunkSize          int     `yaml:"chunk_size"`
	ChunkOverlap       int     `yaml:"chunk_overlap"`
	MaxSummaryTokens   int     `yaml:"max_summary_tokens"`
	SummaryTemperature float32 `yaml:"summary_temperature"`

	TopK             int     `yaml:"top_k"`
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`

	MaxRetries int `yaml:"max_retries"`

	// ModelMaxTokens extends or overrides the built-in context-window table.
	ModelMaxTokens map[string]int `yaml:"model_max_tokens"`

	History   HistoryConfig   `yaml:"history"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Events    EventsConfig    `yaml:"events"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Model:              "gpt-4",
		MaxResponseTokens:  1000,
		Temperature:        0,
		TopP:               1,
		PresencePenalty:    0,
		FrequencyPenalty:   0,
		PromptTemplate:     defaultPromptTemplate,
		Encoding:           "cl100k_base",
		ChunkSize:          512,
		ChunkOverlap:       0,
		MaxSummaryTokens:   256,
		SummaryTemperature: 0.7,
		TopK:               3,
		SimilarityCutoff:   0.7,
		MaxRetries:         3,
		History:            HistoryConfig{Backend: "memory"},
		Knowledge:          KnowledgeConfig{RootPath: "."},
		Events:             EventsConfig{Transport: "none"},
	}
}

// Load reads a yaml config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate fails fast on configuration that would break the pipeline at
// runtime.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return errors.Wrap(ErrInvalidConfig, "model is empty")
	}
	if c.MaxResponseTokens <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_response_tokens %d must be positive", c.MaxResponseTokens)
	}
	if err := chatbot.ValidatePromptTemplate(c.PromptTemplate); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "prompt_template: %v", err)
	}
	if c.ChunkSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "chunk_size %d must be positive", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return errors.Wrapf(ErrInvalidConfig, "chunk_overlap %d must be non-negative", c.ChunkOverlap)
	}
	if c.ChunkSize-c.ChunkOverlap <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "chunk_size %d must exceed chunk_overlap %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.MaxSummaryTokens <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_summary_tokens %d must be positive", c.MaxSummaryTokens)
	}
	if c.TopK <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "top_k %d must be positive", c.TopK)
	}
	if c.MaxRetries <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_retries %d must be positive", c.MaxRetries)
	}
	switch c.History.Backend {
	case "memory", "redis", "sqlite":
	default:
		return errors.Wrapf(ErrInvalidConfig, "history backend %q must be memory, redis or sqlite", c.History.Backend)
	}
	switch c.Events.Transport {
	case "none", "gochannel", "redis":
	default:
		return errors.Wrapf(ErrInvalidConfig, "events transport %q must be none, gochannel or redis", c.Events.Transport)
	}
	return nil
}
