package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// AWSConfig holds shared AWS SDK settings.
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// BedrockEmbedderConfig configures the Bedrock Cohere embedder.
type BedrockEmbedderConfig struct {
	ModelID   string `yaml:"model_id"`
	InputType string `yaml:"input_type"`
	Region    string `yaml:"region"`
}

// OpenAIConfig holds configuration shared by the OpenAI-compatible clients.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeminiConfig holds configuration shared by the Gemini clients.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Bedrock *BedrockEmbedderConfig `yaml:"bedrock,omitempty"`
	OpenAI  *OpenAIConfig          `yaml:"openai,omitempty"`
	Gemini  *GeminiConfig          `yaml:"gemini,omitempty"`
}

// FieldsConfig names the stored source fields of an indexed element.
type FieldsConfig struct {
	Embedding   string `yaml:"embedding"`
	Text        string `yaml:"text"`
	ContentType string `yaml:"content_type"`
	Bucket      string `yaml:"bucket"`
	Key         string `yaml:"key"`
}

// OpenSearchConfig contains connection details for an OpenSearch k-NN index.
type OpenSearchConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	Service     string `yaml:"service"`
	Index       string `yaml:"index"`
	Unsigned    bool   `yaml:"unsigned"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	VectorName  string `yaml:"vector_name,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PostgresConfig contains connection details for a pgvector table.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type       string            `yaml:"type"`
	Fields     FieldsConfig      `yaml:"fields"`
	OpenSearch *OpenSearchConfig `yaml:"opensearch,omitempty"`
	Qdrant     *QdrantConfig     `yaml:"qdrant,omitempty"`
	Postgres   *PostgresConfig   `yaml:"postgres,omitempty"`
}

// GenerationParams are the fixed sampling parameters sent with every prompt.
type GenerationParams struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`
}

// BedrockGeneratorConfig configures the Bedrock Anthropic generator.
type BedrockGeneratorConfig struct {
	ModelID          string `yaml:"model_id"`
	AnthropicVersion string `yaml:"anthropic_version"`
	Region           string `yaml:"region"`
}

// AnthropicConfig configures the direct Anthropic API generator.
type AnthropicConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects and configures the text generator.
type GeneratorConfig struct {
	Type      string                  `yaml:"type"`
	Params    GenerationParams        `yaml:"params"`
	Bedrock   *BedrockGeneratorConfig `yaml:"bedrock,omitempty"`
	Anthropic *AnthropicConfig        `yaml:"anthropic,omitempty"`
	OpenAI    *OpenAIConfig           `yaml:"openai,omitempty"`
	Gemini    *GeminiConfig           `yaml:"gemini,omitempty"`
}

// AttachmentConfig configures how image attachments are resolved.
type AttachmentConfig struct {
	Type       string `yaml:"type"`
	ExpirySecs int    `yaml:"expiry_secs"`
	Region     string `yaml:"region"`
}

// PromptConfig selects the answer instruction template.
type PromptConfig struct {
	Language string `yaml:"language"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	TurnTimeoutSec  int    `yaml:"turn_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // prod, local, dev
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // used by the terminal UI
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	AWS         AWSConfig         `yaml:"aws"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Attachment  AttachmentConfig  `yaml:"attachment"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, expanding ${VAR} references and filling defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		AWS:         AWSConfig{Region: "us-east-1"},
		Embedder:    EmbedderConfig{Type: "bedrock"},
		VectorStore: VectorStoreConfig{Type: "opensearch", OpenSearch: &OpenSearchConfig{}},
		Generator:   GeneratorConfig{Type: "bedrock"},
		Attachment:  AttachmentConfig{Type: "s3"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *AppConfig) ApplyDefaults() {
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}

	if c.Embedder.Type == "" {
		c.Embedder.Type = "bedrock"
	}
	switch c.Embedder.Type {
	case "bedrock":
		if c.Embedder.Bedrock == nil {
			c.Embedder.Bedrock = &BedrockEmbedderConfig{}
		}
		if c.Embedder.Bedrock.ModelID == "" {
			c.Embedder.Bedrock.ModelID = "cohere.embed-multilingual-v3"
		}
		if c.Embedder.Bedrock.InputType == "" {
			c.Embedder.Bedrock.InputType = "search_document"
		}
	case "openai":
		if c.Embedder.OpenAI == nil {
			c.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(c.Embedder.OpenAI, "text-embedding-3-small")
	case "gemini":
		if c.Embedder.Gemini == nil {
			c.Embedder.Gemini = &GeminiConfig{}
		}
		applyGeminiDefaults(c.Embedder.Gemini, "text-embedding-004")
	}

	if c.VectorStore.Type == "" {
		c.VectorStore.Type = "opensearch"
	}
	f := &c.VectorStore.Fields
	if f.Embedding == "" {
		f.Embedding = "processed_element_embedding"
	}
	if f.Text == "" {
		f.Text = "processed_element"
	}
	if f.ContentType == "" {
		f.ContentType = "raw_element_type"
	}
	if f.Bucket == "" {
		f.Bucket = "s3_bucket"
	}
	if f.Key == "" {
		f.Key = "image_s3_path"
	}
	if c.VectorStore.Type == "opensearch" {
		if c.VectorStore.OpenSearch == nil {
			c.VectorStore.OpenSearch = &OpenSearchConfig{}
		}
		if c.VectorStore.OpenSearch.Service == "" {
			c.VectorStore.OpenSearch.Service = "aoss"
		}
		if c.VectorStore.OpenSearch.TimeoutSecs == 0 {
			c.VectorStore.OpenSearch.TimeoutSecs = 30
		}
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant != nil {
		if c.VectorStore.Qdrant.TimeoutSecs == 0 {
			c.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}

	if c.Generator.Type == "" {
		c.Generator.Type = "bedrock"
	}
	p := &c.Generator.Params
	if p.MaxTokens == 0 {
		p.MaxTokens = 4096
	}
	if p.TopP == 0 {
		p.TopP = 1
	}
	if p.TopK == 0 {
		p.TopK = 250
	}
	switch c.Generator.Type {
	case "bedrock":
		if c.Generator.Bedrock == nil {
			c.Generator.Bedrock = &BedrockGeneratorConfig{}
		}
		if c.Generator.Bedrock.ModelID == "" {
			c.Generator.Bedrock.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
		}
		if c.Generator.Bedrock.AnthropicVersion == "" {
			c.Generator.Bedrock.AnthropicVersion = "bedrock-2023-05-31"
		}
	case "anthropic":
		if c.Generator.Anthropic == nil {
			c.Generator.Anthropic = &AnthropicConfig{}
		}
		if c.Generator.Anthropic.APIKeyEnv == "" {
			c.Generator.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if c.Generator.Anthropic.Model == "" {
			c.Generator.Anthropic.Model = "claude-3-5-sonnet-latest"
		}
	case "openai":
		if c.Generator.OpenAI == nil {
			c.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(c.Generator.OpenAI, "gpt-4o-mini")
	case "gemini":
		if c.Generator.Gemini == nil {
			c.Generator.Gemini = &GeminiConfig{}
		}
		applyGeminiDefaults(c.Generator.Gemini, "gemini-1.5-flash")
	}

	if c.Attachment.Type == "" {
		c.Attachment.Type = "s3"
	}
	if c.Attachment.ExpirySecs == 0 {
		c.Attachment.ExpirySecs = 86400
	}

	if c.Prompt.Language == "" {
		c.Prompt.Language = "ja"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 300
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}

	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}
	if c.Logging.File == "" {
		c.Logging.File = "ragchat.log"
	}
}

func applyOpenAIDefaults(o *OpenAIConfig, model string) {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = 60
	}
}

func applyGeminiDefaults(g *GeminiConfig, model string) {
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "GEMINI_API_KEY"
	}
	if g.Model == "" {
		g.Model = model
	}
}

// Validate checks the configuration for correctness.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "bedrock", "openai", "gemini":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}

	switch c.VectorStore.Type {
	case "opensearch":
		if c.VectorStore.OpenSearch == nil {
			return errors.New("vector_store.opensearch config missing")
		}
		switch c.VectorStore.OpenSearch.Service {
		case "aoss", "es":
		default:
			return fmt.Errorf("vector_store.opensearch.service must be \"aoss\" or \"es\", got %q", c.VectorStore.OpenSearch.Service)
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil {
			return errors.New("vector_store.qdrant config missing")
		}
	case "pgvector":
		if c.VectorStore.Postgres == nil {
			return errors.New("vector_store.postgres config missing")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}

	switch c.Generator.Type {
	case "bedrock", "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("unknown generator: %s", c.Generator.Type)
	}
	if c.Generator.Params.MaxTokens < 0 {
		return fmt.Errorf("generator.params.max_tokens must be positive, got %d", c.Generator.Params.MaxTokens)
	}
	if c.Generator.Params.Temperature < 0 || c.Generator.Params.Temperature > 1 {
		return fmt.Errorf("generator.params.temperature must be within [0, 1], got %v", c.Generator.Params.Temperature)
	}

	if c.Attachment.Type != "s3" && c.Attachment.Type != "none" {
		return fmt.Errorf("unknown attachment resolver: %s", c.Attachment.Type)
	}
	if c.Attachment.ExpirySecs < 0 {
		return fmt.Errorf("attachment.expiry_secs must be positive, got %d", c.Attachment.ExpirySecs)
	}

	switch c.Prompt.Language {
	case "ja", "en":
	default:
		return fmt.Errorf("prompt.language must be \"ja\" or \"en\", got %q", c.Prompt.Language)
	}
	return nil
}

// CheckDeployment reports settings that have no meaningful default outside a
// specific deployment and must be supplied before any service is called.
func (c *AppConfig) CheckDeployment() error {
	switch c.VectorStore.Type {
	case "opensearch":
		if c.VectorStore.OpenSearch.Endpoint == "" {
			return errors.New("vector_store.opensearch.endpoint is required")
		}
		if c.VectorStore.OpenSearch.Index == "" {
			return errors.New("vector_store.opensearch.index is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" || c.VectorStore.Qdrant.Collection == "" {
			return errors.New("vector_store.qdrant.url and collection are required")
		}
	case "pgvector":
		if c.VectorStore.Postgres.DSN == "" || c.VectorStore.Postgres.Table == "" {
			return errors.New("vector_store.postgres.dsn and table are required")
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
