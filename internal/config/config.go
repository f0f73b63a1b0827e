package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	OpenAI  OpenAIConfig
	Storage StorageConfig
	Studio  StudioConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	openAI, err := loadOpenAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	studio, err := loadStudioConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, OpenAI: openAI, Storage: storage, Studio: studio}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Provider 选择聊天所用的大模型服务。
type Provider string

const (
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
)

// AIConfig 描述聊天模型相关配置。
type AIConfig struct {
	Provider    Provider
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderArk))))
	if provider != ProviderArk && provider != ProviderOpenAI {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    provider,
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// OpenAIConfig 描述 OpenAI 兼容接口配置，图片生成始终走这里。
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	ImageModel string
	ImageSize  string
	// Timeout 仅限制单次图片生成请求，聊天流随请求上下文结束。
	Timeout time.Duration
}

// Enabled 表示是否提供了 OpenAI 密钥。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadOpenAIConfig() (OpenAIConfig, error) {
	timeout, err := parseDurationEnv("OPENAI_TIMEOUT", 2*time.Minute)
	if err != nil {
		return OpenAIConfig{}, err
	}

	return OpenAIConfig{
		APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:    getEnvOrDefault("OPENAI_BASE_URL", ""),
		ChatModel:  getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ImageModel: getEnvOrDefault("OPENAI_IMAGE_MODEL", "dall-e-3"),
		ImageSize:  getEnvOrDefault("OPENAI_IMAGE_SIZE", "1024x1024"),
		Timeout:    timeout,
	}, nil
}

// StorageConfig 描述会话持久化位置。
type StorageConfig struct {
	Backend string
	Path    string
}

func loadStorageConfig() (StorageConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", "sqlite"))

	var defaultPath string
	switch backend {
	case "sqlite":
		defaultPath = "data/studio.db"
	case "file":
		defaultPath = "data"
	case "memory":
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value %q", backend)
	}

	return StorageConfig{
		Backend: backend,
		Path:    getEnvOrDefault("STORAGE_PATH", defaultPath),
	}, nil
}

// StudioConfig 描述聊天与图片控制器的行为参数。
type StudioConfig struct {
	AutosaveInterval       time.Duration
	TypingSpeed            time.Duration
	ImageEstimatedDuration time.Duration
	PersonaCatalog         string
}

func loadStudioConfig() (StudioConfig, error) {
	autosave, err := parseDurationEnv("AUTOSAVE_INTERVAL", 2*time.Minute)
	if err != nil {
		return StudioConfig{}, err
	}
	if autosave <= 0 {
		return StudioConfig{}, fmt.Errorf("AUTOSAVE_INTERVAL must be positive, got %s", autosave)
	}

	typing, err := parseDurationEnv("TYPING_SPEED", 30*time.Millisecond)
	if err != nil {
		return StudioConfig{}, err
	}

	estimate, err := parseDurationEnv("IMAGE_ESTIMATED_DURATION", 15*time.Second)
	if err != nil {
		return StudioConfig{}, err
	}

	return StudioConfig{
		AutosaveInterval:       autosave,
		TypingSpeed:            typing,
		ImageEstimatedDuration: estimate,
		PersonaCatalog:         strings.TrimSpace(os.Getenv("PERSONA_CATALOG")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
