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

// Config aggregates every setting consumed by the service.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Audio     AudioConfig
	Chat      ChatConfig
	Billing   BillingConfig
	Redis     RedisConfig
	Knowledge KnowledgeConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	audio, err := loadAudioConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	billing, err := loadBillingConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Audio:     audio,
		Chat:      chat,
		Billing:   billing,
		Redis:     loadRedisConfig(),
		Knowledge: loadKnowledgeConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the language-model provider.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat-model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
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

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// ProviderConfig describes one speech-provider endpoint.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Configured reports whether the provider can be called.
func (p ProviderConfig) Configured() bool {
	return p.BaseURL != "" && p.APIKey != ""
}

// AudioConfig groups the transcription and synthesis providers.
type AudioConfig struct {
	Transcription ProviderConfig
	Synthesis     ProviderConfig
	Fallback      ProviderConfig
	Timeout       time.Duration
}

// Enabled reports whether voice round-trips are possible at all.
func (c AudioConfig) Enabled() bool {
	return c.Transcription.Configured() && c.Synthesis.Configured()
}

func loadAudioConfig() (AudioConfig, error) {
	timeout, err := parseDurationEnv("AUDIO_TIMEOUT", 20*time.Second)
	if err != nil {
		return AudioConfig{}, err
	}

	return AudioConfig{
		Transcription: ProviderConfig{
			BaseURL: strings.TrimSpace(os.Getenv("STT_BASE_URL")),
			APIKey:  strings.TrimSpace(os.Getenv("STT_API_KEY")),
		},
		Synthesis: ProviderConfig{
			BaseURL: strings.TrimSpace(os.Getenv("TTS_BASE_URL")),
			APIKey:  strings.TrimSpace(os.Getenv("TTS_API_KEY")),
		},
		Fallback: ProviderConfig{
			BaseURL: strings.TrimSpace(os.Getenv("TTS_FALLBACK_BASE_URL")),
			APIKey:  strings.TrimSpace(os.Getenv("TTS_FALLBACK_API_KEY")),
		},
		Timeout: timeout,
	}, nil
}

// ChatConfig tunes the buffering and orchestration core.
type ChatConfig struct {
	DebounceWindow  time.Duration
	FlushTimeout    time.Duration
	IdleEviction    time.Duration
	DisconnectGrace time.Duration
	HistoryWindow   int
	MaxWorkers      int64
}

func loadChatConfig() (ChatConfig, error) {
	debounce, err := parseDurationEnv("CHAT_DEBOUNCE_WINDOW", 600*time.Millisecond)
	if err != nil {
		return ChatConfig{}, err
	}

	flushTimeout, err := parseDurationEnv("CHAT_FLUSH_TIMEOUT", 90*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}

	idle, err := parseDurationEnv("CHAT_IDLE_EVICTION", 30*time.Minute)
	if err != nil {
		return ChatConfig{}, err
	}

	grace, err := parseDurationEnv("CHAT_DISCONNECT_GRACE", 2*time.Minute)
	if err != nil {
		return ChatConfig{}, err
	}

	history := 10
	if override, err := parseOptionalIntEnv("CHAT_HISTORY_WINDOW"); err != nil {
		return ChatConfig{}, err
	} else if override != nil && *override > 0 {
		history = *override
	}

	workers := int64(16)
	if override, err := parseOptionalIntEnv("CHAT_MAX_WORKERS"); err != nil {
		return ChatConfig{}, err
	} else if override != nil && *override > 0 {
		workers = int64(*override)
	}

	return ChatConfig{
		DebounceWindow:  debounce,
		FlushTimeout:    flushTimeout,
		IdleEviction:    idle,
		DisconnectGrace: grace,
		HistoryWindow:   history,
		MaxWorkers:      workers,
	}, nil
}

// BillingConfig fixes the per-feature credit costs.
type BillingConfig struct {
	TextCost  int64
	VoiceCost int64
	Timeout   time.Duration
}

func loadBillingConfig() (BillingConfig, error) {
	text := int64(1)
	if override, err := parseOptionalIntEnv("BILLING_TEXT_COST"); err != nil {
		return BillingConfig{}, err
	} else if override != nil && *override >= 0 {
		text = int64(*override)
	}

	voice := int64(5)
	if override, err := parseOptionalIntEnv("BILLING_VOICE_COST"); err != nil {
		return BillingConfig{}, err
	} else if override != nil && *override >= 0 {
		voice = int64(*override)
	}

	timeout, err := parseDurationEnv("BILLING_TIMEOUT", 5*time.Second)
	if err != nil {
		return BillingConfig{}, err
	}

	return BillingConfig{TextCost: text, VoiceCost: voice, Timeout: timeout}, nil
}

// RedisConfig locates the Redis instance shared by the credit ledger and
// the history sink. Empty Addr selects the in-memory fallbacks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func loadRedisConfig() RedisConfig {
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	return RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DB:       db,
	}
}

// KnowledgeConfig locates the external semantic-search service.
type KnowledgeConfig struct {
	BaseURL string
	APIKey  string
	TopK    int
}

// Enabled reports whether knowledge retrieval is configured.
func (c KnowledgeConfig) Enabled() bool { return c.BaseURL != "" }

func loadKnowledgeConfig() KnowledgeConfig {
	topK := 3
	if raw := strings.TrimSpace(os.Getenv("KNOWLEDGE_TOP_K")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			topK = parsed
		}
	}
	return KnowledgeConfig{
		BaseURL: strings.TrimSpace(os.Getenv("KNOWLEDGE_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("KNOWLEDGE_API_KEY")),
		TopK:    topK,
	}
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
