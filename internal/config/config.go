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

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Chat       ChatConfig
	Speech     SpeechConfig
	Classifier ClassifierConfig
	Issues     IssuesConfig
	Catalog    CatalogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	classifier, err := loadClassifierConfig()
	if err != nil {
		return nil, err
	}

	issues, err := loadIssuesConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Chat:       chat,
		Speech:     speech,
		Classifier: classifier,
		Issues:     issues,
		Catalog:    CatalogConfig{Path: strings.TrimSpace(os.Getenv("VEHICLE_CATALOG"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	// SessionIdleTTL 是无人订阅的会话被回收前的最长空闲时间，0 表示不回收。
	SessionIdleTTL time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	idleTTL, err := parseDurationEnv("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins, SessionIdleTTL: idleTTL}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins, SessionIdleTTL: idleTTL}, nil
}

// ChatConfig 描述聊天助手配置。
type ChatConfig struct {
	ReplyDelay time.Duration
}

func loadChatConfig() (ChatConfig, error) {
	delay, err := parseDurationEnv("CHAT_REPLY_DELAY", 1500*time.Millisecond)
	if err != nil {
		return ChatConfig{}, err
	}
	return ChatConfig{ReplyDelay: delay}, nil
}

// SpeechConfig 描述语音识别相关配置
type SpeechConfig struct {
	AppID           string
	AccessToken     string
	APIKey          string
	Endpoint        string
	ASRModel        string
	ASRLanguage     string
	SampleRate      int
	ConcurrentMode  bool
	AudioFormat     string
	Timeout         int
	MockLatency     time.Duration
	MaxCaptures     int
	MaxCaptureBytes int
}

// Enabled 表示是否提供了真实识别服务所需的凭证。
func (c SpeechConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

// ASRConfig converts the settings into the recognition client config.
func (c SpeechConfig) ASRConfig() *speech.ASRConfig {
	return &speech.ASRConfig{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		Endpoint:       c.Endpoint,
		ConcurrentMode: c.ConcurrentMode,
		Model:          c.ASRModel,
		Language:       c.ASRLanguage,
		SampleRate:     c.SampleRate,
		Timeout:        c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	sampleRate := 16000
	if override, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	mockLatency, err := parseDurationEnv("SPEECH_MOCK_LATENCY", 2*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	maxCaptures := 0
	if override, err := parseOptionalIntEnv("SPEECH_MAX_CAPTURES"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		maxCaptures = *override
	}

	// 默认 10MB，约 5 分钟 16kHz PCM
	maxBytes := 10 << 20
	if override, err := parseOptionalIntEnv("SPEECH_MAX_CAPTURE_BYTES"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		maxBytes = *override
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:           strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:     accessToken,
		APIKey:          apiKey,
		Endpoint:        getEnvOrDefault("SPEECH_ASR_ENDPOINT", ""),
		ASRModel:        getEnvOrDefault("SPEECH_ASR_MODEL", ""),
		ASRLanguage:     getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-IN"),
		SampleRate:      sampleRate,
		ConcurrentMode:  concurrent,
		AudioFormat:     getEnvOrDefault("SPEECH_AUDIO_FORMAT", "wav"),
		Timeout:         timeoutSeconds,
		MockLatency:     mockLatency,
		MaxCaptures:     maxCaptures,
		MaxCaptureBytes: maxBytes,
	}, nil
}

// Classifier modes.
const (
	ClassifierMock  = "mock"
	ClassifierRules = "rules"
	ClassifierLLM   = "llm"
)

// ClassifierConfig 描述问题分类器配置。
type ClassifierConfig struct {
	Mode        string
	MockLatency time.Duration
	LLM         LLMConfig
}

func loadClassifierConfig() (ClassifierConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("CLASSIFIER_MODE", ClassifierMock))
	switch mode {
	case ClassifierMock, ClassifierRules, ClassifierLLM:
	default:
		return ClassifierConfig{}, fmt.Errorf("invalid CLASSIFIER_MODE value %q", mode)
	}

	latency, err := parseDurationEnv("CLASSIFIER_MOCK_LATENCY", 1500*time.Millisecond)
	if err != nil {
		return ClassifierConfig{}, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return ClassifierConfig{}, err
	}

	if mode == ClassifierLLM && !llm.Enabled() {
		return ClassifierConfig{}, fmt.Errorf("CLASSIFIER_MODE=llm requires ARK_MODEL and ARK_API_KEY (or ARK_ACCESS_KEY + ARK_SECRET_KEY)")
	}

	return ClassifierConfig{Mode: mode, MockLatency: latency, LLM: llm}, nil
}

// LLMConfig 描述大模型相关配置。
type LLMConfig struct {
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

// Enabled 表示是否提供了必需的密钥。
func (c LLMConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c LLMConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
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

func loadLLMConfig() (LLMConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// IssuesConfig 描述问题提交与存储配置。
type IssuesConfig struct {
	// Endpoint is the remote REST base URL; empty means the local store.
	Endpoint      string
	StorePath     string
	SubmitTimeout time.Duration
}

func loadIssuesConfig() (IssuesConfig, error) {
	timeout, err := parseDurationEnv("ISSUES_SUBMIT_TIMEOUT", 15*time.Second)
	if err != nil {
		return IssuesConfig{}, err
	}
	return IssuesConfig{
		Endpoint:      strings.TrimSpace(os.Getenv("ISSUES_ENDPOINT")),
		StorePath:     strings.TrimSpace(os.Getenv("ISSUE_STORE_PATH")),
		SubmitTimeout: timeout,
	}, nil
}

// CatalogConfig points at an optional YAML vehicle catalog.
type CatalogConfig struct {
	Path string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 支持 "1500ms"、"2s" 这类写法，纯数字按毫秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
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
