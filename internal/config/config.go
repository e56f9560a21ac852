package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"
)

// 应答模式。
const (
	ResponderModeHeuristic = "heuristic"
	ResponderModeLLM       = "llm"
)

// Config 聚合整个服务与客户端的配置项。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	AI      AIConfig      `yaml:"ai"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default 返回所有配置项的默认值。
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		AI: AIConfig{
			BaseURL:       "https://ark.cn-beijing.volces.com/api/v3",
			Region:        "cn-beijing",
			ResponderMode: ResponderModeHeuristic,
		},
		Client: ClientConfig{
			APIBaseURL:         "http://localhost:8080",
			LiveURL:            "ws://localhost:8080/ws/chat",
			MaxMessageLength:   5000,
			SendQueueDepth:     50,
			ReconnectBaseDelay: 5 * time.Second,
			ReconnectMaxDelay:  60 * time.Second,
			ReconnectJitter:    0.2,
			ResponderTimeout:   15 * time.Second,
			SessionStore:       "file",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load 加载配置：先读取 CONFIG_FILE 指定的 YAML 文件（可选），再用环境变量覆盖。
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadServerConfig(&cfg.Server); err != nil {
		return nil, err
	}
	if err := loadAIConfig(&cfg.AI); err != nil {
		return nil, err
	}
	if err := loadClientConfig(&cfg.Client); err != nil {
		return nil, err
	}
	loadLoggingConfig(&cfg.Logging)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadFile 读取 YAML 配置，${VAR} 会被替换为对应的环境变量。
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Validate 校验配置取值。
func (c *Config) Validate() error {
	switch c.AI.ResponderMode {
	case ResponderModeHeuristic, ResponderModeLLM:
	default:
		return fmt.Errorf("invalid RESPONDER_MODE value %q", c.AI.ResponderMode)
	}

	switch c.Client.SessionStore {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid SESSION_STORE value %q", c.Client.SessionStore)
	}

	if c.Client.MaxMessageLength <= 0 {
		return fmt.Errorf("invalid MAX_MESSAGE_LENGTH value %d", c.Client.MaxMessageLength)
	}
	if c.Client.SendQueueDepth <= 0 {
		return fmt.Errorf("invalid SEND_QUEUE_DEPTH value %d", c.Client.SendQueueDepth)
	}
	if c.Client.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("invalid RECONNECT_BASE_DELAY value %s", c.Client.ReconnectBaseDelay)
	}
	if c.Client.ReconnectMaxDelay < c.Client.ReconnectBaseDelay {
		return fmt.Errorf("invalid RECONNECT_MAX_DELAY value %s: below RECONNECT_BASE_DELAY %s", c.Client.ReconnectMaxDelay, c.Client.ReconnectBaseDelay)
	}
	if c.Client.ReconnectJitter < 0 || c.Client.ReconnectJitter >= 1 {
		return fmt.Errorf("invalid RECONNECT_JITTER value %v", c.Client.ReconnectJitter)
	}
	if c.Client.ResponderTimeout <= 0 {
		return fmt.Errorf("invalid RESPONDER_TIMEOUT value %s", c.Client.ResponderTimeout)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(cfg *ServerConfig) error {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return nil
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return nil
	}

	if strings.Contains(port, " ") {
		return fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey        string   `yaml:"api_key"`
	AccessKey     string   `yaml:"access_key"`
	SecretKey     string   `yaml:"secret_key"`
	Model         string   `yaml:"model"`
	BaseURL       string   `yaml:"base_url"`
	Region        string   `yaml:"region"`
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	MaxTokens     *int     `yaml:"max_tokens"`
	ResponderMode string   `yaml:"responder_mode"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
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

func loadAIConfig(cfg *AIConfig) error {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return err
	}
	if temperature != nil {
		cfg.Temperature = temperature
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return err
	}
	if topP != nil {
		cfg.TopP = topP
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return err
	}
	if maxTokens != nil {
		cfg.MaxTokens = maxTokens
	}

	overrideString(&cfg.APIKey, "ARK_API_KEY")
	overrideString(&cfg.AccessKey, "ARK_ACCESS_KEY")
	overrideString(&cfg.SecretKey, "ARK_SECRET_KEY")
	overrideString(&cfg.Model, "Model")
	overrideString(&cfg.BaseURL, "ARK_BASE_URL")
	overrideString(&cfg.Region, "ARK_REGION")
	overrideString(&cfg.ResponderMode, "RESPONDER_MODE")
	cfg.ResponderMode = strings.ToLower(cfg.ResponderMode)
	return nil
}

// ClientConfig 描述终端客户端（supportcli）的连接与会话配置。
type ClientConfig struct {
	APIBaseURL         string        `yaml:"api_base_url"`
	LiveURL            string        `yaml:"live_url"`
	MaxMessageLength   int           `yaml:"max_message_length"`
	SendQueueDepth     int           `yaml:"send_queue_depth"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter    float64       `yaml:"reconnect_jitter"`
	ResponderTimeout   time.Duration `yaml:"responder_timeout"`
	SessionStore       string        `yaml:"session_store"`
	SessionStorePath   string        `yaml:"session_store_path"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db"`
}

// StorePath 返回会话存储路径，未配置时按存储类型给出默认值。
func (c ClientConfig) StorePath() string {
	if c.SessionStorePath != "" {
		return c.SessionStorePath
	}
	if c.SessionStore == "sqlite" {
		return filepath.Join(".z-helpdesk", "session.db")
	}
	return filepath.Join(".z-helpdesk", "session.json")
}

func loadClientConfig(cfg *ClientConfig) error {
	overrideString(&cfg.APIBaseURL, "API_BASE_URL")
	overrideString(&cfg.LiveURL, "LIVE_URL")
	overrideString(&cfg.SessionStore, "SESSION_STORE")
	cfg.SessionStore = strings.ToLower(cfg.SessionStore)
	overrideString(&cfg.SessionStorePath, "SESSION_STORE_PATH")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_MESSAGE_LENGTH", &cfg.MaxMessageLength},
		{"SEND_QUEUE_DEPTH", &cfg.SendQueueDepth},
		{"REDIS_DB", &cfg.RedisDB},
	}
	for _, item := range ints {
		val, err := parseOptionalIntEnv(item.key)
		if err != nil {
			return err
		}
		if val != nil {
			*item.dst = *val
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RECONNECT_BASE_DELAY", &cfg.ReconnectBaseDelay},
		{"RECONNECT_MAX_DELAY", &cfg.ReconnectMaxDelay},
		{"RESPONDER_TIMEOUT", &cfg.ResponderTimeout},
	}
	for _, item := range durations {
		val, err := parseOptionalDurationEnv(item.key)
		if err != nil {
			return err
		}
		if val != nil {
			*item.dst = *val
		}
	}

	jitter, err := parseOptionalFloatEnv("RECONNECT_JITTER")
	if err != nil {
		return err
	}
	if jitter != nil {
		cfg.ReconnectJitter = *jitter
	}
	return nil
}

// LoggingConfig 描述日志级别与输出格式。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func loadLoggingConfig(cfg *LoggingConfig) {
	overrideString(&cfg.Level, "LOG_LEVEL")
	overrideString(&cfg.Format, "LOG_FORMAT")
}

func overrideString(dst *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*dst = value
	}
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

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
