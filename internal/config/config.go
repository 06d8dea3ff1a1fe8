package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Auth      AuthConfig
	Store     StoreConfig
	Sentiment SentimentConfig
	AI        AIConfig
	Upload    UploadConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	sections := []struct {
		name   string
		target any
	}{
		{"server", &cfg.Server},
		{"firebase", &cfg.Firebase},
		{"auth", &cfg.Auth},
		{"store", &cfg.Store},
		{"sentiment", &cfg.Sentiment},
		{"ai", &cfg.AI},
		{"upload", &cfg.Upload},
	}
	for _, section := range sections {
		if err := envconfig.Process("", section.target); err != nil {
			return nil, fmt.Errorf("load %s config: %w", section.name, err)
		}
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.Provider {
	case AuthFirebase:
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required when AUTH_PROVIDER=%s", AuthJWT)
		}
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER: %q", c.Auth.Provider)
	}

	switch c.Store.Driver {
	case StoreFirestore, StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=%s", StoreSQLite)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %q", c.Store.Driver)
	}

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER: %q", c.AI.Provider)
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string `envconfig:"PORT" default:"5000"`
	FrontendOrigin string `envconfig:"FRONTEND_ORIGIN" default:"http://localhost:5173"`
	PublicBaseURL  string `envconfig:"API_BASE_URL" default:"http://localhost:5000"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`

	// Addr is derived from Port.
	Addr string `ignored:"true"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// FirebaseConfig 描述 Firebase Admin SDK 的初始化参数，认证与 Firestore 共用同一个 App。
type FirebaseConfig struct {
	CredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	ProjectID       string `envconfig:"FIREBASE_PROJECT_ID"`
	StorageBucket   string `envconfig:"FIREBASE_STORAGE_BUCKET"`
}

// NewApp 使用配置创建 Firebase App。凭证文件缺失时退回到应用默认凭证。
func (c FirebaseConfig) NewApp(ctx context.Context) (*firebase.App, error) {
	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		if _, err := os.Stat(c.CredentialsFile); err == nil {
			opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
		}
	}

	var appCfg *firebase.Config
	if c.ProjectID != "" || c.StorageBucket != "" {
		appCfg = &firebase.Config{ProjectID: c.ProjectID, StorageBucket: c.StorageBucket}
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

const (
	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

// AuthConfig 选择身份校验方式。
type AuthConfig struct {
	Provider  string `envconfig:"AUTH_PROVIDER" default:"firebase"`
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	JWTIssuer string `envconfig:"AUTH_JWT_ISSUER"`
}

const (
	StoreFirestore = "firestore"
	StoreSQLite    = "sqlite"
	StoreMemory    = "memory"
)

// StoreConfig 选择文档存储后端。
type StoreConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"firestore"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/serene.db"`
}

// SentimentConfig 描述情绪分类服务。
type SentimentConfig struct {
	APIKey  string        `envconfig:"HUGGINGFACE_API_KEY"`
	Model   string        `envconfig:"SENTIMENT_MODEL" default:"SamLowe/roberta-base-go_emotions"`
	BaseURL string        `envconfig:"SENTIMENT_BASE_URL" default:"https://api-inference.huggingface.co"`
	Timeout time.Duration `envconfig:"SENTIMENT_TIMEOUT" default:"10s"`
}

// Enabled 表示是否提供了分类服务密钥。
func (c SentimentConfig) Enabled() bool {
	return c.APIKey != ""
}

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string        `envconfig:"LLM_PROVIDER" default:"openai"`
	APIKey      string        `envconfig:"GROQ_API_KEY"`
	Model       string        `envconfig:"LLM_MODEL" default:"llama3-8b-8192"`
	BaseURL     string        `envconfig:"LLM_BASE_URL" default:"https://api.groq.com/openai/v1"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"800"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`

	ArkAPIKey  string `envconfig:"ARK_API_KEY"`
	ArkModel   string `envconfig:"ARK_MODEL"`
	ArkBaseURL string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion  string `envconfig:"ARK_REGION" default:"cn-beijing"`
}

// Enabled 表示当前 provider 是否具备密钥与模型。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.ArkAPIKey != "" && c.ArkModel != ""
	default:
		return c.APIKey != "" && c.Model != ""
	}
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("LLM credentials or model missing for provider %q", c.Provider)
	}

	temperature := c.Temperature
	maxTokens := c.MaxTokens

	switch c.Provider {
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.ArkBaseURL,
			Region:      c.ArkRegion,
			APIKey:      c.ArkAPIKey,
			Model:       c.ArkModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	default:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Timeout:     c.Timeout,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
	}
}

// UploadConfig 描述头像等上传文件的本地存放位置。
type UploadConfig struct {
	Dir      string `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"5242880"`
}
