package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zemetsskiy/subgate/pkg/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   logger.Config  `yaml:"logger"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Discord  DiscordConfig  `yaml:"discord"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Quote    QuoteConfig    `yaml:"quote"`
	Chains   ChainsConfig   `yaml:"chains"`
	Payment  PaymentConfig  `yaml:"payment"`
	Plans    []PlanConfig   `yaml:"plans"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	Environment   string `yaml:"environment"`
	SessionSecret string `yaml:"session_secret"`
	TemplateGlob  string `yaml:"template_glob"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	DBName   string `yaml:"name"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Enabled  bool   `yaml:"enabled"`
}

type DiscordConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Scope        string `yaml:"scope"`
	BotToken     string `yaml:"bot_token"`
	GuildID      string `yaml:"guild_id"`
	RoleName     string `yaml:"role_name"`
	APIBaseURL   string `yaml:"api_base_url"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type QuoteConfig struct {
	BaseURL          string `yaml:"base_url"`
	Timeout          int    `yaml:"timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBackoffBase int    `yaml:"retry_backoff_base"`
}

// ChainsConfig maps a network identifier (polygon, arbitrum, sepolia,
// ethereum) to its JSON-RPC endpoint and the token contracts deployed there.
type ChainsConfig map[string]ChainConfig

type ChainConfig struct {
	RPCURL  string                 `yaml:"rpc_url"`
	Timeout time.Duration          `yaml:"timeout"`
	Tokens  map[string]TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Contract string `yaml:"contract"`
	Decimals int    `yaml:"decimals"`
}

type PaymentConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Window       time.Duration `yaml:"window"`
	Tolerance    float64       `yaml:"tolerance"`
	MaxWatchers  int           `yaml:"max_watchers"`
}

type PlanConfig struct {
	ID       string  `yaml:"id"`
	PriceUSD float64 `yaml:"price_usd"`
}

func Load() (*Config, error) {
	// Missing .env is fine in deployed environments where secrets come
	// from the process environment.
	_ = godotenv.Load()

	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	// RPC endpoints in config.yaml reference secrets like
	// ${INFURA_PROJECT_ID} from the environment.
	configData = []byte(os.ExpandEnv(string(configData)))

	var config Config
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DISCORD_CLIENT_SECRET"); v != "" {
		c.Discord.ClientSecret = v
	}
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		c.Discord.BotToken = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Payment.PollInterval == 0 {
		c.Payment.PollInterval = 2 * time.Second
	}
	if c.Payment.Window == 0 {
		c.Payment.Window = 10 * time.Minute
	}
	if c.Payment.Tolerance == 0 {
		c.Payment.Tolerance = 0.97
	}
	if c.Payment.MaxWatchers == 0 {
		c.Payment.MaxWatchers = 64
	}
	if c.Discord.APIBaseURL == "" {
		c.Discord.APIBaseURL = "https://discord.com/api"
	}
	if c.Server.TemplateGlob == "" {
		c.Server.TemplateGlob = "web/templates/*.html"
	}
}
