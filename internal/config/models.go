package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MatchingConfig represents the configuration of the matching run
type MatchingConfig struct {
	Cooldown          time.Duration `validate:"gt=0"`
	ExclusiveRuns     bool
	LeaseTTL          time.Duration `validate:"gt=0"`
	NotifyConcurrency int           `validate:"min=1,max=64"`
	SendTimeout       time.Duration `validate:"gte=0"`
	HistoryLimit      int           `validate:"min=1,max=500"`
}

// StoreConfig represents the configuration of the profile store
type StoreConfig struct {
	Type             string `validate:"oneof=memory sqlite mysql postgres"`
	SQLitePath       string `validate:"required_if=Type sqlite"`
	MySQLDSN         string `validate:"required_if=Type mysql"`
	PostgresURL      string `validate:"required_if=Type postgres"`
	PostgresMaxConns int32  `validate:"gte=0"`
	SeedFile         string
}

// MailConfig represents the configuration of the notification transport
type MailConfig struct {
	Transport      string `validate:"oneof=smtp log"`
	From           string `validate:"required"`
	AvatarBaseURL  string `validate:"omitempty,url"`
	AllowedDomains []string
}

// SMTPConfig represents the configuration of the SMTP relay
type SMTPConfig struct {
	Host                    string `validate:"required,hostname_rfc1123|ip"`
	Port                    int    `validate:"min=1,max=65535"`
	Username                string
	Password                string `validate:"required_with=Username"`
	TLSMode                 string `validate:"oneof=none starttls tls"`
	Timeout                 time.Duration
	// HeloName is sent after STARTTLS in starttls mode; the EHLO before it says "localhost"
	HeloName                string
	BreakerFailureThreshold uint32 `validate:"min=1"`
	BreakerOpenTimeout      time.Duration
}

// IntroConfig represents the configuration of the intro writer
type IntroConfig struct {
	Provider  string `validate:"oneof=none bedrock gemini openai"`
	Timeout   time.Duration
	MaxLength int `validate:"min=20"`
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ServerConfig represents the configuration of the HTTP trigger
type ServerConfig struct {
	ListenAddress string `validate:"required"`
	CronSecret    string
	RateLimit     int `validate:"gte=0"`
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// durations reads several duration keys, returning the first parse error
func (c *Config) durations(keys ...string) ([]time.Duration, error) {
	out := make([]time.Duration, len(keys))
	for i, key := range keys {
		d, err := c.GetDuration(key)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func check(section string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s configuration: %w", section, err)
	}
	return nil
}

// GetMatching returns the matching configuration
func (c *Config) GetMatching() (MatchingConfig, error) {
	d, err := c.durations("matching.cooldown", "matching.lease_ttl", "matching.send_timeout")
	if err != nil {
		return MatchingConfig{}, err
	}
	m := MatchingConfig{
		Cooldown:          d[0],
		ExclusiveRuns:     c.GetBool("matching.exclusive_runs"),
		LeaseTTL:          d[1],
		NotifyConcurrency: c.GetInt("matching.notify_concurrency"),
		SendTimeout:       d[2],
		HistoryLimit:      c.GetInt("matching.history_limit"),
	}
	return m, check("matching", m)
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	s := StoreConfig{
		Type:             c.GetString("store.type"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		PostgresURL:      c.GetString("store.postgres_url"),
		PostgresMaxConns: int32(c.GetInt("store.postgres_max_conns")),
		SeedFile:         c.GetString("store.seed_file"),
	}
	return s, check("store", s)
}

// GetMail returns the mail configuration
func (c *Config) GetMail() (MailConfig, error) {
	m := MailConfig{
		Transport:      c.GetString("mail.transport"),
		From:           c.GetString("mail.from"),
		AvatarBaseURL:  c.GetString("mail.avatar_base_url"),
		AllowedDomains: c.GetStringSlice("mail.allowed_domains"),
	}
	return m, check("mail", m)
}

// GetSMTP returns the SMTP relay configuration
func (c *Config) GetSMTP() (SMTPConfig, error) {
	d, err := c.durations("mail.smtp.timeout", "mail.breaker.open_timeout")
	if err != nil {
		return SMTPConfig{}, err
	}
	s := SMTPConfig{
		Host:                    c.GetString("mail.smtp.host"),
		Port:                    c.GetInt("mail.smtp.port"),
		Username:                c.GetString("mail.smtp.username"),
		Password:                c.GetString("mail.smtp.password"),
		TLSMode:                 c.GetString("mail.smtp.tls_mode"),
		Timeout:                 d[0],
		HeloName:                c.GetString("mail.smtp.helo_name"),
		BreakerFailureThreshold: uint32(c.GetInt("mail.breaker.failure_threshold")),
		BreakerOpenTimeout:      d[1],
	}
	return s, check("smtp", s)
}

// GetIntro returns the intro writer configuration
func (c *Config) GetIntro() (IntroConfig, error) {
	timeout, err := c.GetDuration("intro.timeout")
	if err != nil {
		return IntroConfig{}, err
	}
	i := IntroConfig{
		Provider:  c.GetString("intro.provider"),
		Timeout:   timeout,
		MaxLength: c.GetInt("intro.max_length"),
	}
	return i, check("intro", i)
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetServer returns the HTTP trigger configuration
func (c *Config) GetServer() (ServerConfig, error) {
	d, err := c.durations("server.read_timeout", "server.write_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	s := ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		CronSecret:    c.GetString("server.cron_secret"),
		RateLimit:     c.GetInt("server.rate_limit"),
		ReadTimeout:   d[0],
		WriteTimeout:  d[1],
	}
	return s, check("server", s)
}
