package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Addr           string `yaml:"addr"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	} `yaml:"http"`
	Dev struct {
		Mode bool `yaml:"mode"`
	} `yaml:"dev"`
	LLM struct {
		Provider   string        `yaml:"provider"`
		BaseURL    string        `yaml:"base_url"`
		Model      string        `yaml:"model"`
		APIKey     string        `yaml:"api_key"`
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"llm"`
	Sentiment struct {
		Provider string        `yaml:"provider"`
		URL      string        `yaml:"url"`
		APIKey   string        `yaml:"api_key"`
		Model    string        `yaml:"model"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"sentiment"`
	OCR struct {
		Tesseract string `yaml:"tesseract"`
		Pdftoppm  string `yaml:"pdftoppm"`
		Lang      string `yaml:"lang"`
		DPI       int    `yaml:"dpi"`
		MaxPages  int    `yaml:"max_pages"`
	} `yaml:"ocr"`
	Audio struct {
		Provider string `yaml:"provider"`
		BaseURL  string `yaml:"base_url"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"audio"`
	YouTube struct {
		Ytdlp string `yaml:"ytdlp"`
		Lang  string `yaml:"lang"`
	} `yaml:"youtube"`
	Session struct {
		Backend   string        `yaml:"backend"`
		Capacity  int           `yaml:"capacity"`
		TTL       time.Duration `yaml:"ttl"`
		MaxRounds int           `yaml:"max_rounds"`
		KeyPrefix string        `yaml:"key_prefix"`
	} `yaml:"session"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Orchestrator struct {
		ClassifyTimeout time.Duration `yaml:"classify_timeout"`
		TaskTimeout     time.Duration `yaml:"task_timeout"`
		ExtractTimeout  time.Duration `yaml:"extract_timeout"`
	} `yaml:"orchestrator"`
	MCP struct {
		ProtocolVersion string   `yaml:"protocol_version"`
		AllowOrigins    []string `yaml:"allow_origins"`
		APIKey          string   `yaml:"api_key"`
	} `yaml:"mcp"`
	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8000"
	cfg.HTTP.MaxUploadBytes = 25 << 20
	cfg.Dev.Mode = true
	cfg.LLM.Provider = "noop"
	cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	cfg.LLM.Model = "llama-3.1-8b-instant"
	cfg.LLM.Timeout = 60 * time.Second
	cfg.LLM.MaxRetries = 2
	cfg.Sentiment.Provider = "lexicon"
	cfg.Sentiment.URL = "https://api-inference.huggingface.co/models"
	cfg.Sentiment.Model = "distilbert-base-uncased-finetuned-sst-2-english"
	cfg.Sentiment.Timeout = 30 * time.Second
	cfg.OCR.Tesseract = "tesseract"
	cfg.OCR.Pdftoppm = "pdftoppm"
	cfg.OCR.Lang = "eng"
	cfg.OCR.DPI = 200
	cfg.Audio.Provider = "disabled"
	cfg.Audio.Model = "whisper-1"
	cfg.YouTube.Ytdlp = "yt-dlp"
	cfg.YouTube.Lang = "en"
	cfg.Session.Backend = "memory"
	cfg.Session.Capacity = 1024
	cfg.Session.TTL = 30 * time.Minute
	cfg.Session.KeyPrefix = "intentflow:session"
	cfg.Orchestrator.ClassifyTimeout = 60 * time.Second
	cfg.Orchestrator.TaskTimeout = 90 * time.Second
	cfg.Orchestrator.ExtractTimeout = 120 * time.Second
	cfg.MCP.ProtocolVersion = "2025-11-25"
	cfg.Log.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first configuration error that would prevent a
// backend from being constructed.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "noop", "disabled":
	case "openai":
		if c.LLM.APIKey == "" {
			return errors.New("missing llm.api_key (or IF_LLM_API_KEY) for openai provider")
		}
	default:
		return errors.New("unknown llm.provider: " + c.LLM.Provider)
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("missing redis.url (or IF_REDIS_URL) for redis session backend")
		}
	default:
		return errors.New("unknown session.backend: " + c.Session.Backend)
	}
	switch c.Sentiment.Provider {
	case "lexicon", "disabled":
	case "huggingface":
		if c.Sentiment.URL == "" {
			return errors.New("missing sentiment.url (or IF_SENTIMENT_URL) for huggingface provider")
		}
	default:
		return errors.New("unknown sentiment.provider: " + c.Sentiment.Provider)
	}
	switch c.Audio.Provider {
	case "whisper", "disabled":
	default:
		return errors.New("unknown audio.provider: " + c.Audio.Provider)
	}
	if c.Session.MaxRounds < 0 {
		return errors.New("session.max_rounds must be >= 0")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("IF_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("IF_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HTTP.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("IF_DEV_MODE"); v != "" {
		cfg.Dev.Mode = parseBool(v, cfg.Dev.Mode)
	}
	if v := os.Getenv("IF_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("IF_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("IF_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("IF_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	setDuration("IF_LLM_TIMEOUT", &cfg.LLM.Timeout)
	setInt("IF_LLM_MAX_RETRIES", &cfg.LLM.MaxRetries)
	if v := os.Getenv("IF_SENTIMENT_PROVIDER"); v != "" {
		cfg.Sentiment.Provider = v
	}
	if v := os.Getenv("IF_SENTIMENT_URL"); v != "" {
		cfg.Sentiment.URL = v
	}
	if v := os.Getenv("IF_SENTIMENT_API_KEY"); v != "" {
		cfg.Sentiment.APIKey = v
	}
	if v := os.Getenv("IF_SENTIMENT_MODEL"); v != "" {
		cfg.Sentiment.Model = v
	}
	setDuration("IF_SENTIMENT_TIMEOUT", &cfg.Sentiment.Timeout)
	if v := os.Getenv("IF_OCR_TESSERACT"); v != "" {
		cfg.OCR.Tesseract = v
	}
	if v := os.Getenv("IF_OCR_PDFTOPPM"); v != "" {
		cfg.OCR.Pdftoppm = v
	}
	if v := os.Getenv("IF_OCR_LANG"); v != "" {
		cfg.OCR.Lang = v
	}
	setInt("IF_OCR_DPI", &cfg.OCR.DPI)
	setInt("IF_OCR_MAX_PAGES", &cfg.OCR.MaxPages)
	if v := os.Getenv("IF_AUDIO_PROVIDER"); v != "" {
		cfg.Audio.Provider = v
	}
	if v := os.Getenv("IF_AUDIO_BASE_URL"); v != "" {
		cfg.Audio.BaseURL = v
	}
	if v := os.Getenv("IF_AUDIO_MODEL"); v != "" {
		cfg.Audio.Model = v
	}
	if v := os.Getenv("IF_AUDIO_API_KEY"); v != "" {
		cfg.Audio.APIKey = v
	}
	if v := os.Getenv("IF_YTDLP"); v != "" {
		cfg.YouTube.Ytdlp = v
	}
	if v := os.Getenv("IF_YOUTUBE_LANG"); v != "" {
		cfg.YouTube.Lang = v
	}
	if v := os.Getenv("IF_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	setInt("IF_SESSION_CAPACITY", &cfg.Session.Capacity)
	setDuration("IF_SESSION_TTL", &cfg.Session.TTL)
	setInt("IF_SESSION_MAX_ROUNDS", &cfg.Session.MaxRounds)
	if v := os.Getenv("IF_SESSION_KEY_PREFIX"); v != "" {
		cfg.Session.KeyPrefix = v
	}
	if v := os.Getenv("IF_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("IF_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	setDuration("IF_CLASSIFY_TIMEOUT", &cfg.Orchestrator.ClassifyTimeout)
	setDuration("IF_TASK_TIMEOUT", &cfg.Orchestrator.TaskTimeout)
	setDuration("IF_EXTRACT_TIMEOUT", &cfg.Orchestrator.ExtractTimeout)
	if v := os.Getenv("IF_MCP_PROTOCOL_VERSION"); v != "" {
		cfg.MCP.ProtocolVersion = v
	}
	if v := os.Getenv("IF_MCP_ALLOW_ORIGINS"); v != "" {
		cfg.MCP.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("IF_MCP_API_KEY"); v != "" {
		cfg.MCP.APIKey = v
	}
	if v := os.Getenv("IF_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("IF_LOG_JSON"); v != "" {
		cfg.Log.JSON = parseBool(v, cfg.Log.JSON)
	}

	// Whisper shares the chat provider's credentials unless told otherwise.
	if cfg.Audio.APIKey == "" {
		cfg.Audio.APIKey = cfg.LLM.APIKey
	}
	if cfg.Audio.BaseURL == "" {
		cfg.Audio.BaseURL = cfg.LLM.BaseURL
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
