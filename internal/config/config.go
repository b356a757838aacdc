// Package config loads service settings from the environment, an optional
// .env file, and an optional YAML overlay describing the models in use.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Addr string // Listen address (default ":8080")

	DBType          string // "sqlite" (default), "postgres" or "mongo"
	SQLitePath      string // default "data/articles.db"
	PostgresDSN     string
	MongoURI        string
	MongoDatabase   string // default "pinpress"
	MongoCollection string // default "articles"

	TextProvider       string // "replicate" (default), "openai" or "gemini"
	ImageProvider      string // "replicate" (default) or "openai"
	ReplicateAPIToken  string
	ReplicateBaseURL   string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	GeminiAPIKey       string
	Models             Models
	PollInterval       time.Duration // default 1s
	PollMaxAttempts    int           // default 300
	CoverPolicy        string        // "strict" (default) or "placeholder"
	PlaceholderURL     string
	SectionPlaceholder string
	SectionWorkers     int // default 1 (sequential)
	MaxSections        int // 0 (default) means uncapped
	GenerationTimeout  time.Duration

	AuthMode            string // "firebase" (default) or "static"
	FirebaseProjectID   string
	FirebaseCredentials string
	StaticTokens        map[string]string

	PinterestAppID       string
	PinterestAppSecret   string
	PinterestRedirectURI string
	PinterestBoardID     string

	TopicFeeds   []string
	TopicRefresh time.Duration
	TopicLimit   int

	MirrorImages       bool
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	GenerationRateLimit int // generation requests per owner per minute
}

// Models names the hosted models and the default generation options sent
// with each request. It can be overridden by the YAML file at MODELS_FILE.
type Models struct {
	TextModel          string  `yaml:"text_model"`
	PromptTemplate     string  `yaml:"prompt_template"`
	ImageModel         string  `yaml:"image_model"`
	ImageVersion       string  `yaml:"image_version"`
	ImageWidth         int     `yaml:"image_width"`
	ImageHeight        int     `yaml:"image_height"`
	InferenceSteps     int     `yaml:"inference_steps"`
	GuidanceScale      float64 `yaml:"guidance_scale"`
	Scheduler          string  `yaml:"scheduler"`
	NegativePrompt     string  `yaml:"negative_prompt"`
	TitleTemperature   float64 `yaml:"title_temperature"`
	ArticleTemperature float64 `yaml:"article_temperature"`
	TopP               float64 `yaml:"top_p"`
	PresencePenalty    float64 `yaml:"presence_penalty"`
	ArticleMaxTokens   int     `yaml:"article_max_tokens"`
}

const llamaPromptTemplate = "<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\nYou are a helpful assistant<|eot_id|><|start_header_id|>user<|end_header_id|>\n\n{prompt}<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n"

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := Config{
		Addr:                 os.Getenv("ADDR"),
		DBType:               strings.ToLower(os.Getenv("DB_TYPE")),
		SQLitePath:           os.Getenv("SQLITE_PATH"),
		PostgresDSN:          os.Getenv("LOCAL_DB_URL"),
		MongoURI:             os.Getenv("MONGO_URI"),
		MongoDatabase:        os.Getenv("MONGO_DATABASE"),
		MongoCollection:      os.Getenv("MONGO_COLLECTION"),
		TextProvider:         strings.ToLower(os.Getenv("TEXT_PROVIDER")),
		ImageProvider:        strings.ToLower(os.Getenv("IMAGE_PROVIDER")),
		ReplicateAPIToken:    os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:     os.Getenv("REPLICATE_BASE_URL"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		CoverPolicy:          strings.ToLower(os.Getenv("COVER_POLICY")),
		PlaceholderURL:       os.Getenv("PLACEHOLDER_IMAGE_URL"),
		SectionPlaceholder:   os.Getenv("SECTION_PLACEHOLDER_URL"),
		AuthMode:             strings.ToLower(os.Getenv("AUTH_MODE")),
		FirebaseProjectID:    os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentials:  os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		StaticTokens:         ParseTokens(os.Getenv("STATIC_TOKENS")),
		PinterestAppID:       os.Getenv("PINTEREST_APP_ID"),
		PinterestAppSecret:   os.Getenv("PINTEREST_APP_SECRET"),
		PinterestRedirectURI: os.Getenv("PINTEREST_REDIRECT_URI"),
		PinterestBoardID:     os.Getenv("PINTEREST_BOARD_ID"),
		TopicFeeds:           splitList(os.Getenv("TOPIC_FEEDS")),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:   strings.Trim(os.Getenv("SUPABASE_SERVICE_KEY"), "\""),
		SupabaseBucket:       os.Getenv("SUPABASE_BUCKET"),
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = os.Getenv("DATABASE_URL")
	}

	var err error
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.GenerationTimeout, err = envDuration("GENERATION_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.TopicRefresh, err = envDuration("TOPIC_REFRESH"); err != nil {
		return Config{}, err
	}
	if cfg.PollMaxAttempts, err = envInt("POLL_MAX_ATTEMPTS"); err != nil {
		return Config{}, err
	}
	if cfg.SectionWorkers, err = envInt("SECTION_IMAGE_WORKERS"); err != nil {
		return Config{}, err
	}
	if cfg.MaxSections, err = envInt("MAX_SECTIONS"); err != nil {
		return Config{}, err
	}
	if cfg.TopicLimit, err = envInt("TOPIC_LIMIT"); err != nil {
		return Config{}, err
	}
	if cfg.GenerationRateLimit, err = envInt("GENERATION_RATE_LIMIT"); err != nil {
		return Config{}, err
	}
	cfg.MirrorImages = envBool("MIRROR_IMAGES")

	cfg.Models = DefaultModels()
	if path := os.Getenv("MODELS_FILE"); path != "" {
		if err := cfg.Models.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.setDefaults()
	return cfg, nil
}

// DefaultModels returns the models the dashboard was built around:
// llama-3-70b-instruct for text and stable-diffusion for images.
func DefaultModels() Models {
	return Models{
		TextModel:          "meta/meta-llama-3-70b-instruct",
		PromptTemplate:     llamaPromptTemplate,
		ImageModel:         "stability-ai/stable-diffusion",
		ImageVersion:       "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b",
		ImageWidth:         1024,
		ImageHeight:        1024,
		InferenceSteps:     50,
		GuidanceScale:      7.5,
		Scheduler:          "K_EULER",
		NegativePrompt:     "low quality, blurry, bad anatomy, text, watermark",
		TitleTemperature:   0.6,
		ArticleTemperature: 0.7,
		TopP:               0.9,
		PresencePenalty:    1.15,
		ArticleMaxTokens:   1500,
	}
}

// LoadFile overlays the non-zero fields found in the YAML file at path.
func (m *Models) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read models file: %w", err)
	}
	var overlay Models
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse models file %s: %w", path, err)
	}
	m.merge(overlay)
	return nil
}

func (m *Models) merge(o Models) {
	if o.TextModel != "" {
		m.TextModel = o.TextModel
	}
	if o.PromptTemplate != "" {
		m.PromptTemplate = o.PromptTemplate
	}
	if o.ImageModel != "" {
		m.ImageModel = o.ImageModel
	}
	if o.ImageVersion != "" {
		m.ImageVersion = o.ImageVersion
	}
	if o.ImageWidth > 0 {
		m.ImageWidth = o.ImageWidth
	}
	if o.ImageHeight > 0 {
		m.ImageHeight = o.ImageHeight
	}
	if o.InferenceSteps > 0 {
		m.InferenceSteps = o.InferenceSteps
	}
	if o.GuidanceScale > 0 {
		m.GuidanceScale = o.GuidanceScale
	}
	if o.Scheduler != "" {
		m.Scheduler = o.Scheduler
	}
	if o.NegativePrompt != "" {
		m.NegativePrompt = o.NegativePrompt
	}
	if o.TitleTemperature > 0 {
		m.TitleTemperature = o.TitleTemperature
	}
	if o.ArticleTemperature > 0 {
		m.ArticleTemperature = o.ArticleTemperature
	}
	if o.TopP > 0 {
		m.TopP = o.TopP
	}
	if o.PresencePenalty > 0 {
		m.PresencePenalty = o.PresencePenalty
	}
	if o.ArticleMaxTokens > 0 {
		m.ArticleMaxTokens = o.ArticleMaxTokens
	}
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBType == "" {
		c.DBType = "sqlite"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/articles.db"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "pinpress"
	}
	if c.MongoCollection == "" {
		c.MongoCollection = "articles"
	}
	if c.TextProvider == "" {
		c.TextProvider = "replicate"
	}
	if c.ImageProvider == "" {
		c.ImageProvider = "replicate"
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.PollMaxAttempts == 0 {
		c.PollMaxAttempts = 300
	}
	if c.CoverPolicy == "" {
		c.CoverPolicy = "strict"
	}
	if c.PlaceholderURL == "" {
		c.PlaceholderURL = "https://placehold.co/1024x1024?text=Image+unavailable"
	}
	if c.SectionWorkers <= 0 {
		c.SectionWorkers = 1
	}
	if c.SectionWorkers > 4 {
		c.SectionWorkers = 4
	}
	if c.GenerationTimeout == 0 {
		c.GenerationTimeout = 10 * time.Minute
	}
	if c.AuthMode == "" {
		c.AuthMode = "firebase"
	}
	if c.TopicRefresh == 0 {
		c.TopicRefresh = 2 * time.Hour
	}
	if c.TopicLimit == 0 {
		c.TopicLimit = 20
	}
	if c.SupabaseBucket == "" {
		c.SupabaseBucket = "images"
	}
	if c.GenerationRateLimit == 0 {
		c.GenerationRateLimit = 10
	}
}

// Validate checks that credentials exist for every selected backend.
func (c Config) Validate() error {
	switch c.DBType {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("LOCAL_DB_URL environment variable is not set")
		}
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is not set")
		}
	default:
		return fmt.Errorf("unknown database type: %s", c.DBType)
	}

	for _, p := range []string{c.TextProvider, c.ImageProvider} {
		switch p {
		case "replicate":
			if c.ReplicateAPIToken == "" {
				return fmt.Errorf("REPLICATE_API_TOKEN is not configured")
			}
		case "openai":
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		case "gemini":
			if p == c.ImageProvider {
				return fmt.Errorf("gemini is not supported as an image provider")
			}
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("GEMINI_API_KEY environment variable not set")
			}
		default:
			return fmt.Errorf("unknown inference provider: %s", p)
		}
	}

	if c.MaxSections < 0 {
		return fmt.Errorf("MAX_SECTIONS must not be negative")
	}

	switch c.CoverPolicy {
	case "strict", "placeholder":
	default:
		return fmt.Errorf("unknown cover policy: %s", c.CoverPolicy)
	}

	switch c.AuthMode {
	case "firebase":
	case "static":
		if len(c.StaticTokens) == 0 {
			return fmt.Errorf("AUTH_MODE=static requires STATIC_TOKENS")
		}
	default:
		return fmt.Errorf("unknown auth mode: %s", c.AuthMode)
	}

	if c.MirrorImages && (c.SupabaseURL == "" || c.SupabaseServiceKey == "") {
		return fmt.Errorf("MIRROR_IMAGES requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
	}
	return nil
}

// PinterestEnabled reports whether the Pinterest app credentials are set.
func (c Config) PinterestEnabled() bool {
	return c.PinterestAppID != "" && c.PinterestAppSecret != "" && c.PinterestRedirectURI != ""
}

// ParseTokens parses "token:owner,token2:owner2" pairs.
func ParseTokens(s string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range splitList(s) {
		token, owner, ok := strings.Cut(pair, ":")
		if !ok || token == "" || owner == "" {
			continue
		}
		tokens[token] = owner
	}
	return tokens
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
