package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Split     SplitConfig     `mapstructure:"split"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Search    SearchConfig    `mapstructure:"search"`
	Mongo     MongoConfig     `mapstructure:"mongo"`

	OpenAIAPIKey   string `mapstructure:"OPENAI_API_KEY"`
	GeminiAPIKey   string `mapstructure:"GEMINI_API_KEY"`
	WeaviateAPIKey string `mapstructure:"WEAVIATE_APIKEY"`
	MilvusPassword string `mapstructure:"MILVUS_PASSWORD"`
	MongoURI       string `mapstructure:"MONGODB_URI"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai | gemini
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	BatchSize  int           `mapstructure:"batch_size"`
	Dimension  int           `mapstructure:"dimension"`
	Version    int           `mapstructure:"version"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SplitConfig struct {
	TargetTokens    int `mapstructure:"target_tokens"`
	MaxTokens       int `mapstructure:"max_tokens"`
	SentenceOverlap int `mapstructure:"sentence_overlap"`
}

type VectorConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Backend  string         `mapstructure:"backend"` // local | milvus | weaviate
	Local    LocalConfig    `mapstructure:"local"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
	Weaviate WeaviateConfig `mapstructure:"weaviate"`
}

type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

type MilvusConfig struct {
	Address    string        `mapstructure:"address"`
	Database   string        `mapstructure:"database"`
	Username   string        `mapstructure:"username"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type WeaviateConfig struct {
	Host    string        `mapstructure:"host"`
	Class   string        `mapstructure:"class"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	TopK         int `mapstructure:"top_k"`
	SnippetLimit int `mapstructure:"snippet_limit"`
	ScanLimit    int `mapstructure:"scan_limit"`
}

type MongoConfig struct {
	Database string `mapstructure:"database"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set up Viper to read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Bind environment variables
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("GEMINI_API_KEY")
	v.BindEnv("WEAVIATE_APIKEY")
	v.BindEnv("MILVUS_PASSWORD")
	v.BindEnv("MONGODB_URI")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.version", 1)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("split.target_tokens", 400)
	v.SetDefault("split.max_tokens", 800)
	v.SetDefault("split.sentence_overlap", 2)

	v.SetDefault("vector.enabled", true)
	v.SetDefault("vector.backend", "local")
	v.SetDefault("vector.local.dir", "data/vector_store")
	v.SetDefault("vector.milvus.address", "localhost:19530")
	v.SetDefault("vector.milvus.database", "default")
	v.SetDefault("vector.milvus.collection", "knowledge_chunks")
	v.SetDefault("vector.milvus.timeout", 30*time.Second)
	v.SetDefault("vector.weaviate.class", "KnowledgeChunk")
	v.SetDefault("vector.weaviate.timeout", 30*time.Second)

	v.SetDefault("search.top_k", 5)
	v.SetDefault("search.snippet_limit", 200)
	v.SetDefault("search.scan_limit", 5000)

	v.SetDefault("mongo.database", "knowledge")
}
