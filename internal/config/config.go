package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "VOICECHAT"

// DefaultCypher is the Neo4j retrieval template used when none is configured.
const DefaultCypher = "CALL db.index.vector.queryNodes($index_name, $k * $candidate_multiplier, $question_embedding) " +
	"YIELD node, score " +
	"MATCH (node)<-[:HAS_CHILD]-(parent) " +
	"WITH parent, max(score) AS score " +
	"RETURN parent.text AS text, score " +
	"ORDER BY score DESC LIMIT toInteger($k)"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Models    ModelsConfig    `mapstructure:"models"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Chromem   ChromemConfig   `mapstructure:"chromem"`
	Session   SessionConfig   `mapstructure:"session"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LLMConfig struct {
	Provider    string `mapstructure:"provider"` // mock | openai | vertex
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	GCPProject  string `mapstructure:"gcp_project"`
	GCPLocation string `mapstructure:"gcp_location"`
}

type ModelsConfig struct {
	Rewrite string `mapstructure:"rewrite"`
	Opener  string `mapstructure:"opener"`
	Answer  string `mapstructure:"answer"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // hash | openai
	Model      string `mapstructure:"model"`
	CacheSize  int    `mapstructure:"cache_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

type RetrievalConfig struct {
	Backend string         `mapstructure:"backend"` // none | neo4j | chromem
	TopK    int            `mapstructure:"top_k"`
	Query   string         `mapstructure:"query"`
	Options map[string]any `mapstructure:"options"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type ChromemConfig struct {
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ChatConfig struct {
	MaxHistoryItems int `mapstructure:"max_history_items"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // memory | firestore | bolt
	BoltPath   string `mapstructure:"bolt_path"`
	GCPProject string `mapstructure:"gcp_project"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	// streamed turns stay open while the answer is produced
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.gcp_project", "")
	v.SetDefault("llm.gcp_location", "us-central1")

	v.SetDefault("models.rewrite", "gpt-4o-mini")
	v.SetDefault("models.opener", "gpt-4o-mini")
	v.SetDefault("models.answer", "gpt-4o-mini")

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.cache_size", 10000)
	v.SetDefault("embedding.dimensions", 256)

	v.SetDefault("retrieval.backend", "none")
	v.SetDefault("retrieval.top_k", 6)
	v.SetDefault("retrieval.query", DefaultCypher)
	v.SetDefault("retrieval.options", map[string]any{
		"similarity":           "cosine",
		"index_name":           "idx_child_embedding",
		"candidate_multiplier": 4,
	})

	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("chromem.path", "")
	v.SetDefault("chromem.collection", "manuals")

	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)

	v.SetDefault("chat.max_history_items", 12)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bolt_path", "voicechat.db")
	v.SetDefault("storage.gcp_project", "")
}

// Load builds the config from defaults, an optional YAML file and
// VOICECHAT_* environment variables, in increasing precedence. With an empty
// path ./voicechat.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("voicechat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "mock", "openai":
	case "vertex":
		if c.LLM.GCPProject == "" {
			return errors.New("llm.gcp_project must be set for the vertex provider")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}

	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}

	switch c.Retrieval.Backend {
	case "none", "neo4j", "chromem":
	default:
		return fmt.Errorf("unknown retrieval.backend %q", c.Retrieval.Backend)
	}

	switch c.Storage.Backend {
	case "memory", "bolt":
	case "firestore":
		if c.Storage.GCPProject == "" {
			return errors.New("storage.gcp_project must be set for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
