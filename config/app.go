package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/logging"
	"github.com/rushteam/hybridrec/rerank"
	"github.com/rushteam/hybridrec/server"
	"github.com/rushteam/hybridrec/service"
	"github.com/rushteam/hybridrec/store"
	"github.com/rushteam/hybridrec/vector"
)

// DefaultConfigPaths 未设置 CONFIG_PATH 时依次查找。
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/hybridrec/config.yaml",
}

const (
	ConfigPathEnvVar = "CONFIG_PATH"
	EnvPrefix        = "HYBRIDREC_"
)

// Config 是应用配置。加载顺序：默认值 → YAML 文件 → 环境变量（HYBRIDREC_ 前缀，__ 表示层级）。
//
//	HYBRIDREC_SERVER__ADDR=:9000
//	HYBRIDREC_SCORING__FALLBACK_IDS=p1,p2,p3
type Config struct {
	Server  server.Config      `koanf:"server"`
	Store   StoreConfig        `koanf:"store"`
	Cache   CacheConfig        `koanf:"cache"`
	Redis   store.RedisOptions `koanf:"redis"`
	Catalog CatalogConfig      `koanf:"catalog"`
	Kafka   KafkaConfig        `koanf:"kafka"`
	Scoring ScoringConfig      `koanf:"scoring"`
	Ranking RankingConfig      `koanf:"ranking"`
	Auth    AuthConfig         `koanf:"auth"`
	Logging logging.Config     `koanf:"logging"`
}

// StoreConfig 行为存储。
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite memory"`
	DSN    string `koanf:"dsn" validate:"required_if=Driver sqlite"`
}

// CacheConfig 推荐结果缓存与热门快照的存储。
type CacheConfig struct {
	Driver string        `koanf:"driver" validate:"oneof=memory redis none"`
	TTL    time.Duration `koanf:"ttl"`
}

// CatalogConfig 商品目录（Qdrant）。
type CatalogConfig struct {
	Driver     string               `koanf:"driver" validate:"oneof=qdrant none"`
	URL        string               `koanf:"url" validate:"required_if=Driver qdrant"`
	APIKey     string               `koanf:"api_key"`
	Collection string               `koanf:"collection" validate:"required_if=Driver qdrant"`
	VectorName string               `koanf:"vector_name"`
	Timeout    time.Duration        `koanf:"timeout"`
	Breaker    vector.BreakerConfig `koanf:"breaker"`
}

// KafkaConfig 反馈事件投递。
type KafkaConfig struct {
	Enabled  bool                 `koanf:"enabled"`
	Producer feedback.KafkaConfig `koanf:"producer"`
}

// ScoringConfig 召回与融合参数。
type ScoringConfig struct {
	Weights               rerank.Weights `koanf:"weights"`
	Epsilon               float64        `koanf:"epsilon" validate:"gte=0"`
	HalfLife              time.Duration  `koanf:"half_life"`
	SimilarityThreshold   float64        `koanf:"similarity_threshold" validate:"gte=0,lte=1"`
	NeighborScan          int            `koanf:"neighbor_scan" validate:"gte=0"`
	TrendingWindow        time.Duration  `koanf:"trending_window"`
	TrendingMinSize       int            `koanf:"trending_min_size" validate:"gte=0"`
	FallbackIDs           []string       `koanf:"fallback_ids"`
	SourceTimeout         time.Duration  `koanf:"source_timeout"`
	SnapshotRefresh       time.Duration  `koanf:"snapshot_refresh"`
	// CategoryLookupTimeout 写入行为时查询商品类目的超时，超时则不记录类目
	CategoryLookupTimeout time.Duration  `koanf:"category_lookup_timeout"`
}

// RankingConfig 排序链路扩展。
type RankingConfig struct {
	// Rule CEL 表达式，为 true 时保留候选，例如 `item.meta["rating"] >= 3.0`
	Rule         string   `koanf:"rule"`
	BlacklistIDs []string `koanf:"blacklist_ids"`
	BlacklistKey string   `koanf:"blacklist_key"`

	// PipelinePath 非空时用 YAML 描述的链路替换默认链路
	PipelinePath string `koanf:"pipeline_path"`
}

// AuthConfig 身份识别。StaticTokens 每项为 "token:user"。
type AuthConfig struct {
	JWTSecret    string   `koanf:"jwt_secret"`
	StaticTokens []string `koanf:"static_tokens"`
}

// TokenTable 解析 StaticTokens。
func (a AuthConfig) TokenTable() map[string]string {
	out := make(map[string]string, len(a.StaticTokens))
	for _, pair := range a.StaticTokens {
		tok, user, ok := strings.Cut(pair, ":")
		tok, user = strings.TrimSpace(tok), strings.TrimSpace(user)
		if ok && tok != "" && user != "" {
			out[tok] = user
		}
	}
	return out
}

// Default 返回默认配置：SQLite 存储、内存缓存、不连目录和 Kafka。
func Default() *Config {
	return &Config{
		Server: server.DefaultConfig(),
		Store:  StoreConfig{Driver: "sqlite", DSN: "file:hybridrec.db?_journal_mode=WAL&_busy_timeout=5000"},
		Cache:  CacheConfig{Driver: "memory", TTL: 30 * time.Second},
		Redis:  store.RedisOptions{Addr: "127.0.0.1:6379"},
		Catalog: CatalogConfig{
			Driver:     "none",
			Collection: "products",
			Timeout:    2 * time.Second,
			Breaker:    vector.DefaultBreakerConfig(),
		},
		Kafka: KafkaConfig{
			Producer: feedback.KafkaConfig{
				Brokers:       []string{"127.0.0.1:9092"},
				Topic:         "hybridrec.interactions",
				BatchSize:     100,
				FlushInterval: time.Second,
			},
		},
		Scoring: ScoringConfig{
			Weights:               rerank.DefaultWeights(),
			Epsilon:               0.01,
			HalfLife:              14 * 24 * time.Hour,
			SimilarityThreshold:   0.3,
			NeighborScan:          200,
			TrendingWindow:        7 * 24 * time.Hour,
			TrendingMinSize:       20,
			SourceTimeout:         2 * time.Second,
			SnapshotRefresh:       time.Minute,
			CategoryLookupTimeout: service.DefaultCategoryLookupTimeout,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
	}
}

// RecommenderOptions 把打分与缓存配置转换为 service.Options；过滤器和排序链路由调用方补充。
func (c *Config) RecommenderOptions() service.Options {
	return service.Options{
		Weights:               c.Scoring.Weights,
		Epsilon:               c.Scoring.Epsilon,
		HalfLife:              c.Scoring.HalfLife,
		SimilarityThreshold:   c.Scoring.SimilarityThreshold,
		NeighborScan:          c.Scoring.NeighborScan,
		TrendingWindow:        c.Scoring.TrendingWindow,
		TrendingMinSize:       c.Scoring.TrendingMinSize,
		FallbackIDs:           c.Scoring.FallbackIDs,
		SourceTimeout:         c.Scoring.SourceTimeout,
		CategoryLookupTimeout: c.Scoring.CategoryLookupTimeout,
		CacheTTL:              c.Cache.TTL,
	}
}

// 环境变量里以逗号分隔的列表字段。
var sliceConfigPaths = []string{
	"server.cors_origins",
	"scoring.fallback_ids",
	"ranking.blacklist_ids",
	"auth.static_tokens",
	"kafka.producer.brokers",
}

// Load 加载配置。path 为空时按 CONFIG_PATH 和 DefaultConfigPaths 查找，找不到文件不是错误。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate 校验字段约束。
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// envTransformFunc HYBRIDREC_SCORING__HALF_LIFE -> scoring.half_life
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
