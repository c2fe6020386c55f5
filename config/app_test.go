package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Store.Driver != "sqlite" || cfg.Cache.TTL != 30*time.Second {
		t.Errorf("默认值错误: %+v", cfg)
	}
	if cfg.Scoring.Weights.Personal != 0.5 || cfg.Scoring.SimilarityThreshold != 0.3 {
		t.Errorf("默认打分参数错误: %+v", cfg.Scoring)
	}
	if cfg.Scoring.CategoryLookupTimeout != 300*time.Millisecond {
		t.Errorf("期望类目查询超时 300ms，实际 %v", cfg.Scoring.CategoryLookupTimeout)
	}
}

func TestRecommenderOptions(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("HYBRIDREC_SCORING__CATEGORY_LOOKUP_TIMEOUT", "750ms")
	t.Setenv("HYBRIDREC_CACHE__TTL", "5s")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	opts := cfg.RecommenderOptions()
	if opts.CategoryLookupTimeout != 750*time.Millisecond {
		t.Errorf("期望 750ms，实际 %v", opts.CategoryLookupTimeout)
	}
	if opts.CacheTTL != 5*time.Second || opts.SourceTimeout != 2*time.Second || opts.NeighborScan != 200 {
		t.Errorf("选项映射错误: %+v", opts)
	}
	if opts.Weights != cfg.Scoring.Weights {
		t.Errorf("权重映射错误: %+v", opts.Weights)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":7000"
store:
  driver: memory
scoring:
  weights:
    personal: 0.6
    collaborative: 0.3
    trending: 0.1
  fallback_ids: [f1, f2]
ranking:
  rule: 'item.score > 0.0'
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HYBRIDREC_SERVER__ADDR", ":9999")
	t.Setenv("HYBRIDREC_SCORING__HALF_LIFE", "48h")
	t.Setenv("HYBRIDREC_SCORING__WEIGHTS__TRENDING", "0.2")
	t.Setenv("HYBRIDREC_AUTH__STATIC_TOKENS", "t1:u1, t2:u2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("环境变量应覆盖文件，实际 %s", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("期望 memory，实际 %s", cfg.Store.Driver)
	}
	if cfg.Scoring.HalfLife != 48*time.Hour {
		t.Errorf("期望 48h，实际 %v", cfg.Scoring.HalfLife)
	}
	if w := cfg.Scoring.Weights; w.Personal != 0.6 || w.Trending != 0.2 {
		t.Errorf("权重错误: %+v", w)
	}
	if len(cfg.Scoring.FallbackIDs) != 2 || cfg.Scoring.FallbackIDs[1] != "f2" {
		t.Errorf("列表字段错误: %v", cfg.Scoring.FallbackIDs)
	}
	if cfg.Ranking.Rule != "item.score > 0.0" {
		t.Errorf("规则错误: %q", cfg.Ranking.Rule)
	}
	tokens := cfg.Auth.TokenTable()
	if tokens["t1"] != "u1" || tokens["t2"] != "u2" {
		t.Errorf("静态 token 解析错误: %v", tokens)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store driver", map[string]string{"HYBRIDREC_STORE__DRIVER": "postgres"}},
		{"qdrant without url", map[string]string{"HYBRIDREC_CATALOG__DRIVER": "qdrant"}},
		{"threshold out of range", map[string]string{"HYBRIDREC_SCORING__SIMILARITY_THRESHOLD": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigPathEnvVar, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatal("期望校验失败")
			}
		})
	}
}
