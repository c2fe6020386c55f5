// Package config 负责两件事：加载应用配置（koanf 分层），以及按 YAML 构建排序链路。
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/hybridrec/config/builders"
// 以触发内置 Node（rerank.fusion、filter.rule 等）的 init 注册。

// Env 是构建 Node 时可用的运行时依赖，YAML 中无法表达。
type Env struct {
	Catalog core.CatalogService // rerank.enrich
	Store   core.Store          // filter.blacklist
	Logger  zerolog.Logger
}

// Builder 根据运行时依赖和 YAML 中的 config 构建 Node。
type Builder func(env Env, cfg map[string]any) (pipeline.Node, error)

var (
	defaultBuilders   = make(map[string]Builder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑。
// 建议在各组件的 init 中调用，例如：func init() { config.Register("rerank.topn", BuildTopN) }
func Register(typeName string, builder Builder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回绑定了 env 的 NodeFactory，包含所有通过 Register 注册的 Node 类型。
func DefaultFactory(env Env) *pipeline.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		b := builder
		f.Register(typeName, func(cfg map[string]any) (pipeline.Node, error) {
			return b(env, cfg)
		})
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	for _, nc := range cfg.Pipeline.Nodes {
		defaultBuildersMu.RLock()
		_, ok := defaultBuilders[nc.Type]
		defaultBuildersMu.RUnlock()
		if !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}

// BuildRankingPipeline 校验并构建排序链路。
func BuildRankingPipeline(cfg *pipeline.Config, env Env) (*pipeline.Pipeline, error) {
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Pipeline.Nodes) == 0 {
		return nil, fmt.Errorf("pipeline %q has no nodes", cfg.Pipeline.Name)
	}
	return cfg.BuildPipeline(DefaultFactory(env))
}

// LoadRankingPipeline 从 YAML 文件加载排序链路。
func LoadRankingPipeline(path string, env Env) (*pipeline.Pipeline, error) {
	cfg, err := pipeline.LoadFromYAML(path)
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", path, err)
	}
	return BuildRankingPipeline(cfg, env)
}
