package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/hybridrec/core"
)

type appendNode struct {
	name string
	err  error
}

func (n *appendNode) Name() string { return n.name }
func (n *appendNode) Kind() Kind   { return KindReRank }

func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append(items, core.NewItem(n.name)), nil
}

func TestPipeline_Run(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&appendNode{name: "a"}, &appendNode{name: "b"}}}
	out, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Errorf("执行顺序错误: %+v", out)
	}

	boom := errors.New("boom")
	p.Nodes = append(p.Nodes, &appendNode{name: "c", err: boom})
	if _, err := p.Run(context.Background(), &core.RecommendContext{}, nil); !errors.Is(err, boom) {
		t.Errorf("应返回 Node 错误，实际 %v", err)
	}
}

func TestParseYAMLAndBuild(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
pipeline:
  name: ranking
  nodes:
    - type: test.append
      config:
        name: x
`))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	f := NewNodeFactory()
	f.Register("test.append", func(c map[string]any) (Node, error) {
		return &appendNode{name: c["name"].(string)}, nil
	})
	p, err := cfg.BuildPipeline(f)
	if err != nil {
		t.Fatalf("构建失败: %v", err)
	}
	if names := p.Names(); len(names) != 1 || names[0] != "x" {
		t.Errorf("Node 构建错误: %v", names)
	}

	cfg.Pipeline.Nodes[0].Type = "unknown"
	if _, err := cfg.BuildPipeline(f); err == nil {
		t.Error("未知类型应报错")
	}
}
