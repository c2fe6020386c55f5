package dsl

import (
	"testing"

	"github.com/rushteam/hybridrec/core"
)

func testItem() *core.Item {
	it := core.NewItem("p1")
	it.Score = 0.8
	it.AddSourceScore(core.SourcePersonal, 1.2)
	it.AddSourceScore(core.SourceTrending, 3)
	it.Meta[core.MetaRating] = 4.5
	it.Meta[core.MetaCategory] = "shoes"
	return it
}

func TestProgram_Eval(t *testing.T) {
	rctx := &core.RecommendContext{UserID: "u1", Limit: 10}
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"empty", "", true},
		{"score", "item.score > 0.7", true},
		{"meta rating", "item.meta.rating >= 3.0", true},
		{"meta category", `item.meta.category == "bags"`, false},
		{"sources", `"trending" in item.sources`, true},
		{"label", `label.recall_source.contains("personal")`, true},
		{"has", "has(item.meta.brand)", false},
		{"rctx", `rctx.user_id == "u1" && rctx.limit == 10`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("编译失败: %v", err)
			}
			got, err := p.Eval(testItem(), rctx)
			if err != nil {
				t.Fatalf("求值失败: %v", err)
			}
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	if _, err := Compile("item.score >"); err == nil {
		t.Error("语法错误应在编译期返回")
	}
	p, err := Compile("item.score")
	if err != nil {
		t.Fatalf("编译失败: %v", err)
	}
	if _, err := p.Eval(testItem(), nil); err == nil {
		t.Error("非 bool 表达式应返回错误")
	}
}
