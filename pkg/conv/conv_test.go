package conv

import "testing"

func TestConfigGetNumbers(t *testing.T) {
	cfg := map[string]any{
		"limit":   3,
		"weight":  0.5,
		"epsilon": 1,
		"name":    "x",
	}
	if got := ConfigGetInt(cfg, "limit", 0); got != 3 {
		t.Errorf("ConfigGetInt(limit) = %d, want 3", got)
	}
	if got := ConfigGetFloat(cfg, "weight", 0); got != 0.5 {
		t.Errorf("ConfigGetFloat(weight) = %v, want 0.5", got)
	}
	if got := ConfigGetFloat(cfg, "epsilon", 0); got != 1 {
		t.Errorf("ConfigGetFloat(epsilon) = %v, want 1", got)
	}
	if got := ConfigGetFloat(cfg, "missing", 0.25); got != 0.25 {
		t.Errorf("ConfigGetFloat(missing) = %v, want default", got)
	}
	if got := ConfigGet(cfg, "name", ""); got != "x" {
		t.Errorf("ConfigGet(name) = %q", got)
	}
	if got := ConfigGet(cfg, "limit", "def"); got != "def" {
		t.Errorf("ConfigGet type mismatch should return default, got %q", got)
	}
}

func TestMapToFloat64(t *testing.T) {
	got := MapToFloat64(map[string]any{"a": 1, "b": 0.5, "c": "skip"})
	if len(got) != 2 || got["a"] != 1 || got["b"] != 0.5 {
		t.Errorf("MapToFloat64() = %v", got)
	}
}

func TestSliceAnyToString(t *testing.T) {
	got := SliceAnyToString([]any{"a", 1, "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("SliceAnyToString() = %v", got)
	}
	if SliceAnyToString("a") != nil {
		t.Errorf("非切片应返回 nil")
	}
}
