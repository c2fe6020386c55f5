package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSource(t *testing.T) {
	before := testutil.ToFloat64(SourceFailures.WithLabelValues("personal"))
	RecordSource("personal", 0, errors.New("catalog down"))
	RecordSource("personal", 12, nil)
	after := testutil.ToFloat64(SourceFailures.WithLabelValues("personal"))
	if after-before != 1 {
		t.Errorf("失败计数期望 +1，实际 +%v", after-before)
	}
}

func TestRecordRecommendation(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		err      error
		outcome  string
	}{
		{"ok", "personal-only", nil, "ok"},
		{"error", "cold-start/trending", errors.New("boom"), "error"},
		{"empty strategy", "", errors.New("invalid"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := tt.strategy
			if label == "" {
				label = "none"
			}
			c := RecommendationsTotal.WithLabelValues(label, tt.outcome)
			before := testutil.ToFloat64(c)
			RecordRecommendation(tt.strategy, 10*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("期望 +1，实际 +%v", got)
			}
		})
	}
}

func TestRecordCache(t *testing.T) {
	hits, misses := testutil.ToFloat64(CacheHits), testutil.ToFloat64(CacheMisses)
	RecordCache(true)
	RecordCache(false)
	RecordCache(false)
	if testutil.ToFloat64(CacheHits)-hits != 1 || testutil.ToFloat64(CacheMisses)-misses != 2 {
		t.Errorf("缓存计数错误")
	}
}
