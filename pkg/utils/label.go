package utils

import "strings"

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// Value 与 Source 的语义由业务自定义，这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rerank / filter ...
}

// MergeLabel 用于合并同名 Label：
// - Value: 以 '|' 累积，已存在的值不重复追加
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	for _, v := range LabelValues(existing) {
		if v == incoming.Value {
			return existing
		}
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

// LabelValues 拆分累积后的 Value。
func LabelValues(lbl Label) []string {
	if lbl.Value == "" {
		return nil
	}
	return strings.Split(lbl.Value, "|")
}
