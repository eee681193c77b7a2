package pocketbase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record PocketBase 記錄
type Record map[string]interface{}

// ID 回傳記錄主鍵
func (r Record) ID() string {
	return r.String("id")
}

// String 讀取字串欄位，數字會轉為字串，缺值回傳空字串
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Float 讀取數值欄位，無法解析時回傳 0
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	default:
		return 0
	}
}

// ListOptions 列表查詢參數
type ListOptions struct {
	PerPage int
	Filter  string
	Sort    string
	Fields  string
}

// QuoteFilterValue 將值包成 PocketBase filter 字串常值
func QuoteFilterValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
