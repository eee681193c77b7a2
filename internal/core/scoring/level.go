package scoring

import "strings"

// Level 評分等級
type Level string

const (
	LevelHigh    Level = "High"
	LevelMedium  Level = "Medium"
	LevelLow     Level = "Low"
	LevelVeryLow Level = "Very Low"
	LevelUnknown Level = "Unknown"
)

// ParseLevel 解析服務回傳的等級字串
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	}), "")) {
	case "high":
		return LevelHigh
	case "medium":
		return LevelMedium
	case "low":
		return LevelLow
	case "verylow":
		return LevelVeryLow
	default:
		return LevelUnknown
	}
}

// State 等級對應的顯示狀態
func (l Level) State() string {
	switch l {
	case LevelHigh:
		return "Success"
	case LevelMedium:
		return "Warning"
	case LevelLow, LevelVeryLow:
		return "Error"
	default:
		return "None"
	}
}
