package compliance

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Jurisdiction 法規驗證使用的標準國家代碼
type Jurisdiction string

const (
	US    Jurisdiction = "US"
	India Jurisdiction = "INDIA"
	China Jurisdiction = "CHINA"
)

// DefaultJurisdiction 無法辨識國家名稱時使用
const DefaultJurisdiction = US

var jurisdictionAliases = map[string]Jurisdiction{
	"US":                       US,
	"USA":                      US,
	"UNITED STATES":            US,
	"UNITED STATES OF AMERICA": US,
	"AMERICA":                  US,

	"INDIA":             India,
	"IN":                India,
	"REPUBLIC OF INDIA": India,
	"BHARAT":            India,

	"CHINA":                         China,
	"CN":                            China,
	"PRC":                           China,
	"PEOPLES REPUBLIC OF CHINA":     China,
	"PEOPLE REPUBLIC OF CHINA":      China,
	"THE PEOPLES REPUBLIC OF CHINA": China,
}

// normalizeCountry 統一大小寫、全半形與空白，移除撇號與句點
func normalizeCountry(name string) string {
	// Caser 有狀態，不可跨 goroutine 共用
	s := cases.Upper(language.Und).String(norm.NFKC.String(name))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\'', '’', '‘', '.':
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseJurisdiction 解析國家名稱，ok 表示是否有明確對應
func ParseJurisdiction(name string) (Jurisdiction, bool) {
	j, ok := jurisdictionAliases[normalizeCountry(name)]
	if !ok {
		return DefaultJurisdiction, false
	}
	return j, true
}

// JurisdictionFor 解析國家名稱，無對應時回傳 US
func JurisdictionFor(name string) Jurisdiction {
	j, _ := ParseJurisdiction(name)
	return j
}
