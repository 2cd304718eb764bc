package forecast

import "strconv"

// wmoSummaries maps WMO weather interpretation codes to Japanese summaries.
var wmoSummaries = map[int]string{
	0:  "快晴",
	1:  "ほぼ快晴",
	2:  "晴れ時々くもり",
	3:  "くもり",
	45: "霧",
	48: "着氷性の霧",
	51: "弱い霧雨",
	53: "霧雨",
	55: "強い霧雨",
	61: "弱い雨",
	63: "雨",
	65: "強い雨",
	71: "弱い雪",
	73: "雪",
	75: "強い雪",
	80: "にわか雨（弱）",
	81: "にわか雨",
	82: "にわか雨（強）",
	95: "雷雨",
}

// SummaryJA renders a weather code as Japanese text. Codes outside the table
// render as 不明（code=N）; a missing code renders as 不明.
func SummaryJA(code *int) string {
	if code == nil {
		return "不明"
	}
	if s, ok := wmoSummaries[*code]; ok {
		return s
	}
	return "不明（code=" + strconv.Itoa(*code) + "）"
}
