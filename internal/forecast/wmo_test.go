package forecast

import "testing"

func TestSummaryJA(t *testing.T) {
	code := func(n int) *int { return &n }
	tests := []struct {
		name string
		code *int
		want string
	}{
		{"clear", code(0), "快晴"},
		{"partly cloudy", code(2), "晴れ時々くもり"},
		{"rime fog", code(48), "着氷性の霧"},
		{"heavy showers", code(82), "にわか雨（強）"},
		{"thunderstorm", code(95), "雷雨"},
		{"unknown code", code(99), "不明（code=99）"},
		{"negative code", code(-1), "不明（code=-1）"},
		{"missing", nil, "不明"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummaryJA(tt.code); got != tt.want {
				t.Errorf("SummaryJA() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummaryJA_TableIsComplete(t *testing.T) {
	codes := []int{0, 1, 2, 3, 45, 48, 51, 53, 55, 61, 63, 65, 71, 73, 75, 80, 81, 82, 95}
	if len(wmoSummaries) != len(codes) {
		t.Errorf("table has %d codes, want %d", len(wmoSummaries), len(codes))
	}
	for _, c := range codes {
		if _, ok := wmoSummaries[c]; !ok {
			t.Errorf("code %d missing from table", c)
		}
	}
}
