package changefeed

import (
	"math"
	"testing"
)

func TestInsertEventField(t *testing.T) {
	ev := InsertEvent{Record: map[string]any{
		"name":    "Quarterly report",
		"empty":   "",
		"null":    nil,
		"zero":    float64(0),
		"num":     float64(42),
		"frac":    1.5,
		"nan":     math.NaN(),
		"int":     int64(7),
		"true":    true,
		"false":   false,
		"object":  map[string]any{"a": 1},
		"array":   []any{"x"},
		"unicode": "ünïcødé 📝",
		"spaces":  " ",
	}}
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"name", "Quarterly report", true},
		{"missing", "", false},
		{"empty", "", false},
		{"null", "", false},
		{"zero", "", false},
		{"num", "42", true},
		{"frac", "1.5", true},
		{"nan", "", false},
		{"int", "7", true},
		{"true", "true", true},
		{"false", "", false},
		{"object", "", false},
		{"array", "", false},
		{"unicode", "ünïcødé 📝", true},
		{"spaces", " ", true},
	}
	for _, tt := range tests {
		got, ok := ev.Field(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Field(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{42, "42"},
		{-3.25, "-3.25"},
		{1e20, "100000000000000000000"},
		{1e21, "1e+21"},
		{1.5e22, "1.5e+22"},
		{-1e21, "-1e+21"},
		{0.000001, "0.000001"},
		{1.5e-7, "1.5e-7"},
		{1e-100, "1e-100"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	ev := InsertEvent{Record: map[string]any{"name": 1e21}}
	if got, ok := ev.Field("name"); !ok || got != "1e+21" {
		t.Errorf("Field(1e21) = (%q, %v)", got, ok)
	}
}

func TestInsertEventFieldNilRecord(t *testing.T) {
	if _, ok := (InsertEvent{}).Field("name"); ok {
		t.Fatal("nil record should yield no field")
	}
}
