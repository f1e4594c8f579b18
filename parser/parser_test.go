package parser

import (
	"testing"

	"github.com/aluiziolira/go-stock-sync/models"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name       string
		rec        *models.FeedRecord
		wantErr    bool
		wantImages int
	}{
		{
			name:    "nil record",
			rec:     nil,
			wantErr: true,
		},
		{
			name:    "empty record",
			rec:     models.NewFeedRecord(),
			wantErr: true,
		},
		{
			name: "keeps images as listed",
			rec: &models.FeedRecord{
				Attrs:  []models.Attr{{Name: models.FieldMark, Value: "GAC"}},
				Images: []string{"https://cdn.example.com/1.jpg", "/local/2.jpg", "ftp://host/3.jpg", "http://cdn.example.com/4.jpg"},
			},
			wantImages: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(tt.rec.Images) != tt.wantImages {
				t.Errorf("images = %v, want %d entries", tt.rec.Images, tt.wantImages)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"2450000", 2450000, true},
		{"2 450 000", 2450000, true},
		{"2 450 000 ₽", 2450000, true},
		{"1999,6", 2000, true},
		{"  15000 ", 15000, true},
		{"", 0, false},
		{"по запросу", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeColor(t *testing.T) {
	tests := map[string]string{
		"красный":         "Красный",
		"ЧЕРНЫЙ МЕТАЛЛИК": "Черный металлик",
		" white ":         "White",
		"":                "",
	}
	for input, want := range tests {
		if got := NormalizeColor(input); got != want {
			t.Errorf("NormalizeColor(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMaskVIN(t *testing.T) {
	tests := map[string]string{
		"XTA21099012345678": "XTA21-5678",
		"LVVDB11B5PD123456": "LVVDB-3456",
		"SHORT":             "SHORT",
		"":                  "",
	}
	for input, want := range tests {
		if got := MaskVIN(input); got != want {
			t.Errorf("MaskVIN(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParagraphs(t *testing.T) {
	got := Paragraphs("Первая строка\n\nВторая строка\r\n   \nКонец")
	want := "<p>Первая строка</p>\n<p>&nbsp;</p>\n<p>Вторая строка</p>\n<p>&nbsp;</p>\n<p>Конец</p>"
	if got != want {
		t.Errorf("Paragraphs() = %q, want %q", got, want)
	}
	if Paragraphs("") != "" {
		t.Errorf("Paragraphs(\"\") should be empty")
	}
}

func TestLocalize(t *testing.T) {
	attrs := []models.Attr{
		{Name: "engineType", Value: "petrol"},
		{Name: "gearboxType", Value: "automatic"},
		{Name: "driveType", Value: "unknown_code"},
		{Name: models.FieldMark, Value: "front"},
	}

	out := Localize(attrs)

	if out[0].Value != "Бензин" || out[1].Value != "Автомат" {
		t.Errorf("enum values not translated: %+v", out)
	}
	if out[2].Value != "unknown_code" {
		t.Errorf("unknown code changed: %q", out[2].Value)
	}
	if out[3].Value != "front" {
		t.Errorf("non-enum field translated: %q", out[3].Value)
	}
	if attrs[0].Value != "petrol" {
		t.Errorf("input mutated: %q", attrs[0].Value)
	}
}
