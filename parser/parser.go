package parser

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aluiziolira/go-stock-sync/models"
)

// ValidateRecord reports whether anything usable is on the record. Image
// URLs are kept as the feed lists them; unusable ones fail at fetch time.
func ValidateRecord(r *models.FeedRecord) error {
	if r == nil {
		return eris.New("record is nil")
	}
	if len(r.Attrs) == 0 && len(r.Images) == 0 {
		return eris.New("record has no attributes")
	}
	return nil
}

// NormalizeAmount strips grouping spaces and currency noise from a number.
func NormalizeAmount(text string) string {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "₽", "", "руб.", "", "руб", "").Replace(text)
	return strings.ReplaceAll(text, ",", ".")
}

// ParseAmount parses a price or mileage value into whole units.
func ParseAmount(text string) (int, bool) {
	text = NormalizeAmount(text)
	if text == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// NormalizeColor capitalises a colour name the way the mapping table keys are
// written: first letter upper case, the rest lower case.
func NormalizeColor(color string) string {
	color = cases.Lower(language.Russian).String(strings.TrimSpace(color))
	if color == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(color)
	return cases.Upper(language.Russian).String(color[:size]) + color[size:]
}

// MaskVIN keeps the first five and last four characters of a VIN.
func MaskVIN(vin string) string {
	runes := []rune(strings.TrimSpace(vin))
	if len(runes) < 9 {
		return string(runes)
	}
	return string(runes[:5]) + "-" + string(runes[len(runes)-4:])
}

// Paragraphs renders text as HTML paragraphs, one per line. Blank lines become
// non-breaking-space paragraphs so the spacing survives rendering.
func Paragraphs(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, "<p>&nbsp;</p>")
			continue
		}
		out = append(out, "<p>"+line+"</p>")
	}
	return strings.Join(out, "\n")
}
