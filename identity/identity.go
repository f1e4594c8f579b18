// Package identity derives storage keys and display strings from feed records.
package identity

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/models"
)

// Delimiter joins key fields before sanitising. It shapes every persisted filename.
const Delimiter = "-"

// ErrNoIdentity is returned when none of the key fields yield a usable key.
var ErrNoIdentity = eris.New("identity: no key fields present")

// KeyFields is the default field order for canonical keys.
var KeyFields = []models.Field{
	models.FieldMark,
	models.FieldModel,
	models.FieldModification,
	models.FieldComplectation,
	models.FieldColor,
	models.FieldYear,
}

var sanitizer = strings.NewReplacer(
	"/", "", `\`, "", "?", "", "%", "", "*", "", ":", "", "|", "", `"`, "",
	"<", "", ">", "", ".", "", ",", "", ";", "", "'", "", "[", "", "]", "",
	"(", "", ")", "", "&", "", " ", "",
	"+", "-plus",
)

// CanonicalKey joins the present fields with Delimiter and sanitises the result:
// forbidden characters and spaces are stripped, "+" becomes "-plus" and the
// key is lowercased.
func CanonicalKey(rec *models.FeedRecord, fields ...models.Field) (string, error) {
	if len(fields) == 0 {
		fields = KeyFields
	}
	parts := present(rec, fields)
	if len(parts) == 0 {
		return "", ErrNoIdentity
	}

	key := strings.ToLower(sanitizer.Replace(strings.Join(parts, Delimiter)))
	if strings.Trim(key, Delimiter) == "" {
		return "", eris.Wrapf(ErrNoIdentity, "fields %v sanitise to nothing", parts)
	}
	return key, nil
}

// DisplayKey joins the present fields with single spaces. The result is for
// human-readable text only and must never back a file path.
func DisplayKey(rec *models.FeedRecord, fields ...models.Field) string {
	return strings.Join(present(rec, fields), " ")
}

// FileName returns the storage name for key with the given extension.
func FileName(key, ext string) string {
	return key + "." + strings.TrimPrefix(ext, ".")
}

func present(rec *models.FeedRecord, fields []models.Field) []string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v, ok := rec.Get(f); ok {
			parts = append(parts, v)
		}
	}
	return parts
}
