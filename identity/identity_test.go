package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-stock-sync/models"
)

func record(pairs ...string) *models.FeedRecord {
	rec := models.NewFeedRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		rec.Set(models.Field(pairs[i]), pairs[i+1])
	}
	return rec
}

func TestCanonicalKey_Scenario(t *testing.T) {
	rec := record(
		"mark_id", "Acme",
		"folder_id", "X1",
		"modification_id", "Turbo",
		"color", "Red",
		"year", "2024",
	)

	key, err := CanonicalKey(rec)
	require.NoError(t, err)
	assert.Equal(t, "acme-x1-turbo-red-2024", key)
}

func TestCanonicalKey_Sanitises(t *testing.T) {
	tests := []struct {
		name string
		rec  *models.FeedRecord
		want string
	}{
		{
			name: "spaces and punctuation",
			rec:  record("mark_id", "Li Auto", "folder_id", "L9 (2.0)", "complectation_name", "Max; Pro & Co."),
			want: "liauto-l920-maxproco",
		},
		{
			name: "plus sign",
			rec:  record("mark_id", "Chery", "folder_id", "Tiggo 7 Pro Max+"),
			want: "chery-tiggo7promax-plus",
		},
		{
			name: "path separators and quotes",
			rec:  record("mark_id", `A/B\C`, "folder_id", `"Q'<>|*?%:`, "year", "[2023]"),
			want: "abc-q-2023",
		},
		{
			name: "absent fields skipped",
			rec:  record("folder_id", "GS8", "year", "2024"),
			want: "gs8-2024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := CanonicalKey(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestCanonicalKey_NeverContainsForbidden(t *testing.T) {
	values := []string{"Ёлка 1.5 T/CVT", "A&B (C)", "x+y", `"q"`, "Mixed Case,", "tab\tin"}
	for _, v := range values {
		key, err := CanonicalKey(record("mark_id", v, "folder_id", v))
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(key, `/\?%*:|"<>.,;'[]()& `), "key %q", key)
		assert.Equal(t, strings.ToLower(key), key)

		again, err := CanonicalKey(record("mark_id", v, "folder_id", v))
		require.NoError(t, err)
		assert.Equal(t, key, again)
	}
}

func TestCanonicalKey_NoIdentity(t *testing.T) {
	_, err := CanonicalKey(record("vin", "XTA000000000001"))
	assert.True(t, errors.Is(err, ErrNoIdentity))

	_, err = CanonicalKey(record("mark_id", "..."))
	assert.True(t, errors.Is(err, ErrNoIdentity))
}

func TestCanonicalKey_CustomOrder(t *testing.T) {
	rec := record("mark_id", "Acme", "year", "2024", "color", "Red")
	key, err := CanonicalKey(rec, models.FieldYear, models.FieldMark)
	require.NoError(t, err)
	assert.Equal(t, "2024-acme", key)
}

func TestDisplayKey(t *testing.T) {
	rec := record("mark_id", "Li Auto", "folder_id", "L9 (2.0)", "modification_id", "1.5 AT")
	assert.Equal(t, "L9 (2.0) 1.5 AT", DisplayKey(rec, models.FieldModel, models.FieldModification))
	assert.Equal(t, "Li Auto L9 (2.0)", DisplayKey(rec, models.FieldMark, models.FieldModel, models.FieldComplectation))
	assert.Equal(t, "", DisplayKey(rec, models.FieldYear))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "acme-x1.mdx", FileName("acme-x1", ".mdx"))
	assert.Equal(t, "acme-x1.mdx", FileName("acme-x1", "mdx"))
}
