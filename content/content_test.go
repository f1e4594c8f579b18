package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-stock-sync/models"
)

func intp(v int) *int { return &v }

func sampleRecord() *Record {
	return &Record{
		Key:               "gac-gs8-20t-gl-black-2023",
		Total:             2,
		VINHidden:         "LMGFE-1234",
		H1:                "GS8 2.0T",
		Breadcrumb:        "GAC GS8 GL",
		Title:             "GAC GS8 2.0T купить у официального дилера в Москве",
		Color:             "Черный",
		Image:             "img/models/gs8/colors/black.webp",
		Images:            []string{"http://cdn.example.test/1.jpg", "http://cdn.example.test/2.jpg"},
		Thumbs:            []string{"img/thumbs/thumb_gac-gs8-20t-gl-black-2023_0.webp"},
		Description:       "GAC GS8 2023 года в комплектации GL",
		Mileage:           intp(0),
		PriceWithDiscount: intp(3190000),
		Extras: []models.Attr{
			{Name: "year", Value: "2023"},
			{Name: "engineType", Value: "Бензин"},
			{Name: "extras", Value: "Люк<br>\nПодогрев"},
			{Name: "availability", Value: "в наличии"},
		},
		Body: "<p>Первая строка</p>\n<p>&nbsp;</p>\n<p>Вторая</p>",
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	rec := sampleRecord()
	data, err := Render(rec)
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)
	got.Key = rec.Key
	assert.Equal(t, rec, got)
}

func TestRenderKeyOrder(t *testing.T) {
	data, err := Render(sampleRecord())
	require.NoError(t, err)
	text := string(data)

	require.True(t, strings.HasPrefix(text, "---\ntotal: 2\n"))
	order := []string{"total:", "vin_hidden:", "h1:", "breadcrumb:", "title:", "color:", "image:",
		"images:", "thumbs:", "description:", "run:", "priceWithDiscount:", "year:", "engineType:", "extras:", "availability:"}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, "\n"+key)
		require.Greater(t, idx, last, key)
		last = idx
	}
	assert.Contains(t, text, "\nyear: 2023\n")
	assert.Contains(t, text, "\n---\n<p>Первая строка</p>")
}

func TestRenderEmptyLists(t *testing.T) {
	data, err := Render(&Record{Key: "k", Total: 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), "images: []\n")
	assert.Contains(t, string(data), "thumbs: []\n")
	assert.NotContains(t, string(data), "run:")

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Nil(t, got.Mileage)
	assert.Empty(t, got.Thumbs)
}

func TestParseMalformed(t *testing.T) {
	tests := map[string]string{
		"no delimiters": "just some text",
		"unterminated":  "---\ntotal: 1\n",
		"not a mapping": "---\n- a\n- b\n---\n",
		"invalid yaml":  "---\ntotal: [1\n---\n",
		"text total":    "---\ntotal: many\n---\n",
		"text mileage":  "---\ntotal: 1\nrun: far\n---\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))
		})
	}
}

func TestParseNullOptionalInts(t *testing.T) {
	rec, err := Parse([]byte("---\ntotal: 2\nrun: null\npriceWithDiscount: 100\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Total)
	assert.Nil(t, rec.Mileage)
	require.NotNil(t, rec.PriceWithDiscount)
	assert.Equal(t, 100, *rec.PriceWithDiscount)
}

func TestStore(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "")

	ok, err := s.Exists("k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Read("k")
	assert.True(t, errors.Is(err, ErrNotFound))

	rec := sampleRecord()
	rec.Key = "k"
	require.NoError(t, s.Write(rec))

	ok, err = s.Exists("k")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = fs.Stat("k.mdx.tmp")
	assert.Error(t, err)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestStoreReadMalformed(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "broken.mdx", []byte("hello"), 0o644))

	_, err := NewStore(fs, "mdx").Read("broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestStoreReset(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, ".mdx")
	require.NoError(t, s.Write(&Record{Key: "a", Total: 1}))
	require.NoError(t, s.Write(&Record{Key: "b", Total: 1}))
	require.NoError(t, util.WriteFile(fs, ".stocksync.lock", nil, 0o644))

	n, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, err = fs.Stat(".stocksync.lock")
	assert.NoError(t, err)
}
