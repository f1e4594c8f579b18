package feed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/aluiziolira/go-stock-sync/models"
)

func collect(recs <-chan *models.FeedRecord, errs <-chan error) ([]*models.FeedRecord, error) {
	var out []*models.FeedRecord
	for rec := range recs {
		out = append(out, rec)
	}
	return out, <-errs
}

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<data>
  <cars>
    <car>
      <mark_id>GAC</mark_id>
      <folder_id>GS8</folder_id>
      <modification_id>2.0T</modification_id>
      <complectation_name>GL</complectation_name>
      <color>черный</color>
      <year>2023</year>
      <vin>LMGFE1G88P1234567</vin>
      <engineType>petrol</engineType>
      <options><option>ABS</option></options>
      <images>
        <image>http://cdn.example.test/1.jpg</image>
        <image>http://cdn.example.test/2.jpg</image>
      </images>
      <description></description>
    </car>
    <car>
      <mark_id>GAC</mark_id>
      <folder_id>GS3</folder_id>
    </car>
  </cars>
</data>`

func TestStreamXML(t *testing.T) {
	recs, err := collect(StreamXML(context.Background(), strings.NewReader(sampleXML)))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	first := recs[0]
	names := make([]models.Field, 0, len(first.Attrs))
	for _, a := range first.Attrs {
		names = append(names, a.Name)
	}
	assert.Equal(t, []models.Field{"mark_id", "folder_id", "modification_id", "complectation_name", "color", "year", "vin", "engineType"}, names)
	assert.Equal(t, []string{"http://cdn.example.test/1.jpg", "http://cdn.example.test/2.jpg"}, first.Images)
	_, ok := first.Get("options")
	assert.False(t, ok)
	_, ok = first.Get(models.FieldDescription)
	assert.False(t, ok)

	assert.Equal(t, "GS3", recs[1].Value(models.FieldModel))
	assert.Empty(t, recs[1].Images)
}

func TestStreamXML_Malformed(t *testing.T) {
	_, err := collect(StreamXML(context.Background(), strings.NewReader("<cars><car><vin>1</car>")))
	require.Error(t, err)
}

func TestStreamCSV_DefaultsAndHeaders(t *testing.T) {
	input := "Модель;Цвет;VIN;Пробег;Изображения;Неизвестно\n" +
		"GS8;белый;LMGFE1G88P1234567;;http://cdn.example.test/1.jpg, http://cdn.example.test/2.jpg;x\n" +
		";;;;;\n" +
		"GS3;серый;LMGAA1G88P7654321;1500;;\n"

	recs, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, "GAC", r.Value(models.FieldMark))
	assert.Equal(t, "GS8", r.Value(models.FieldModel))
	assert.Equal(t, "0", r.Value(models.FieldMileage))
	assert.Equal(t, "2023", r.Value(models.FieldYear))
	assert.Equal(t, "1", r.Value(models.FieldTotal))
	assert.Equal(t, "RUR", r.Value("currency"))
	assert.Equal(t, []string{"http://cdn.example.test/1.jpg", "http://cdn.example.test/2.jpg"}, r.Images)
	_, ok := r.Get("Неизвестно")
	assert.False(t, ok)
	_, ok = r.Get(models.FieldPrice)
	assert.False(t, ok)

	assert.Equal(t, "1500", recs[1].Value(models.FieldMileage))
}

func TestStreamCSV_CommaDelimiter(t *testing.T) {
	input := "mark_id,folder_id,color\nGAC,GS8,black\n"
	recs, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "black", recs[0].Value(models.FieldColor))
}

func TestStreamXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, data := range [][]string{
		{"Марка", "Модель", "Цвет", "Год"},
		{"GAC", "GS8", "черный", ""},
	} {
		row := sheet.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	recs, err := collect(StreamXLSX(context.Background(), buf.Bytes(), XLSXOptions{}))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "GS8", recs[0].Value(models.FieldModel))
	assert.Equal(t, "2023", recs[0].Value(models.FieldYear))
}

func TestStreamXLSX_Corrupt(t *testing.T) {
	_, err := collect(StreamXLSX(context.Background(), []byte("not a zip"), XLSXOptions{}))
	require.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("stock.CSV"))
	assert.Equal(t, FormatXLSX, DetectFormat("/tmp/stock.xlsx"))
	assert.Equal(t, FormatXML, DetectFormat("https://dealer.example.test/feed.xml?token=1"))
	assert.Equal(t, FormatCSV, DetectFormat("https://dealer.example.test/feed.csv?token=1"))
	assert.Equal(t, FormatXML, DetectFormat("feed"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatAuto, f)

	f, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("json")
	assert.Error(t, err)
}

type staticFetcher map[string][]byte

func (s staticFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return s[url], nil
}

func TestOpen_LocalFileWithBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock.xml")
	require.NoError(t, os.WriteFile(path, append([]byte("\xef\xbb\xbf"), sampleXML...), 0o644))

	recs, errs, err := Open(context.Background(), path, FormatAuto, nil)
	require.NoError(t, err)
	out, err := collect(recs, errs)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestOpen_Remote(t *testing.T) {
	url := "http://dealer.example.test/stock.csv"
	f := staticFetcher{url: []byte("folder_id,color\nGS8,black\n")}

	recs, errs, err := Open(context.Background(), url, FormatAuto, f)
	require.NoError(t, err)
	out, err := collect(recs, errs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "GS8", out[0].Value(models.FieldModel))
}

func TestOpen_MissingFile(t *testing.T) {
	_, _, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.xml"), FormatAuto, nil)
	assert.Error(t, err)
}
