package feed

import (
	"strings"

	"github.com/aluiziolira/go-stock-sync/models"
)

// Column maps a localized spreadsheet header to a feed field. Default fills
// the field when the cell is blank or the column is missing.
type Column struct {
	Header  string
	Field   models.Field
	Default string
}

// Columns is the header vocabulary of tabular (CSV and XLSX) feeds.
var Columns = []Column{
	{Header: "Марка", Field: models.FieldMark, Default: "GAC"},
	{Header: "Модель", Field: models.FieldModel},
	{Header: "Модификация", Field: models.FieldModification},
	{Header: "Тип кузова", Field: "body_type"},
	{Header: "Комплектация", Field: models.FieldComplectation},
	{Header: "Руль", Field: "wheel", Default: "Правый"},
	{Header: "Цвет", Field: models.FieldColor},
	{Header: "Металлик", Field: "metallic"},
	{Header: "Наличие", Field: "availability", Default: "в наличии"},
	{Header: "Привод", Field: "driveType", Default: "Передний"},
	{Header: "Топливо", Field: "engineType", Default: "Бензин"},
	{Header: "Коробка", Field: "gearboxType"},
	{Header: "Пробег", Field: models.FieldMileage, Default: "0"},
	{Header: "Таможня", Field: "custom", Default: "растаможен"},
	{Header: "Владельцы", Field: "owners_number", Default: "Не было владельцев"},
	{Header: "Год", Field: models.FieldYear, Default: "2023"},
	{Header: "Цена", Field: models.FieldPrice},
	{Header: "Скидка по кредиту", Field: "credit_discount", Default: "0"},
	{Header: "Скидка по страховке", Field: "insurance_discount", Default: "0"},
	{Header: "Скидка по trade-in", Field: "tradein_discount", Default: "0"},
	{Header: "Дополнительная скидка", Field: "optional_discount", Default: "0"},
	{Header: "Максимальная скидка", Field: "max_discount"},
	{Header: "Валюта", Field: "currency", Default: "RUR"},
	{Header: "VIN", Field: models.FieldVIN},
	{Header: "Описание", Field: models.FieldDescription},
	{Header: "Количество", Field: models.FieldTotal, Default: "1"},
	{Header: "Изображения", Field: models.FieldImages},
}

// headerIndex resolves header cells to columns. Canonical field names are
// accepted as headers too. Unknown headers map to nil.
type headerIndex struct {
	byPos []*Column
}

func newHeaderIndex(header []string) *headerIndex {
	lookup := make(map[string]*Column, len(Columns)*2)
	for i := range Columns {
		c := &Columns[i]
		lookup[strings.ToLower(c.Header)] = c
		lookup[strings.ToLower(string(c.Field))] = c
	}

	idx := &headerIndex{byPos: make([]*Column, len(header))}
	seen := make(map[models.Field]bool)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		c, ok := lookup[h]
		if !ok || seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		idx.byPos[i] = c
	}
	return idx
}

// record builds a feed record from one data row. Blank rows yield nil.
func (h *headerIndex) record(row []string) *models.FeedRecord {
	blank := true
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil
	}

	rec := models.NewFeedRecord()
	filled := make(map[models.Field]bool, len(Columns))
	for i, c := range h.byPos {
		if c == nil {
			continue
		}
		var cell string
		if i < len(row) {
			cell = strings.TrimSpace(row[i])
		}
		if cell == "" {
			cell = c.Default
		}
		filled[c.Field] = true
		if c.Field == models.FieldImages {
			for _, u := range splitImages(cell) {
				rec.AddImage(u)
			}
			continue
		}
		rec.Set(c.Field, cell)
	}
	for _, c := range Columns {
		if !filled[c.Field] && c.Default != "" {
			rec.Set(c.Field, c.Default)
		}
	}
	return rec
}

func splitImages(cell string) []string {
	return strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == ' ' || r == '\t'
	})
}
