package parser

import "github.com/aluiziolira/go-stock-sync/models"

// Translations maps feed enum values to their display text.
var Translations = map[string]string{
	// engineType
	"hybrid":         "Гибрид",
	"petrol":         "Бензин",
	"diesel":         "Дизель",
	"petrol_and_gas": "Бензин и газ",
	"electric":       "Электро",

	// driveType
	"full_4wd":     "Постоянный полный",
	"optional_4wd": "Подключаемый полный",
	"front":        "Передний",
	"rear":         "Задний",

	// gearboxType, transmission
	"robotized": "Робот",
	"variator":  "Вариатор",
	"manual":    "Механика",
	"automatic": "Автомат",
	"RT":        "Робот",
	"CVT":       "Вариатор",
	"MT":        "Механика",
	"AT":        "Автомат",

	// ptsType
	"duplicate":  "Дубликат",
	"original":   "Оригинал",
	"electronic": "Электронный",

	// bodyColor
	"black":  "Черный",
	"white":  "Белый",
	"blue":   "Синий",
	"gray":   "Серый",
	"grey":   "Серый",
	"silver": "Серебристый",
	"brown":  "Коричневый",
	"red":    "Красный",
	"azure":  "Лазурный",
	"beige":  "Бежевый",

	// steeringWheel
	"left":  "Левый",
	"right": "Правый",
	"L":     "Левый",
	"R":     "Правый",

	// bodyType
	"suv": "SUV",
}

// LocalizedFields lists the passthrough attributes whose values are enum codes.
var LocalizedFields = map[models.Field]bool{
	"engineType":    true,
	"driveType":     true,
	"gearboxType":   true,
	"transmission":  true,
	"ptsType":       true,
	"bodyColor":     true,
	"steeringWheel": true,
	"wheel":         true,
	"bodyType":      true,
	"body_type":     true,
}

// Localize returns a copy of attrs with enum codes replaced by display text.
// The input slice is left untouched.
func Localize(attrs []models.Attr) []models.Attr {
	out := make([]models.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = a
		if !LocalizedFields[a.Name] {
			continue
		}
		if text, ok := Translations[a.Value]; ok {
			out[i].Value = text
		}
	}
	return out
}
