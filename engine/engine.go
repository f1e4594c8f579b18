// Package engine applies feed records to the content store: the first record
// of an identity creates its page, later ones are merged into it.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aluiziolira/go-stock-sync/content"
	"github.com/aluiziolira/go-stock-sync/identity"
	"github.com/aluiziolira/go-stock-sync/mapping"
	"github.com/aluiziolira/go-stock-sync/metrics"
	"github.com/aluiziolira/go-stock-sync/models"
	"github.com/aluiziolira/go-stock-sync/parser"
	"github.com/aluiziolira/go-stock-sync/thumbs"
)

// TitleSuffix follows the display key in page titles, before the dealer location.
const TitleSuffix = " купить у официального дилера в "

// Options holds dealer wording and identity settings.
type Options struct {
	// DealerWhere completes the title, e.g. "Москве".
	DealerWhere string
	// DealerCity is named in the description summary.
	DealerCity string
	// KeyFields overrides identity.KeyFields.
	KeyFields []models.Field
}

// Engine performs upserts. Callers must not upsert the same key concurrently.
type Engine struct {
	store    *content.Store
	resolver *mapping.Resolver
	thumbs   *thumbs.Cache
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New wires an engine. A nil logger selects the global zap logger.
func New(store *content.Store, resolver *mapping.Resolver, cache *thumbs.Cache, opts Options, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		thumbs:   cache,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// Key returns the canonical key the engine would use for rec.
func (e *Engine) Key(rec *models.FeedRecord) (string, error) {
	return identity.CanonicalKey(rec, e.opts.KeyFields...)
}

// Upsert applies rec to the store and records the outcome on run. The
// returned error is non-nil exactly when the outcome is rejected or failed;
// neither stops the run.
func (e *Engine) Upsert(ctx context.Context, rec *models.FeedRecord, run *Run) (models.Outcome, error) {
	vin := rec.Value(models.FieldVIN)
	if err := parser.ValidateRecord(rec); err != nil {
		return e.finish(run, models.Outcome{VIN: vin, Status: models.StatusRejected, Reason: err.Error()}, thumbs.Result{}, err)
	}

	key, err := e.Key(rec)
	if err != nil {
		return e.finish(run, models.Outcome{VIN: vin, Status: models.StatusRejected, Reason: err.Error()}, thumbs.Result{}, err)
	}
	out := models.Outcome{Key: key, VIN: vin}

	exists, err := e.store.Exists(key)
	if err != nil {
		out.Status, out.Reason = models.StatusFailed, err.Error()
		return e.finish(run, out, thumbs.Result{}, err)
	}

	if !exists {
		page, res := e.create(ctx, key, rec, run)
		if err := e.store.Write(page); err != nil {
			out.Status, out.Reason = models.StatusFailed, err.Error()
			return e.finish(run, out, res, err)
		}
		out.Status = models.StatusCreated
		return e.finish(run, out, res, nil)
	}

	page, err := e.store.Read(key)
	if err != nil {
		out.Status, out.Reason = models.StatusFailed, err.Error()
		return e.finish(run, out, thumbs.Result{}, err)
	}
	res := e.merge(ctx, page, rec, run)
	if err := e.store.Write(page); err != nil {
		out.Status, out.Reason = models.StatusFailed, err.Error()
		return e.finish(run, out, res, err)
	}
	out.Status = models.StatusMerged
	return e.finish(run, out, res, nil)
}

func (e *Engine) finish(run *Run, out models.Outcome, res thumbs.Result, err error) (models.Outcome, error) {
	run.record(out, res)
	e.metrics.IncRecord(string(out.Status))

	fields := []zap.Field{
		zap.String("key", out.Key),
		zap.String("vin", out.VIN),
		zap.String("status", string(out.Status)),
	}
	switch {
	case out.Status == models.StatusFailed:
		e.logger.Error("record failed", append(fields, zap.Error(err))...)
	case out.Status == models.StatusRejected && errors.Is(err, identity.ErrNoIdentity):
		e.logger.Warn("record has no identity", append(fields, zap.Error(err))...)
	case out.Status == models.StatusRejected:
		e.logger.Warn("record rejected", append(fields, zap.Error(err))...)
	default:
		e.logger.Info("record applied", append(fields, zap.Int("thumbs_generated", res.Generated))...)
	}
	return out, err
}

func (e *Engine) create(ctx context.Context, key string, rec *models.FeedRecord, run *Run) (*content.Record, thumbs.Result) {
	vin := rec.Value(models.FieldVIN)
	model := rec.Value(models.FieldModel)
	color := parser.NormalizeColor(rec.Value(models.FieldColor))

	cover := e.resolver.Resolve(model, color)
	if cover.Tier == mapping.MissModel {
		run.Report.Add(vin, model)
	}
	if !cover.Found() {
		e.logger.Warn("cover image not mapped",
			zap.String("key", key),
			zap.String("vin", vin),
			zap.String("model", model),
			zap.String("tier", cover.Tier.String()),
		)
	}

	res := e.thumbs.Generate(ctx, key, rec.Images, nil, run.Live)

	page := &content.Record{
		Key:               key,
		Total:             quantity(rec),
		VINHidden:         parser.MaskVIN(vin),
		H1:                identity.DisplayKey(rec, models.FieldModel, models.FieldModification),
		Breadcrumb:        identity.DisplayKey(rec, models.FieldMark, models.FieldModel, models.FieldComplectation),
		Title:             e.title(rec),
		Color:             color,
		Image:             cover.Path,
		Images:            append([]string{}, rec.Images...),
		Thumbs:            res.Paths,
		Mileage:           amount(rec, models.FieldMileage),
		PriceWithDiscount: amount(rec, models.FieldPriceWithDiscount),
		Extras:            passthrough(rec),
	}
	if desc, ok := rec.Get(models.FieldDescription); ok {
		page.Description = e.summary(rec)
		page.Body = parser.Paragraphs(desc)
	}
	return page, res
}

// merge folds rec into an existing page. Quantities add up, mileage and
// discounted price keep the minimum, images accumulate and thumbnails fill the
// remaining free slots. Every other field, passthrough attributes and the
// description included, keeps the value of the record that created the page.
func (e *Engine) merge(ctx context.Context, page *content.Record, rec *models.FeedRecord, run *Run) thumbs.Result {
	page.Total += quantity(rec)
	page.Mileage = minWithZero(page.Mileage, amount(rec, models.FieldMileage))
	page.PriceWithDiscount = minWithZero(page.PriceWithDiscount, amount(rec, models.FieldPriceWithDiscount))
	page.Images = append(page.Images, rec.Images...)

	existing := make([]string, 0, len(page.Thumbs))
	for _, p := range page.Thumbs {
		existing = append(existing, e.thumbs.FileOf(p))
	}
	run.Live.Add(existing...)

	var res thumbs.Result
	if free := e.thumbs.Max() - len(page.Thumbs); free > 0 && len(rec.Images) > 0 {
		res = e.thumbs.Generate(ctx, page.Key, rec.Images, page.Thumbs, run.Live)
		if len(res.Paths) > free {
			res.Paths = res.Paths[:free]
		}
		page.Thumbs = append(page.Thumbs, res.Paths...)
	}
	return res
}

func (e *Engine) title(rec *models.FeedRecord) string {
	t := identity.DisplayKey(rec, models.FieldMark, models.FieldModel, models.FieldModification)
	if e.opts.DealerWhere == "" {
		return t
	}
	return t + TitleSuffix + e.opts.DealerWhere
}

// summary is the sentence shown above the body.
func (e *Engine) summary(rec *models.FeedRecord) string {
	p := message.NewPrinter(language.Russian)
	name := identity.DisplayKey(rec, models.FieldMark, models.FieldModel)

	var b strings.Builder
	b.WriteString("Купить автомобиль " + name)
	if y, ok := rec.Get(models.FieldYear); ok {
		b.WriteString(" " + y + " года выпуска")
	}
	if c, ok := rec.Get(models.FieldComplectation); ok {
		b.WriteString(", комплектация " + c)
	}
	if c, ok := rec.Get(models.FieldColor); ok {
		b.WriteString(", цвет - " + parser.NormalizeColor(c))
	}
	if m, ok := rec.Get(models.FieldModification); ok {
		b.WriteString(", двигатель - " + m)
	}
	if e.opts.DealerCity != "" {
		b.WriteString(" у официального дилера в г. " + e.opts.DealerCity)
	}
	b.WriteString(".")

	price := amount(rec, models.FieldPriceWithDiscount)
	if price == nil || *price <= 0 {
		price = amount(rec, models.FieldPrice)
	}
	if price != nil && *price > 0 {
		b.WriteString(p.Sprintf(" Стоимость данного автомобиля %s – %d ₽.", name, *price))
	}
	return b.String()
}

// Fields rendered under their own metadata keys are not passed through.
var consumed = map[models.Field]bool{
	models.FieldTotal:             true,
	models.FieldColor:             true,
	models.FieldDescription:       true,
	models.FieldMileage:           true,
	models.FieldPriceWithDiscount: true,
	models.FieldImages:            true,
}

func passthrough(rec *models.FeedRecord) []models.Attr {
	attrs := make([]models.Attr, 0, len(rec.Attrs))
	for _, a := range rec.Attrs {
		if consumed[a.Name] {
			continue
		}
		if a.Name == models.FieldExtras {
			a.Value = strings.ReplaceAll(strings.ReplaceAll(a.Value, "\r\n", "\n"), "\n", "<br>\n")
		}
		attrs = append(attrs, a)
	}
	return parser.Localize(attrs)
}

func quantity(rec *models.FeedRecord) int {
	if v, ok := rec.Get(models.FieldTotal); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func amount(rec *models.FeedRecord, f models.Field) *int {
	v, ok := rec.Get(f)
	if !ok {
		return nil
	}
	n, ok := parser.ParseAmount(v)
	if !ok {
		return nil
	}
	return &n
}

// minWithZero treats an absent side as 0, so a single missing value pins
// the merged result to 0 and a merge always persists a value.
func minWithZero(existing, incoming *int) *int {
	a, b := 0, 0
	if existing != nil {
		a = *existing
	}
	if incoming != nil {
		b = *incoming
	}
	m := min(a, b)
	return &m
}
