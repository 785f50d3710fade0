// Package convert runs the whole pipeline on one container: decryption,
// parsing, resolution, then every requested output rendered concurrently
// against the shared book.
//
// Parse and root resolution failures are returned as the error of Convert.
// Renderer failures are attached to their Output and recorded in the report;
// they never affect other outputs.
package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	kfx "github.com/logicossoftware/go-kfx"
	"github.com/logicossoftware/go-kfx/book"
	"github.com/logicossoftware/go-kfx/diag"
	"github.com/logicossoftware/go-kfx/internal/logging"
	"github.com/logicossoftware/go-kfx/render"
	"github.com/logicossoftware/go-kfx/render/comic"
	"github.com/logicossoftware/go-kfx/render/epub"
	"github.com/logicossoftware/go-kfx/render/pdf"
	"github.com/logicossoftware/go-kfx/render/position"
	"github.com/logicossoftware/go-kfx/render/unpack"
)

var ErrNoInput = errors.New("convert: no input")

// Request selects the outputs. No formats means EPUB only.
type Request struct {
	Formats []render.Format
	Options render.Options
}

// Output is the result of one format. Data is nil when Err is set.
type Output struct {
	Format render.Format
	Data   []byte
	Err    error
}

// Result is everything one conversion produced.
type Result struct {
	Book *book.Book
	// Outputs follow render.Formats order, one per requested format.
	Outputs []Output
	Report  *diag.Report
}

// Output returns the output for f, if it was requested.
func (r *Result) Output(f render.Format) (Output, bool) {
	for _, o := range r.Outputs {
		if o.Format == f {
			return o, true
		}
	}
	return Output{}, false
}

// Failed returns the outputs whose renderer failed.
func (r *Result) Failed() []Output {
	var out []Output
	for _, o := range r.Outputs {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

type config struct {
	decrypter kfx.Decrypter
	read      []kfx.ReadOption
	report    *diag.Report
	logger    *slog.Logger
	renderers map[render.Format]render.Renderer
}

type Option func(*config)

// WithDecrypter handles DRMION-wrapped parts. Without one they fail with
// kfx.ErrEncrypted.
func WithDecrypter(d kfx.Decrypter) Option {
	return func(c *config) { c.decrypter = d }
}

func WithReadOptions(opts ...kfx.ReadOption) Option {
	return func(c *config) { c.read = append(c.read, opts...) }
}

// WithReport collects diagnostics in r instead of a fresh report.
func WithReport(r *diag.Report) Option {
	return func(c *config) { c.report = r }
}

// WithLogger logs progress and mirrors a fresh report's entries to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithRenderer replaces the renderer used for r.Format().
func WithRenderer(r render.Renderer) Option {
	return func(c *config) { c.renderers[r.Format()] = r }
}

func newConfig(opts []Option) config {
	c := config{
		renderers: map[render.Format]render.Renderer{
			render.FormatEPUB:     epub.New(),
			render.FormatPDF:      pdf.New(),
			render.FormatCBZ:      comic.New(),
			render.FormatUnpack:   unpack.New(),
			render.FormatPosition: position.New(),
		},
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.report == nil {
		c.report = diag.NewReport(diag.WithLogger(c.logger))
	}
	return c
}

// Convert turns the parts of one container into the requested outputs.
func Convert(parts [][]byte, req Request, opts ...Option) (*Result, error) {
	cfg := newConfig(opts)
	logger := logging.NewComponentLogger(cfg.logger, "convert")
	if len(parts) == 0 {
		return nil, ErrNoInput
	}

	plain := make([][]byte, len(parts))
	for i, part := range parts {
		data, err := kfx.Prepare(part, cfg.decrypter)
		if err != nil {
			var fe *kfx.FormatError
			if errors.As(err, &fe) {
				fe.Part = i
			}
			return nil, err
		}
		plain[i] = data
	}
	store, err := kfx.ParseParts(plain, cfg.read...)
	if err != nil {
		return nil, err
	}
	b, err := book.Resolve(store, book.WithReport(cfg.report))
	if err != nil {
		return nil, err
	}
	logger.Debug("book resolved",
		logging.String("root", b.Root),
		logging.String("layout", string(b.Layout.Kind)),
		logging.Int("sections", len(b.Sections)),
		logging.Int("resources", len(b.Resources)),
	)

	formats := requested(req.Formats)
	if b.Layout.HasPDFResource && !slices.Contains(formats, render.FormatPDF) {
		cfg.report.Warn("book contains PDF content", diag.Resource(b.Layout.PDFResource))
	}

	res := &Result{Book: b, Outputs: make([]Output, len(formats)), Report: cfg.report}
	var wg sync.WaitGroup
	for i, f := range formats {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Outputs[i] = renderOne(cfg, b, f, req.Options)
		}()
	}
	wg.Wait()

	for _, o := range res.Outputs {
		if o.Err != nil {
			continue
		}
		logger.Info("output rendered",
			logging.String(logging.FieldOutput, string(o.Format)),
			logging.Int("bytes", len(o.Data)),
		)
	}
	return res, nil
}

// requested dedupes formats into render.Formats order.
func requested(formats []render.Format) []render.Format {
	if len(formats) == 0 {
		return []render.Format{render.FormatEPUB}
	}
	var out []render.Format
	for _, f := range render.Formats {
		if slices.Contains(formats, f) {
			out = append(out, f)
		}
	}
	return out
}

func renderOne(cfg config, b *book.Book, f render.Format, opts render.Options) (out Output) {
	out.Format = f
	report := cfg.report.WithOutput(string(f))
	defer func() {
		if p := recover(); p != nil {
			out.Data, out.Err = nil, fmt.Errorf("convert: %s renderer panicked: %v", f, p)
			report.Error(out.Err.Error())
		}
	}()

	r, ok := cfg.renderers[f]
	if !ok {
		out.Err = fmt.Errorf("convert: no renderer for %s", f)
		report.Error(out.Err.Error())
		return out
	}
	out.Data, out.Err = r.Render(b, opts)
	if out.Err != nil {
		out.Data = nil
		var ctx []diag.Context
		var rerr *render.Error
		if errors.As(out.Err, &rerr) && rerr.Resource != "" {
			ctx = append(ctx, diag.Resource(rerr.Resource))
		}
		report.Error(out.Err.Error(), ctx...)
	}
	return out
}
