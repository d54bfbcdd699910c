package engine

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docforensics/xray/internal/geometry"
	"github.com/docforensics/xray/internal/input"
)

// Open opens a resolved source as a Document. pdfcpu gates document
// validity (relaxed validation, page-count repair, encryption detection);
// ledongthuc/pdf then provides the page tree, decoded content streams and
// per-character text geometry the pages are built from.
func Open(src input.Source) (Document, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(src.Data), conf)
	if err != nil {
		return nil, &EngineError{Op: "open", Err: fmt.Errorf("failed to read PDF context: %w", err)}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &EngineError{Op: "open", Err: fmt.Errorf("failed to ensure page count: %w", err)}
	}
	if ctx.Encrypt != nil {
		return nil, &EngineError{Op: "open", Err: fmt.Errorf("encrypted documents are not supported")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, &EngineError{Op: "open", Err: fmt.Errorf("failed to open page tree: %w", err)}
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		pageCount = ctx.PageCount
	}

	return &document{
		reader:    reader,
		pageCount: pageCount,
	}, nil
}

type document struct {
	reader    *pdf.Reader
	pageCount int
}

func (d *document) PageCount() int {
	return d.pageCount
}

func (d *document) Page(n int) (Page, error) {
	if n < 1 || n > d.pageCount {
		return nil, &EngineError{Op: "page",
			Err: fmt.Errorf("invalid page number %d (document has %d pages)", n, d.pageCount)}
	}
	return &page{doc: d, num: n}, nil
}

func (d *document) Close() error {
	return nil
}

// page lazily interprets its content streams once and serves shapes, spans
// and raster crops from the cached result.
type page struct {
	doc *document
	num int

	built    bool
	buildErr error
	mbox     geometry.Rect
	width    float64
	height   float64
	shapes   []Shape
	spans    []TextSpan
}

func (p *page) Number() int {
	return p.num
}

func (p *page) Size() (float64, float64, error) {
	if err := p.build(); err != nil {
		return 0, 0, err
	}
	return p.width, p.height, nil
}

func (p *page) Shapes() ([]Shape, error) {
	if err := p.build(); err != nil {
		return nil, err
	}
	return p.shapes, nil
}

func (p *page) TextSpans() ([]TextSpan, error) {
	if err := p.build(); err != nil {
		return nil, err
	}
	return p.spans, nil
}

func (p *page) RenderRegion(clip geometry.Rect, scale float64) (image.Image, error) {
	if err := p.build(); err != nil {
		return nil, err
	}
	return renderRegion(p.shapes, p.spans, clip, scale)
}

// build decodes the page once. Malformed pages (including panics from the
// underlying parser, which chokes on some broken font programs) surface as a
// build error the caller downgrades to "no redactions on this page".
func (p *page) build() (err error) {
	if p.built {
		return p.buildErr
	}
	p.built = true

	defer func() {
		if r := recover(); r != nil {
			p.buildErr = &EngineError{Op: "build", Err: fmt.Errorf("page %d: parser panic: %v", p.num, r)}
			err = p.buildErr
		}
	}()

	pg := p.doc.reader.Page(p.num)
	if pg.V.IsNull() {
		p.buildErr = &EngineError{Op: "build", Err: fmt.Errorf("page %d: missing page dictionary", p.num)}
		return p.buildErr
	}

	mediaBox, err := mediaBox(pg.V)
	if err != nil {
		p.buildErr = &EngineError{Op: "build", Err: fmt.Errorf("page %d: %w", p.num, err)}
		return p.buildErr
	}
	p.mbox = mediaBox
	p.width = mediaBox.Width()
	p.height = mediaBox.Height()

	content, err := contentBytes(pg.V)
	if err != nil {
		p.buildErr = &EngineError{Op: "build", Err: fmt.Errorf("page %d: %w", p.num, err)}
		return p.buildErr
	}

	in := newInterpreter(extGStateAlpha(pg.V))
	if err := in.run(content); err != nil {
		p.buildErr = &EngineError{Op: "build", Err: fmt.Errorf("page %d: content stream: %w", p.num, err)}
		return p.buildErr
	}

	p.shapes = p.flipShapes(in.list.Shapes)
	p.spans = p.buildSpans(pg, in.list.TextOps)
	p.buildErr = nil
	return nil
}

// flipShapes converts interpreter output from PDF bottom-left space to the
// top-left space the rest of the system uses.
func (p *page) flipShapes(shapes []Shape) []Shape {
	out := make([]Shape, 0, len(shapes))
	for _, s := range shapes {
		s.BBox = p.flip(s.BBox)
		out = append(out, s)
	}
	return out
}

// flip reflects a rectangle about the MediaBox's top edge and translates it
// so the page's top-left corner is the origin. MediaBoxes do not have to
// start at (0, 0); reflecting about the page height alone would shift every
// coordinate on such pages.
func (p *page) flip(r geometry.Rect) geometry.Rect {
	return geometry.Rect{
		X0: r.X0 - p.mbox.X0,
		Y0: p.mbox.Y1 - r.Y1,
		X1: r.X1 - p.mbox.X0,
		Y1: p.mbox.Y1 - r.Y0,
	}.Normalize()
}

// Fractions of the font size used to approximate a glyph box around the
// baseline when the font program itself gives no better answer.
const (
	ascentRatio  = 0.8
	descentRatio = 0.2
)

// buildSpans groups the page's characters into spans and stamps each span
// with the draw index and fill color of the text-showing op it came from.
// Characters arrive from the reader in content-stream order, and so do the
// recorded text ops, so the i-th span pairs with the i-th op; when the
// counts disagree (split or merged show operations) the remaining spans
// inherit the last known op rather than being dropped.
func (p *page) buildSpans(pg pdf.Page, textOps []textOp) []TextSpan {
	content := pg.Content()
	if len(content.Text) == 0 {
		return nil
	}

	var spans []TextSpan
	var cur *spanBuilder
	for _, ch := range content.Text {
		if cur != nil && cur.accepts(ch) {
			cur.add(ch)
			continue
		}
		if cur != nil {
			spans = append(spans, cur.finish(p))
		}
		cur = newSpanBuilder(ch)
	}
	if cur != nil {
		spans = append(spans, cur.finish(p))
	}

	for i := range spans {
		op := textOp{DrawIndex: 0, Color: Color{0, 0, 0}}
		switch {
		case i < len(textOps):
			op = textOps[i]
		case len(textOps) > 0:
			op = textOps[len(textOps)-1]
		}
		spans[i].DrawIndex = op.DrawIndex
		spans[i].Color = op.Color
	}
	return spans
}

// spanBuilder accumulates adjacent characters that share a font and
// baseline into one span.
type spanBuilder struct {
	font     string
	fontSize float64
	baseline float64
	x0, x1   float64
	text     []byte
}

func newSpanBuilder(ch pdf.Text) *spanBuilder {
	return &spanBuilder{
		font:     ch.Font,
		fontSize: ch.FontSize,
		baseline: ch.Y,
		x0:       ch.X,
		x1:       ch.X + ch.W,
		text:     []byte(ch.S),
	}
}

func (b *spanBuilder) accepts(ch pdf.Text) bool {
	if ch.Font != b.font || ch.FontSize != b.fontSize {
		return false
	}
	if math.Abs(ch.Y-b.baseline) > 0.5 {
		return false
	}
	// allow a little negative slack for kerning, a little positive for
	// word spacing
	gap := ch.X - b.x1
	maxGap := b.fontSize
	if maxGap == 0 {
		maxGap = 12
	}
	return gap > -2 && gap < maxGap
}

func (b *spanBuilder) add(ch pdf.Text) {
	if end := ch.X + ch.W; end > b.x1 {
		b.x1 = end
	}
	b.text = append(b.text, ch.S...)
}

func (b *spanBuilder) finish(p *page) TextSpan {
	size := b.fontSize
	if size == 0 {
		size = 12
	}
	box := geometry.Rect{
		X0: b.x0,
		Y0: b.baseline - descentRatio*size,
		X1: b.x1,
		Y1: b.baseline + ascentRatio*size,
	}
	return TextSpan{
		Text:     string(b.text),
		BBox:     p.flip(box),
		Font:     b.font,
		FontSize: size,
	}
}

// mediaBox resolves a page's MediaBox, walking Parent links for inherited
// values, and normalizes it to a rectangle.
func mediaBox(pageDict pdf.Value) (geometry.Rect, error) {
	v := pageDict
	for depth := 0; depth < 32; depth++ {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			return geometry.NewRect(
				mb.Index(0).Float64(),
				mb.Index(1).Float64(),
				mb.Index(2).Float64(),
				mb.Index(3).Float64(),
			), nil
		}
		parent := v.Key("Parent")
		if parent.IsNull() {
			break
		}
		v = parent
	}
	return geometry.Rect{}, fmt.Errorf("no MediaBox found")
}

// contentBytes decodes and concatenates the page's content streams.
// Contents may be a single stream or an array of streams that form one
// logical stream when joined.
func contentBytes(pageDict pdf.Value) ([]byte, error) {
	contents := pageDict.Key("Contents")
	if contents.IsNull() {
		return nil, nil
	}

	var buf bytes.Buffer
	appendStream := func(v pdf.Value) error {
		if v.Kind() != pdf.Stream {
			return nil
		}
		rc := v.Reader()
		defer rc.Close()
		if _, err := io.Copy(&buf, rc); err != nil {
			return fmt.Errorf("failed to decode content stream: %w", err)
		}
		// streams in an array must be joined with whitespace to avoid
		// gluing a trailing token to the next stream's first token
		buf.WriteByte('\n')
		return nil
	}

	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			if err := appendStream(contents.Index(i)); err != nil {
				return nil, err
			}
		}
		return buf.Bytes(), nil
	}

	if err := appendStream(contents); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extGStateAlpha returns an alphaLookup over the page's ExtGState resources,
// walking Parent links for inherited resource dictionaries.
func extGStateAlpha(pageDict pdf.Value) alphaLookup {
	resources := pageDict.Key("Resources")
	v := pageDict
	for depth := 0; resources.IsNull() && depth < 32; depth++ {
		parent := v.Key("Parent")
		if parent.IsNull() {
			break
		}
		v = parent
		resources = v.Key("Resources")
	}

	return func(name string) (float64, bool) {
		if resources.IsNull() {
			return 0, false
		}
		gs := resources.Key("ExtGState").Key(name)
		if gs.IsNull() {
			return 0, false
		}
		ca := gs.Key("ca")
		if ca.IsNull() {
			return 0, false
		}
		return ca.Float64(), true
	}
}
