package engine

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/docforensics/xray/internal/geometry"
)

// Content-stream object model. Operands are plain Go values: float64 for
// numbers, name for /Names, strLit for strings, []operand for arrays,
// bool and nil for the keywords.
type (
	operand any
	name    string
	strLit  []byte
)

// operation is a single content-stream operation: the operands that preceded
// an operator, plus the operator itself.
type operation struct {
	Operator string
	Operands []operand
}

// streamParser tokenizes a decoded content stream into operations in order.
type streamParser struct {
	data  []byte
	pos   int
	stack []operand
}

func newStreamParser(data []byte) *streamParser {
	return &streamParser{data: data}
}

// parse returns all operations in content-stream order. Inline image data
// (BI...ID...EI) is skipped wholesale since image payloads would otherwise
// be misread as operators.
func (p *streamParser) parse() ([]operation, error) {
	var ops []operation
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.data) {
			break
		}

		c := p.data[p.pos]
		if isOperatorStart(c) {
			op := p.readOperator()
			if op == "BI" {
				p.skipInlineImage()
				p.stack = nil
				continue
			}
			ops = append(ops, operation{Operator: op, Operands: p.stack})
			p.stack = nil
			continue
		}

		obj, err := p.parseOperand()
		if err != nil {
			return nil, fmt.Errorf("at offset %d: %w", p.pos, err)
		}
		p.stack = append(p.stack, obj)
	}
	return ops, nil
}

func (p *streamParser) readOperator() string {
	start := p.pos
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isLetter(c) || c == '*' || c == '\'' || c == '"' {
			p.pos++
		} else {
			break
		}
	}
	return string(p.data[start:p.pos])
}

func (p *streamParser) parseOperand() (operand, error) {
	c := p.data[p.pos]
	switch {
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case c == '/':
		return p.parseName()
	case c == '(':
		return p.parseString()
	case c == '<' && p.pos+1 < len(p.data) && p.data[p.pos+1] == '<':
		return p.parseDict()
	case c == '<':
		return p.parseHexString()
	case c == '[':
		return p.parseArray()
	}
	return nil, fmt.Errorf("unexpected character %q", c)
}

func (p *streamParser) parseNumber() (operand, error) {
	start := p.pos
	if c := p.data[p.pos]; c == '+' || c == '-' {
		p.pos++
	}
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
		} else {
			break
		}
	}
	v, err := strconv.ParseFloat(string(p.data[start:p.pos]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", p.data[start:p.pos])
	}
	return v, nil
}

func (p *streamParser) parseName() (operand, error) {
	p.pos++ // skip '/'
	var buf bytes.Buffer
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && p.pos+2 < len(p.data) && isHexDigit(p.data[p.pos+1]) && isHexDigit(p.data[p.pos+2]) {
			buf.WriteByte(hexValue(p.data[p.pos+1])<<4 | hexValue(p.data[p.pos+2]))
			p.pos += 3
			continue
		}
		buf.WriteByte(c)
		p.pos++
	}
	return name(buf.String()), nil
}

func (p *streamParser) parseString() (operand, error) {
	p.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for p.pos < len(p.data) && depth > 0 {
		c := p.data[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.data):
			p.pos++
			esc := p.data[p.pos]
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\n':
				// line continuation
			case '\r':
				if p.pos+1 < len(p.data) && p.data[p.pos+1] == '\n' {
					p.pos++
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(esc - '0')
				for i := 0; i < 2 && p.pos+1 < len(p.data); i++ {
					d := p.data[p.pos+1]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					p.pos++
				}
				buf.WriteByte(byte(v))
			default:
				buf.WriteByte(esc)
			}
			p.pos++
		case c == '(':
			depth++
			buf.WriteByte(c)
			p.pos++
		case c == ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
			p.pos++
		default:
			buf.WriteByte(c)
			p.pos++
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unclosed string")
	}
	return strLit(buf.Bytes()), nil
}

func (p *streamParser) parseHexString() (operand, error) {
	p.pos++ // skip '<'
	var buf bytes.Buffer
	var digits []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '>' {
			p.pos++
			break
		}
		if isHexDigit(c) {
			digits = append(digits, c)
		} else if !isWhitespace(c) {
			return nil, fmt.Errorf("invalid hex digit %q", c)
		}
		p.pos++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	for i := 0; i < len(digits); i += 2 {
		buf.WriteByte(hexValue(digits[i])<<4 | hexValue(digits[i+1]))
	}
	return strLit(buf.Bytes()), nil
}

func (p *streamParser) parseArray() (operand, error) {
	p.pos++ // skip '['
	var arr []operand
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.data) {
			return nil, fmt.Errorf("unclosed array")
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return arr, nil
		}
		// Keywords inside arrays (true/false/null) are rare; consume them
		// as bare tokens so the array still terminates.
		if isOperatorStart(p.data[p.pos]) {
			p.readOperator()
			continue
		}
		obj, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		arr = append(arr, obj)
	}
}

// parseDict consumes a dictionary and returns its keys and values as a flat
// array. Dictionaries only appear as operands to BDC/DP and inline images,
// none of which affect geometry.
func (p *streamParser) parseDict() (operand, error) {
	p.pos += 2 // skip '<<'
	var items []operand
	for {
		p.skipWhitespaceAndComments()
		if p.pos+1 >= len(p.data) {
			return nil, fmt.Errorf("unclosed dictionary")
		}
		if p.data[p.pos] == '>' && p.data[p.pos+1] == '>' {
			p.pos += 2
			return items, nil
		}
		if isOperatorStart(p.data[p.pos]) {
			p.readOperator()
			continue
		}
		obj, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
}

// skipInlineImage advances past the binary payload of a BI...ID...EI block.
func (p *streamParser) skipInlineImage() {
	idx := bytes.Index(p.data[p.pos:], []byte("EI"))
	if idx < 0 {
		p.pos = len(p.data)
		return
	}
	p.pos += idx + 2
}

func (p *streamParser) skipWhitespaceAndComments() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) {
			p.pos++
			continue
		}
		if c == '%' {
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		break
	}
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isOperatorStart(c byte) bool {
	return isLetter(c) || c == '\'' || c == '"'
}

func isDelimiter(c byte) bool {
	return c == '(' || c == ')' || c == '<' || c == '>' ||
		c == '[' || c == ']' || c == '{' || c == '}' ||
		c == '/' || c == '%'
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// textOp records a text-showing operation: its draw index and the fill color
// in effect when it executed. Spans produced by the character extractor are
// matched back to these in order.
type textOp struct {
	DrawIndex int
	Color     Color
}

// displayList is the geometry extracted from one page's content streams,
// still in PDF bottom-left-origin user space.
type displayList struct {
	Shapes  []Shape
	TextOps []textOp
}

// alphaLookup resolves an ExtGState resource name to its fill alpha (the
// /ca entry). The second return is false when the resource is missing.
type alphaLookup func(resource string) (float64, bool)

// graphicsState is the subset of PDF graphics state the interpreter tracks.
type graphicsState struct {
	ctm       geometry.Matrix
	fill      *Color
	fillAlpha float64
}

// interpreter walks content-stream operations and accumulates a displayList.
// Draw indices are operation ordinals, so the relative order of shapes and
// text-showing ops is exactly their content-stream order.
type interpreter struct {
	gs      graphicsState
	gsStack []graphicsState

	// current path, already CTM-transformed
	pathRects []geometry.Rect
	subpath   geometry.Rect
	inSubpath bool

	lookupAlpha alphaLookup
	list        displayList
	opIndex     int
}

func newInterpreter(lookup alphaLookup) *interpreter {
	black := Color{0, 0, 0}
	return &interpreter{
		gs: graphicsState{
			ctm:       geometry.Identity(),
			fill:      &black,
			fillAlpha: 1,
		},
		lookupAlpha: lookup,
	}
}

// run interprets a decoded content stream, accumulating onto any geometry
// already collected (pages can carry multiple content streams).
func (in *interpreter) run(content []byte) error {
	ops, err := newStreamParser(content).parse()
	if err != nil {
		return err
	}
	for _, op := range ops {
		in.process(op)
		in.opIndex++
	}
	return nil
}

func (in *interpreter) process(op operation) {
	switch op.Operator {
	case "q":
		in.gsStack = append(in.gsStack, in.gs)
	case "Q":
		if n := len(in.gsStack); n > 0 {
			in.gs = in.gsStack[n-1]
			in.gsStack = in.gsStack[:n-1]
		}
	case "cm":
		if m, ok := toMatrix(op.Operands); ok {
			in.gs.ctm = m.Multiply(in.gs.ctm)
		}
	case "gs":
		if len(op.Operands) == 1 {
			if res, ok := op.Operands[0].(name); ok && in.lookupAlpha != nil {
				if ca, found := in.lookupAlpha(string(res)); found {
					in.gs.fillAlpha = ca
				}
			}
		}

	// Fill color operators. Stroke color is irrelevant here: stroke-only
	// paths never hide text.
	case "g":
		if v, ok := floats(op.Operands, 1); ok {
			in.gs.fill = &Color{v[0], v[0], v[0]}
		}
	case "rg":
		if v, ok := floats(op.Operands, 3); ok {
			in.gs.fill = &Color{v[0], v[1], v[2]}
		}
	case "k":
		if v, ok := floats(op.Operands, 4); ok {
			r, g, b := cmykToRGB(v[0], v[1], v[2], v[3])
			in.gs.fill = &Color{r, g, b}
		}
	case "sc", "scn":
		in.setFillFromComponents(op.Operands)
	case "cs":
		// A colorspace switch resets the fill color to the space's initial
		// value, which is black for the device spaces we care about.
		in.gs.fill = &Color{0, 0, 0}

	// Path construction
	case "m":
		if v, ok := floats(op.Operands, 2); ok {
			in.startSubpath(in.gs.ctm.Apply(geometry.Point{X: v[0], Y: v[1]}))
		}
	case "l":
		if v, ok := floats(op.Operands, 2); ok {
			in.extendSubpath(in.gs.ctm.Apply(geometry.Point{X: v[0], Y: v[1]}))
		}
	case "c", "v", "y":
		// Track curve control points only through their endpoints; curved
		// covers are approximated by their bounding box.
		if v, ok := floats(op.Operands, len(op.Operands)); ok && len(v) >= 2 {
			in.extendSubpath(in.gs.ctm.Apply(geometry.Point{X: v[len(v)-2], Y: v[len(v)-1]}))
		}
	case "re":
		if v, ok := floats(op.Operands, 4); ok {
			r := geometry.Rect{X0: v[0], Y0: v[1], X1: v[0] + v[2], Y1: v[1] + v[3]}
			in.flushSubpath()
			in.pathRects = append(in.pathRects, in.gs.ctm.TransformRect(r).Normalize())
		}
	case "h":
		// closing a subpath does not change its bounding box

	// Path painting
	case "f", "F", "f*", "B", "B*", "b", "b*":
		in.paintPath(in.gs.fill, in.gs.fillAlpha)
	case "S", "s", "n":
		// Stroked or discarded paths are emitted with no fill so the
		// overlap resolver can reject them explicitly.
		in.paintPath(nil, in.gs.fillAlpha)
	case "W", "W*":
		// clipping path; the path is still painted or discarded by the
		// following operator, nothing to do here

	// Text showing
	case "Tj", "'", "\"", "TJ":
		fill := Color{0, 0, 0}
		if in.gs.fill != nil {
			fill = *in.gs.fill
		}
		in.list.TextOps = append(in.list.TextOps, textOp{DrawIndex: in.opIndex, Color: fill})
	}
}

// setFillFromComponents handles sc/scn, whose operand count depends on the
// active colorspace. Pattern fills (a trailing name operand) are treated as
// no fill: a patterned shape is never a solid cover.
func (in *interpreter) setFillFromComponents(operands []operand) {
	if len(operands) > 0 {
		if _, isPattern := operands[len(operands)-1].(name); isPattern {
			in.gs.fill = nil
			return
		}
	}
	switch len(operands) {
	case 1:
		if v, ok := floats(operands, 1); ok {
			in.gs.fill = &Color{v[0], v[0], v[0]}
		}
	case 3:
		if v, ok := floats(operands, 3); ok {
			in.gs.fill = &Color{v[0], v[1], v[2]}
		}
	case 4:
		if v, ok := floats(operands, 4); ok {
			r, g, b := cmykToRGB(v[0], v[1], v[2], v[3])
			in.gs.fill = &Color{r, g, b}
		}
	}
}

func (in *interpreter) startSubpath(p geometry.Point) {
	in.flushSubpath()
	in.subpath = geometry.Rect{X0: p.X, Y0: p.Y, X1: p.X, Y1: p.Y}
	in.inSubpath = true
}

func (in *interpreter) extendSubpath(p geometry.Point) {
	if !in.inSubpath {
		in.startSubpath(p)
		return
	}
	in.subpath.X0 = math.Min(in.subpath.X0, p.X)
	in.subpath.Y0 = math.Min(in.subpath.Y0, p.Y)
	in.subpath.X1 = math.Max(in.subpath.X1, p.X)
	in.subpath.Y1 = math.Max(in.subpath.Y1, p.Y)
}

// flushSubpath promotes a point-tracked subpath to a path rectangle. A
// degenerate subpath (a bare moveto) contributes nothing.
func (in *interpreter) flushSubpath() {
	if in.inSubpath && !in.subpath.IsEmpty() {
		in.pathRects = append(in.pathRects, in.subpath)
	}
	in.inSubpath = false
}

// paintPath emits one Shape per collected subpath rectangle, all sharing the
// painting operator's draw index as their group ID. Using the individual
// subpath boxes rather than the whole path's bounding box matters for
// multi-line redaction bars: the outer box would swallow visible text on
// either side of the bar.
func (in *interpreter) paintPath(fill *Color, alpha float64) {
	in.flushSubpath()
	for _, r := range in.pathRects {
		var f *Color
		if fill != nil {
			c := *fill
			f = &c
		}
		in.list.Shapes = append(in.list.Shapes, Shape{
			BBox:      r,
			Fill:      f,
			Alpha:     alpha,
			DrawIndex: in.opIndex,
			GroupID:   in.opIndex,
		})
	}
	in.pathRects = in.pathRects[:0]
}

func floats(operands []operand, n int) ([]float64, bool) {
	if len(operands) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, op := range operands {
		v, ok := op.(float64)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func toMatrix(operands []operand) (geometry.Matrix, bool) {
	v, ok := floats(operands, 6)
	if !ok {
		return geometry.Identity(), false
	}
	return geometry.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}, true
}

func cmykToRGB(c, m, y, k float64) (r, g, b float64) {
	r = (1 - c) * (1 - k)
	g = (1 - m) * (1 - k)
	b = (1 - y) * (1 - k)
	return
}
