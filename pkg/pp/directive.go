package pp

import (
	"strconv"

	"github.com/pkg/errors"
)

// DirectiveKind names the directive a line invokes.
type DirectiveKind int

const (
	DirNone DirectiveKind = iota
	DirDefine
	DirUndef
	DirInclude
	DirIf
	DirIfdef
	DirIfndef
	DirElif
	DirElifdef
	DirElifndef
	DirElse
	DirEndif
	DirError
	DirWarning
	DirLine
	DirPragma
	DirEmpty // a bare # with nothing after it
)

func (k DirectiveKind) String() string {
	switch k {
	case DirDefine:
		return "define"
	case DirUndef:
		return "undef"
	case DirInclude:
		return "include"
	case DirIf:
		return "if"
	case DirIfdef:
		return "ifdef"
	case DirIfndef:
		return "ifndef"
	case DirElif:
		return "elif"
	case DirElifdef:
		return "elifdef"
	case DirElifndef:
		return "elifndef"
	case DirElse:
		return "else"
	case DirEndif:
		return "endif"
	case DirError:
		return "error"
	case DirWarning:
		return "warning"
	case DirLine:
		return "line"
	case DirPragma:
		return "pragma"
	case DirEmpty:
		return "empty"
	default:
		return "none"
	}
}

// Directive is a single parsed directive line (component C8's input).
type Directive struct {
	Kind DirectiveKind
	Pos  Pos

	// DirDefine
	MacroName  string
	Params     []string
	Variadic   bool
	Body       []Token

	// DirUndef, DirIfdef, DirIfndef, DirElifdef, DirElifndef
	Identifier string

	// DirInclude
	HeaderName string
	IncludeKind IncludeKind

	// DirIf, DirElif
	Expression []Token

	// DirLine
	LineNum  int
	FileName string

	// DirError, DirWarning
	Message string

	// DirPragma
	PragmaTokens []Token
}

// ErrBadDirective reports a syntactically malformed directive line.
var ErrBadDirective = errors.New("malformed directive")

// ParseDirective parses the tokens of a logical line that begins with a
// Hash token at the start of the line. toks must include the leading Hash
// and the trailing Newline.
func ParseDirective(toks []Token, pos Pos) (*Directive, error) {
	p := &directiveParser{toks: TrimBlank(toks)}
	if len(p.toks) == 0 || p.toks[0].Kind != Hash {
		return nil, errors.Wrap(ErrBadDirective, "directive line does not start with #")
	}
	p.i = 1
	p.skipBlank()

	if p.atEnd() {
		return &Directive{Kind: DirEmpty, Pos: pos}, nil
	}
	if p.peek().Kind != Identifier {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: expected directive name", pos.File, pos.Line)
	}
	name := p.peek().Text
	p.i++

	switch name {
	case "define":
		return p.parseDefine(pos)
	case "undef":
		return p.parseIdentDirective(DirUndef, pos, "#undef")
	case "include":
		return p.parseInclude(pos)
	case "if":
		return p.parseExprDirective(DirIf, pos, "#if")
	case "ifdef":
		return p.parseIdentDirective(DirIfdef, pos, "#ifdef")
	case "ifndef":
		return p.parseIdentDirective(DirIfndef, pos, "#ifndef")
	case "elif":
		return p.parseExprDirective(DirElif, pos, "#elif")
	case "elifdef":
		return p.parseIdentDirective(DirElifdef, pos, "#elifdef")
	case "elifndef":
		return p.parseIdentDirective(DirElifndef, pos, "#elifndef")
	case "else":
		return &Directive{Kind: DirElse, Pos: pos}, nil
	case "endif":
		return &Directive{Kind: DirEndif, Pos: pos}, nil
	case "error":
		return &Directive{Kind: DirError, Pos: pos, Message: p.restAsText()}, nil
	case "warning":
		return &Directive{Kind: DirWarning, Pos: pos, Message: p.restAsText()}, nil
	case "line":
		return p.parseLine(pos)
	case "pragma":
		return &Directive{Kind: DirPragma, Pos: pos, PragmaTokens: p.rest()}, nil
	default:
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: unknown directive #%s", pos.File, pos.Line, name)
	}
}

type directiveParser struct {
	toks []Token
	i    int
}

func (p *directiveParser) atEnd() bool { return p.i >= len(p.toks) || p.toks[p.i].Kind == Newline }
func (p *directiveParser) peek() Token { return p.toks[p.i] }
func (p *directiveParser) skipBlank() {
	for !p.atEnd() && p.toks[p.i].IsBlank() {
		p.i++
	}
}

func (p *directiveParser) rest() []Token {
	var out []Token
	for !p.atEnd() {
		out = append(out, p.toks[p.i])
		p.i++
	}
	return TrimBlank(out)
}

func (p *directiveParser) restAsText() string {
	return TokensText(p.rest())
}

func (p *directiveParser) parseIdentDirective(kind DirectiveKind, pos Pos, what string) (*Directive, error) {
	p.skipBlank()
	if p.atEnd() || p.peek().Kind != Identifier {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: %s expects an identifier", pos.File, pos.Line, what)
	}
	name := p.peek().Text
	p.i++
	return &Directive{Kind: kind, Pos: pos, Identifier: name}, nil
}

func (p *directiveParser) parseExprDirective(kind DirectiveKind, pos Pos, what string) (*Directive, error) {
	p.skipBlank()
	expr := p.rest()
	if len(expr) == 0 {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: %s expects an expression", pos.File, pos.Line, what)
	}
	return &Directive{Kind: kind, Pos: pos, Expression: expr}, nil
}

func (p *directiveParser) parseInclude(pos Pos) (*Directive, error) {
	p.skipBlank()
	if p.atEnd() {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: #include expects a file name", pos.File, pos.Line)
	}
	tok := p.peek()
	switch {
	case tok.Kind == StringLit:
		p.i++
		return &Directive{Kind: DirInclude, Pos: pos, HeaderName: unquote(tok.Text), IncludeKind: IncludeQuoted}, nil
	case tok.Kind == Operator && tok.Text == "<":
		p.i++
		var sb []byte
		for !p.atEnd() && !(p.peek().Kind == Operator && p.peek().Text == ">") {
			sb = append(sb, p.peek().Text...)
			p.i++
		}
		if p.atEnd() {
			return nil, errors.Wrapf(ErrBadDirective, "%s:%d: unterminated <include>", pos.File, pos.Line)
		}
		p.i++ // consume '>'
		return &Directive{Kind: DirInclude, Pos: pos, HeaderName: string(sb), IncludeKind: IncludeAngled}, nil
	default:
		// A macro that expands to a header name: defer resolution to the
		// interpreter, which expands Expression and re-parses the result.
		return &Directive{Kind: DirInclude, Pos: pos, Expression: p.rest()}, nil
	}
}

func (p *directiveParser) parseLine(pos Pos) (*Directive, error) {
	p.skipBlank()
	if p.atEnd() || p.peek().Kind != Number {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: #line expects a line number", pos.File, pos.Line)
	}
	n, err := strconv.Atoi(p.peek().Text)
	if err != nil {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: bad #line number %q", pos.File, pos.Line, p.peek().Text)
	}
	p.i++
	p.skipBlank()
	dir := &Directive{Kind: DirLine, Pos: pos, LineNum: n}
	if !p.atEnd() && p.peek().Kind == StringLit {
		dir.FileName = unquote(p.peek().Text)
		p.i++
	}
	return dir, nil
}

func (p *directiveParser) parseDefine(pos Pos) (*Directive, error) {
	p.skipBlank()
	if p.atEnd() || p.peek().Kind != Identifier {
		return nil, errors.Wrapf(ErrBadDirective, "%s:%d: #define expects an identifier", pos.File, pos.Line)
	}
	dir := &Directive{Kind: DirDefine, Pos: pos, MacroName: p.peek().Text}
	p.i++

	// Function-like iff '(' immediately follows the name, with no blank
	// token between: that adjacency is what the raw token stream encodes.
	if !p.atEnd() && p.peek().Kind == LParen {
		p.i++
		dir.Params = []string{}
		for {
			p.skipBlank()
			if p.atEnd() {
				return nil, errors.Wrapf(ErrBadDirective, "%s:%d: unterminated macro parameter list", pos.File, pos.Line)
			}
			if p.peek().Kind == RParen {
				p.i++
				break
			}
			if p.peek().Kind == Other && p.peek().Text == "." {
				if !p.consumeEllipsis() {
					return nil, errors.Wrapf(ErrBadDirective, "%s:%d: expected ... in parameter list", pos.File, pos.Line)
				}
				dir.Variadic = true
				p.skipBlank()
				if p.atEnd() || p.peek().Kind != RParen {
					return nil, errors.Wrapf(ErrBadDirective, "%s:%d: ... must be the last parameter", pos.File, pos.Line)
				}
				p.i++
				break
			}
			if p.peek().Kind != Identifier {
				return nil, errors.Wrapf(ErrBadDirective, "%s:%d: expected parameter name", pos.File, pos.Line)
			}
			paramName := p.peek().Text
			p.i++
			p.skipBlank()
			if !p.atEnd() && p.peek().Kind == Other && p.peek().Text == "." {
				if !p.consumeEllipsis() {
					return nil, errors.Wrapf(ErrBadDirective, "%s:%d: malformed ...", pos.File, pos.Line)
				}
				dir.Params = append(dir.Params, paramName)
				dir.Variadic = true
				p.skipBlank()
				if p.atEnd() || p.peek().Kind != RParen {
					return nil, errors.Wrapf(ErrBadDirective, "%s:%d: ... must be the last parameter", pos.File, pos.Line)
				}
				p.i++
				break
			}
			dir.Params = append(dir.Params, paramName)
			p.skipBlank()
			if !p.atEnd() && p.peek().Kind == Comma {
				p.i++
			}
		}
	}

	p.skipBlank()
	dir.Body = p.rest()
	return dir, nil
}

// consumeEllipsis consumes three consecutive '.' Other tokens ("...").
func (p *directiveParser) consumeEllipsis() bool {
	for k := 0; k < 3; k++ {
		if p.atEnd() || p.peek().Kind != Other || p.peek().Text != "." {
			return false
		}
		p.i++
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}
