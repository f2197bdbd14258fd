package pp

import (
	"strings"

	"github.com/pkg/errors"
)

// Expansion-class error sentinels.
var (
	ErrArgCount        = errors.New("wrong macro argument count")
	ErrUnterminatedInv = errors.New("unterminated function-like macro invocation")
	ErrBadPaste        = errors.New("## did not produce a valid token")
	ErrVariadicMisuse  = errors.New("__VA_ARGS__ or __VA_OPT__ used outside a variadic macro")
)

// Expander recursively expands a token sequence against a Macro Table.
type Expander struct {
	macros *MacroTable
}

// NewExpander builds an Expander bound to macros.
func NewExpander(macros *MacroTable) *Expander {
	return &Expander{macros: macros}
}

// Expand fully macro-expands tokens, with recursion prevention via each
// token's paint set.
func (e *Expander) Expand(tokens []Token) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if tok.Kind != Identifier {
			out = append(out, tok)
			i++
			continue
		}

		macro := e.macros.Lookup(tok.Text)
		if macro == nil || tok.Paint.Has(tok.Text) {
			out = append(out, tok)
			i++
			continue
		}

		if macro.Builtin != nil {
			out = append(out, macro.Builtin(tok.Pos)...)
			i++
			continue
		}

		if macro.Kind == FunctionLike {
			parenIdx := skipBlank(tokens, i+1)
			if parenIdx >= len(tokens) || tokens[parenIdx].Kind != LParen {
				out = append(out, tok)
				i++
				continue
			}
			args, endIdx, err := gatherArguments(tokens, parenIdx)
			if err != nil {
				return nil, err
			}
			if err := checkArgCount(macro, args); err != nil {
				return nil, err
			}
			expanded, err := e.expandFunctionInvocation(macro, args, tok)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			i = endIdx + 1
			continue
		}

		expanded, err := e.expandObjectLike(macro, tok)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
		i++
	}
	return out, nil
}

func skipBlank(tokens []Token, i int) int {
	for i < len(tokens) && (tokens[i].Kind == Whitespace || tokens[i].Kind == Comment) {
		i++
	}
	return i
}

// expandObjectLike expands an object-like macro reference tok against macro,
// then rescans the result.
func (e *Expander) expandObjectLike(macro *Macro, tok Token) ([]Token, error) {
	paint := tok.Paint.With(macro.Name)
	body := make([]Token, len(macro.Body))
	for i, b := range macro.Body {
		b.Paint = b.Paint.Union(paint)
		body[i] = b
	}
	pasted, err := pasteTokens(body)
	if err != nil {
		return nil, err
	}
	return e.Expand(pasted)
}

// expandFunctionInvocation substitutes args into macro's body, stringizing,
// pasting, and handling __VA_ARGS__/__VA_OPT__, then rescans the result
//.
func (e *Expander) expandFunctionInvocation(macro *Macro, args [][]Token, tok Token) ([]Token, error) {
	paint := tok.Paint.With(macro.Name)

	vaArgs := buildVAArgs(args, len(macro.Params))
	hasVA := len(TrimBlank(vaArgs)) > 0

	params := make(map[string][]Token, len(macro.Params)+1)
	for i, name := range macro.Params {
		if i < len(args) {
			params[name] = args[i]
		}
	}
	if macro.Variadic {
		params["__VA_ARGS__"] = vaArgs
	}

	body, err := resolveVAOpt(macro.Body, macro.Variadic, hasVA)
	if err != nil {
		return nil, err
	}

	substituted, err := e.substitute(body, params, macro.Variadic, tok.Pos)
	if err != nil {
		return nil, err
	}

	for i := range substituted {
		substituted[i].Paint = substituted[i].Paint.Union(paint)
	}

	pasted, err := pasteTokens(substituted)
	if err != nil {
		return nil, err
	}
	return e.Expand(pasted)
}

// resolveVAOpt expands every __VA_OPT__( ... ) occurrence in body into its
// inner tokens (if hasVA) or nothing.
func resolveVAOpt(body []Token, variadic, hasVA bool) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(body) {
		t := body[i]
		if t.Kind == Identifier && t.Text == "__VA_OPT__" {
			if !variadic {
				return nil, errors.Wrap(ErrVariadicMisuse, "__VA_OPT__")
			}
			j := skipBlank(body, i+1)
			if j >= len(body) || body[j].Kind != LParen {
				return nil, errors.Wrap(ErrVariadicMisuse, "__VA_OPT__ expects (")
			}
			inner, end, err := balancedParens(body, j)
			if err != nil {
				return nil, err
			}
			if hasVA {
				out = append(out, inner...)
			}
			i = end + 1
			continue
		}
		if t.Kind == Identifier && t.Text == "__VA_ARGS__" && !variadic {
			return nil, errors.Wrap(ErrVariadicMisuse, "__VA_ARGS__")
		}
		out = append(out, t)
		i++
	}
	return out, nil
}

// balancedParens reads the parenthesized content starting at tokens[open]
// (an LParen), returning the interior tokens and the index of the matching
// RParen.
func balancedParens(tokens []Token, open int) ([]Token, int, error) {
	depth := 1
	var inner []Token
	i := open + 1
	for i < len(tokens) {
		switch tokens[i].Kind {
		case LParen:
			depth++
			inner = append(inner, tokens[i])
		case RParen:
			depth--
			if depth == 0 {
				return inner, i, nil
			}
			inner = append(inner, tokens[i])
		default:
			inner = append(inner, tokens[i])
		}
		i++
	}
	return nil, 0, errors.Wrap(ErrUnterminatedInv, "__VA_OPT__")
}

// substitute walks macro body tokens, applying stringize (#), raw insertion
// next to ##, or recursive expansion of the argument.
func (e *Expander) substitute(body []Token, params map[string][]Token, variadic bool, loc Pos) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(body) {
		t := body[i]

		if t.Kind == Hash {
			j := skipBlank(body, i+1)
			if j < len(body) && body[j].Kind == Identifier {
				if arg, ok := params[body[j].Text]; ok {
					out = append(out, stringize(arg, loc))
					i = j + 1
					continue
				}
			}
		}

		if t.Kind == Identifier {
			if arg, ok := params[t.Text]; ok {
				prev := i - 1
				for prev >= 0 && (body[prev].Kind == Whitespace || body[prev].Kind == Comment) {
					prev--
				}
				beforePaste := prev >= 0 && body[prev].Kind == HashHash
				afterPaste := skipBlank(body, i+1) < len(body) && body[skipBlank(body, i+1)].Kind == HashHash
				if beforePaste || afterPaste {
					if len(arg) == 0 {
						out = append(out, placeholder(loc))
					} else {
						out = append(out, copyAt(arg, loc)...)
					}
				} else {
					expanded, err := e.Expand(copyAt(arg, Pos{}))
					if err != nil {
						return nil, err
					}
					out = append(out, copyAt(expanded, loc)...)
				}
				i++
				continue
			}
		}

		cp := t
		cp.Pos = loc
		out = append(out, cp)
		i++
	}
	return out, nil
}

func copyAt(toks []Token, loc Pos) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = t
		if loc != (Pos{}) {
			out[i].Pos = loc
		}
	}
	return out
}

func placeholder(loc Pos) Token {
	return Token{Kind: Invalid, Text: "", Pos: loc}
}

// stringize implements the # operator: raw pre-expansion
// argument tokens joined by single spaces, quotes/backslashes inside string
// and char tokens escaped, wrapped as a single string literal.
func stringize(arg []Token, loc Pos) Token {
	trimmed := TrimBlank(arg)
	var sb strings.Builder
	sb.WriteByte('"')
	lastBlank := true
	for _, t := range trimmed {
		if t.Kind == Whitespace || t.Kind == Comment {
			if !lastBlank {
				sb.WriteByte(' ')
				lastBlank = true
			}
			continue
		}
		lastBlank = false
		if t.Kind == StringLit || t.Kind == CharLit {
			for _, r := range t.Text {
				if r == '"' || r == '\\' {
					sb.WriteByte('\\')
				}
				sb.WriteRune(r)
			}
		} else {
			sb.WriteString(t.Text)
		}
	}
	sb.WriteByte('"')
	return Token{Kind: StringLit, Text: sb.String(), Pos: loc}
}

// pasteTokens implements the ## operator: each ## is
// removed and its neighbor lexemes concatenated into one lexeme, re-lexed
// once. ## at the start/end of a body, or with nothing but whitespace
// around it, is an error.
func pasteTokens(tokens []Token) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(tokens) {
		t := tokens[i]
		if t.Kind != HashHash {
			out = append(out, t)
			i++
			continue
		}

		for len(out) > 0 && (out[len(out)-1].Kind == Whitespace || out[len(out)-1].Kind == Comment) {
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return nil, errors.Wrap(ErrBadPaste, "## at start of replacement list")
		}
		j := skipBlank(tokens, i+1)
		if j >= len(tokens) {
			return nil, errors.Wrap(ErrBadPaste, "## at end of replacement list")
		}

		left := out[len(out)-1]
		right := tokens[j]
		out = out[:len(out)-1]

		switch {
		case left.Kind == Invalid:
			r := right
			r.Paint = r.Paint.Union(left.Paint)
			out = append(out, r)
		case right.Kind == Invalid:
			l := left
			l.Paint = l.Paint.Union(right.Paint)
			out = append(out, l)
		default:
			text := left.Text + right.Text
			pasted, ok := retokenizeOne(text, left.Pos)
			if !ok {
				return nil, errors.Wrapf(ErrBadPaste, "pasting %q and %q", left.Text, right.Text)
			}
			pasted.Paint = left.Paint.Union(right.Paint)
			out = append(out, pasted)
		}
		i = j + 1
	}

	filtered := out[:0]
	for _, t := range out {
		if t.Kind != Invalid {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// gatherArguments reads the argument list of a function-like invocation
// starting at tokens[openIdx] (the '(' ), splitting top-level commas.
// Returns the arguments and the index of the closing ')'.
func gatherArguments(tokens []Token, openIdx int) ([][]Token, int, error) {
	depth := 1
	i := openIdx + 1
	var args [][]Token
	var cur []Token
	sawAny := false

	for i < len(tokens) {
		t := tokens[i]
		switch t.Kind {
		case LParen:
			depth++
			cur = append(cur, t)
		case RParen:
			depth--
			if depth == 0 {
				args = append(args, TrimBlank(cur))
				return args, i, nil
			}
			cur = append(cur, t)
		case Comma:
			if depth == 1 {
				args = append(args, TrimBlank(cur))
				cur = nil
				sawAny = true
			} else {
				cur = append(cur, t)
			}
		default:
			cur = append(cur, t)
		}
		i++
	}
	_ = sawAny
	return nil, 0, errors.Wrap(ErrUnterminatedInv, "missing ')'")
}

func checkArgCount(macro *Macro, args [][]Token) error {
	n := len(macro.Params)
	// A single empty argument list for a zero-parameter, non-variadic
	// macro is the conventional "no arguments" call, e.g. F().
	if n == 0 && !macro.Variadic && len(args) == 1 && len(args[0]) == 0 {
		return nil
	}
	if macro.Variadic {
		if len(args) < n {
			return errors.Wrapf(ErrArgCount, "%s expects at least %d arguments, got %d", macro.Name, n, len(args))
		}
		return nil
	}
	if len(args) != n {
		return errors.Wrapf(ErrArgCount, "%s expects %d arguments, got %d", macro.Name, n, len(args))
	}
	return nil
}

// buildVAArgs forms the __VA_ARGS__ token sequence from the arguments past
// the last named parameter, rejoined with ", " separators.
func buildVAArgs(args [][]Token, numParams int) []Token {
	if len(args) <= numParams {
		return nil
	}
	extra := args[numParams:]
	var out []Token
	for i, a := range extra {
		if i > 0 {
			out = append(out, Token{Kind: Comma, Text: ","}, Token{Kind: Whitespace, Text: " "})
		}
		out = append(out, a...)
	}
	return out
}
