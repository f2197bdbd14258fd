package pp

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrFatal wraps a condition that aborts the entire run: unrecoverable
// primary-input IO, an #error reached while emitting, or an unbalanced
// #if left open at end of input.
var ErrFatal = errors.New("fatal preprocessing error")

// Preprocessor is the Directive Interpreter (C8): the top-level driver that
// pulls logical lines from a Line Source stack, tokenizes them, consults the
// Conditional Stack, and either dispatches a directive or expands and emits
// the line.
type Preprocessor struct {
	cfg      Config
	macros   *MacroTable
	cond     *Conditionals
	expander *Expander
	includes *Includes
	diags    []Diagnostic
}

// NewPreprocessor builds a Preprocessor from cfg, applying initial defines
// and undefines and installing the built-in dynamic macros. now fixes the
// value reported by __DATE__/__TIME__/__TIMESTAMP__ for the run's lifetime.
func NewPreprocessor(cfg Config, now time.Time) (*Preprocessor, error) {
	macros := NewMacroTable()
	registerBuiltins(macros, now)

	for _, d := range cfg.Macros {
		if err := defineFromConfig(macros, d); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.Undef {
		macros.Remove(name)
	}

	includes := NewIncludes()
	for _, dir := range cfg.IncludeDirs {
		includes.AddUserPath(dir)
	}

	return &Preprocessor{
		cfg:      cfg,
		macros:   macros,
		cond:     NewConditionals(),
		expander: NewExpander(macros),
		includes: includes,
	}, nil
}

func defineFromConfig(macros *MacroTable, d MacroDef) error {
	value := d.Value
	if value == "" {
		value = "1"
	}
	toks, err := Tokenize(Line{Text: value, Number: 0}, "<command-line>")
	if err != nil {
		return errors.Wrapf(err, "defining %s", d.Name)
	}
	macros.Insert(&Macro{Name: d.Name, Kind: ObjectLike, Body: TrimBlank(toks)})
	return nil
}

// Run preprocesses src, writing output to out, and returns the accumulated
// non-fatal diagnostics alongside any fatal error.
func (p *Preprocessor) Run(src LineSource, out io.Writer) ([]Diagnostic, error) {
	p.includes.SetCurrentFile(src.File())
	sources := NewSourceStack(src)

	for {
		depthBefore := sources.Depth()
		line, ok, err := sources.Next()
		if err != nil {
			return p.diags, errors.Wrap(ErrFatal, err.Error())
		}
		for d := depthBefore; d > sources.Depth() && ok; d-- {
			p.includes.Exit()
		}
		if !ok {
			break
		}

		file := sources.CurrentFile()
		toks, err := Tokenize(line, file)
		if err != nil {
			p.warn(Pos{File: file, Line: line.Number}, err.Error())
			io.WriteString(out, "\n")
			continue
		}

		pos := Pos{File: file, Line: line.Number}
		if isDirectiveLine(toks) {
			fatal, passthrough, err := p.handleDirective(toks, pos, sources)
			if err != nil {
				if fatal {
					return p.diags, err
				}
				p.errorDiag(pos, err.Error())
			}
			io.WriteString(out, passthrough)
			io.WriteString(out, "\n")
			continue
		}

		if !p.cond.Emit() {
			io.WriteString(out, "\n")
			continue
		}

		rendered, err := p.renderSourceLine(toks)
		if err != nil {
			p.errorDiag(pos, err.Error())
			io.WriteString(out, "\n")
			continue
		}
		io.WriteString(out, rendered)
		io.WriteString(out, "\n")
	}

	if err := p.cond.CheckBalanced(); err != nil {
		return p.diags, errors.Wrap(ErrFatal, err.Error())
	}
	return p.diags, nil
}

func isDirectiveLine(toks []Token) bool {
	for _, t := range toks {
		if t.Kind == Whitespace || t.Kind == Comment {
			continue
		}
		return t.Kind == Hash
	}
	return false
}

func (p *Preprocessor) renderSourceLine(toks []Token) (string, error) {
	work := toks
	if p.cfg.ExpandMacros {
		expanded, err := p.expander.Expand(toks)
		if err != nil {
			return "", err
		}
		work = expanded
	}
	if p.cfg.ExcludeComments {
		filtered := work[:0:0]
		for _, t := range work {
			if t.Kind != Comment {
				filtered = append(filtered, t)
			}
		}
		work = filtered
	}
	return TokensText(work), nil
}

func (p *Preprocessor) warn(pos Pos, msg string) {
	p.diags = append(p.diags, Diagnostic{Severity: SevWarning, Pos: pos, Message: msg})
}

func (p *Preprocessor) errorDiag(pos Pos, msg string) {
	p.diags = append(p.diags, Diagnostic{Severity: SevError, Pos: pos, Message: msg})
}

// handleDirective dispatches a single parsed directive line. The first bool
// result reports whether err (if non-nil) is fatal to the whole run; the
// string result is text to emit in place of the usual blank directive line
// (used only by #pragma, whose non-"once" contents pass through verbatim).
func (p *Preprocessor) handleDirective(toks []Token, pos Pos, sources *SourceStack) (bool, string, error) {
	dir, err := ParseDirective(toks, pos)
	if err != nil {
		if !p.cond.Emit() {
			return false, "", nil
		}
		return false, "", err
	}

	switch dir.Kind {
	case DirIf:
		fatal, err := p.handleIf(dir, pos)
		return fatal, "", err
	case DirIfdef:
		p.cond.PushIf(p.macros.IsDefined(dir.Identifier))
		return false, "", nil
	case DirIfndef:
		p.cond.PushIf(!p.macros.IsDefined(dir.Identifier))
		return false, "", nil
	case DirElif:
		fatal, err := p.handleElif(dir, pos)
		return fatal, "", err
	case DirElifdef:
		return false, "", p.cond.Elif(p.macros.IsDefined(dir.Identifier))
	case DirElifndef:
		return false, "", p.cond.Elif(!p.macros.IsDefined(dir.Identifier))
	case DirElse:
		return false, "", p.cond.Else()
	case DirEndif:
		return false, "", p.cond.Endif()
	}

	if !p.cond.Emit() {
		return false, "", nil
	}

	switch dir.Kind {
	case DirDefine:
		p.macros.Insert(&Macro{
			Name: dir.MacroName, Kind: kindOf(dir), Params: dir.Params,
			Variadic: dir.Variadic, Body: dir.Body,
		})
		return false, "", nil
	case DirUndef:
		if builtinNames[dir.Identifier] {
			return false, "", errors.Errorf("cannot #undef built-in macro %s", dir.Identifier)
		}
		p.macros.Remove(dir.Identifier)
		return false, "", nil
	case DirInclude:
		fatal, err := p.handleInclude(dir, pos, sources)
		return fatal, "", err
	case DirError:
		return true, "", errors.Wrapf(ErrFatal, "#error %s", dir.Message)
	case DirWarning:
		p.warn(pos, dir.Message)
		return false, "", nil
	case DirLine:
		sources.SetLine(dir.LineNum, dir.FileName)
		return false, "", nil
	case DirPragma:
		text, err := p.handlePragma(dir, pos)
		return false, text, err
	case DirEmpty:
		return false, "", nil
	default:
		return false, "", errors.Errorf("unhandled directive #%s", dir.Kind)
	}
}

func kindOf(dir *Directive) MacroKind {
	if dir.Params != nil {
		return FunctionLike
	}
	return ObjectLike
}

func (p *Preprocessor) handleIf(dir *Directive, pos Pos) (bool, error) {
	if !p.cond.NeedsIfCond() {
		p.cond.PushIf(false)
		return false, nil
	}
	cond, err := p.evalCondition(dir.Expression)
	if err != nil {
		p.errorDiag(pos, err.Error())
		p.cond.PushIf(false)
		return false, nil
	}
	p.cond.PushIf(cond)
	return false, nil
}

func (p *Preprocessor) handleElif(dir *Directive, pos Pos) (bool, error) {
	if !p.cond.NeedsElifCond() {
		return false, p.cond.Elif(false)
	}
	cond, err := p.evalCondition(dir.Expression)
	if err != nil {
		p.errorDiag(pos, err.Error())
		cond = false
	}
	return false, p.cond.Elif(cond)
}

// evalCondition substitutes `defined`, expands, and evaluates an #if/#elif
// controlling expression.
func (p *Preprocessor) evalCondition(expr []Token) (bool, error) {
	withDefined, err := SubstituteDefined(expr, p.macros)
	if err != nil {
		return false, err
	}
	expanded, err := p.expander.Expand(withDefined)
	if err != nil {
		return false, err
	}
	val, err := Evaluate(expanded, p.macros)
	if err != nil {
		return false, err
	}
	return val != 0, nil
}

// handlePragma handles #pragma once internally and returns any other pragma
// verbatim so it reaches the emitted output as its own line, the way a
// downstream compiler pass would expect to still see it.
func (p *Preprocessor) handlePragma(dir *Directive, pos Pos) (string, error) {
	trimmed := TrimBlank(dir.PragmaTokens)
	if len(trimmed) > 0 && trimmed[0].Kind == Identifier && trimmed[0].Text == "once" {
		p.includes.MarkPragmaOnce(pos.File)
		return "", nil
	}
	return "#pragma " + TokensText(trimmed), nil
}

func (p *Preprocessor) handleInclude(dir *Directive, pos Pos, sources *SourceStack) (bool, error) {
	headerName := dir.HeaderName
	kind := dir.IncludeKind
	if headerName == "" && len(dir.Expression) > 0 {
		expanded, err := p.expander.Expand(dir.Expression)
		if err != nil {
			return false, errors.Wrap(err, "expanding #include")
		}
		text := strings.TrimSpace(TokensText(TrimBlank(expanded)))
		switch {
		case strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">"):
			headerName, kind = text[1:len(text)-1], IncludeAngled
		case strings.HasPrefix(text, "\"") && strings.HasSuffix(text, "\""):
			headerName, kind = text[1:len(text)-1], IncludeQuoted
		default:
			return false, errors.Errorf("#include expects a header name, got %q", text)
		}
	}
	if headerName == "" {
		return false, errors.New("#include expects a file name")
	}

	p.includes.SetCurrentFile(pos.File)
	resolved, err := p.includes.Resolve(headerName, kind)
	if err != nil {
		return false, err
	}

	skip, err := p.includes.Enter(resolved, p.macros)
	if err != nil {
		return false, err
	}
	if skip {
		return false, nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		p.includes.Exit()
		return true, errors.Wrapf(ErrFatal, "opening %s: %v", resolved, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		p.includes.Exit()
		return true, errors.Wrapf(ErrFatal, "reading %s: %v", resolved, err)
	}

	if guard := detectIncludeGuard(string(content), resolved); guard != "" {
		p.includes.ConfirmGuard(resolved, guard)
	}

	// Pushing the new frame is the entire effect: Run's loop treats the
	// SourceStack as one continuous line stream, so the next Next() call
	// starts reading the included file, and Includes.Exit() is paired with
	// the frame's automatic pop back in Run.
	sources.Push(NewLineSourceString(string(content), resolved))
	return false, nil
}

// detectIncludeGuard reports the guard macro name if content's first
// meaningful directives are the #ifndef GUARD / #define GUARD idiom.
func detectIncludeGuard(content, file string) string {
	src := NewLineSourceString(content, file)
	var toks []Token
	for len(toks) < 12 {
		line, ok, err := src.Next()
		if err != nil || !ok {
			break
		}
		lineToks, err := Tokenize(line, file)
		if err != nil {
			break
		}
		for _, t := range lineToks {
			if t.Kind == Whitespace || t.Kind == Comment {
				continue
			}
			toks = append(toks, t)
		}
	}
	if len(toks) < 6 {
		return ""
	}
	if toks[0].Kind == Hash && toks[1].Kind == Identifier && toks[1].Text == "ifndef" &&
		toks[2].Kind == Identifier &&
		toks[3].Kind == Hash && toks[4].Kind == Identifier && toks[4].Text == "define" &&
		toks[5].Kind == Identifier && toks[5].Text == toks[2].Text {
		return toks[2].Text
	}
	return ""
}

// NeedsPreprocessing reports whether filename's extension marks it as
// requiring preprocessing, following the common fixed/free-form source
// convention where an uppercase source-file letter (e.g. .F, .F90) signals
// directive content and its lowercase counterpart (.f, .f90) does not.
func NeedsPreprocessing(filename string) bool {
	ext := filepath.Ext(filename)
	if ext == "" {
		return false
	}
	return strings.ToUpper(ext) == ext && strings.ToLower(ext) != ext
}
