package pp

import (
	"path/filepath"
	"strconv"
	"time"
)

// Clock is the shape of a timestamp source such as time.Now. NewPreprocessor
// takes an already-sampled time.Time rather than a Clock, so every
// __DATE__/__TIME__/__TIMESTAMP__ expansion within one run reports the same
// moment, the way a single compiler invocation would.
type Clock func() time.Time

// registerBuiltins installs the dynamic predefined macros into
// table. now is fixed for the lifetime of the preprocessing run; file/line
// are supplied per-expansion via the BuiltinFunc's Pos argument.
func registerBuiltins(table *MacroTable, now time.Time) {
	def := func(name string, fn BuiltinFunc) {
		table.Insert(&Macro{Name: name, Kind: ObjectLike, Builtin: fn})
	}

	def("__LINE__", func(at Pos) []Token {
		return []Token{{Kind: Number, Text: strconv.Itoa(at.Line), Pos: at}}
	})
	def("__FILE__", func(at Pos) []Token {
		return []Token{{Kind: StringLit, Text: quote(at.File), Pos: at}}
	})
	def("__FILENAME__", func(at Pos) []Token {
		return []Token{{Kind: StringLit, Text: quote(filepath.Base(at.File)), Pos: at}}
	})
	def("__DATE__", func(at Pos) []Token {
		return []Token{{Kind: StringLit, Text: quote(now.Format("Jan 02 2006")), Pos: at}}
	})
	def("__TIME__", func(at Pos) []Token {
		return []Token{{Kind: StringLit, Text: quote(now.Format("15:04:05")), Pos: at}}
	})
	def("__TIMESTAMP__", func(at Pos) []Token {
		return []Token{{Kind: StringLit, Text: quote(now.Format("Mon Jan 02 2006 15:04:05")), Pos: at}}
	})
}

// builtinNames lists the names that can never be #undef'd.
var builtinNames = map[string]bool{
	"__LINE__": true, "__FILE__": true, "__FILENAME__": true,
	"__DATE__": true, "__TIME__": true, "__TIMESTAMP__": true,
}

func quote(s string) string {
	// Builtins never contain embedded quotes, so a bare wrap suffices;
	// general string construction goes through stringize instead.
	return "\"" + s + "\""
}
