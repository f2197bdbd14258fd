package pp

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Line is a single logical line: physical lines joined on a trailing
// backslash-newline, with any trailing carriage return stripped. Number is
// the 1-based line number of the first physical line that makes up this
// logical line.
type Line struct {
	Text   string
	Number int
}

// LineSource yields successive logical lines from a byte stream. File
// reports the originating path for __FILE__/__LINE__ and diagnostics.
type LineSource interface {
	Next() (Line, bool, error)
	File() string
}

// stringLineSource is the concrete, buffered LineSource implementation used
// for both real files and in-memory strings; file I/O is abstracted at the
// LineSource boundary, so this is the one place that reads raw
// bytes.
type stringLineSource struct {
	scanner  *bufio.Scanner
	file     string
	physLine int
	exhausted bool
}

// NewLineSource builds a LineSource over r, reporting file as its origin for
// diagnostics and built-ins.
func NewLineSource(r io.Reader, file string) LineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanLines) // bufio already strips a trailing \r\n or \n
	return &stringLineSource{scanner: sc, file: file}
}

// NewLineSourceString builds a LineSource over an in-memory string.
func NewLineSourceString(src, file string) LineSource {
	return NewLineSource(strings.NewReader(src), file)
}

func (s *stringLineSource) File() string { return s.file }

// Next returns the next logical line, joining backslash-continued physical
// lines (backslash and newline both removed). An empty physical line after
// joining remains an empty logical line.
func (s *stringLineSource) Next() (Line, bool, error) {
	if s.exhausted {
		return Line{}, false, nil
	}

	firstLineNo := s.physLine + 1
	var sb strings.Builder
	any := false

	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Line{}, false, errors.Wrapf(err, "reading %s", s.file)
			}
			s.exhausted = true
			break
		}
		s.physLine++
		any = true
		text := s.scanner.Text()
		if strings.HasSuffix(text, "\\") {
			sb.WriteString(text[:len(text)-1])
			continue
		}
		sb.WriteString(text)
		break
	}

	if !any {
		return Line{}, false, nil
	}
	return Line{Text: sb.String(), Number: firstLineNo}, true, nil
}

// SourceStack is the stack of active Line Sources: the topmost is the
// current input; #include pushes a new source, EOF pops it. The bottom
// element is the original input and the stack is never empty while
// processing.
type SourceStack struct {
	frames []*sourceFrame
}

type sourceFrame struct {
	src           LineSource
	file          string // mutable via #line
	offset        int    // added to the source's natural Number to honor #line
	pendingTarget *int   // set by SetLine; applied to the next line read
}

// NewSourceStack creates a stack with a single bottom frame.
func NewSourceStack(src LineSource) *SourceStack {
	return &SourceStack{frames: []*sourceFrame{{src: src, file: src.File()}}}
}

// Push enters an included file.
func (s *SourceStack) Push(src LineSource) {
	s.frames = append(s.frames, &sourceFrame{src: src, file: src.File()})
}

// Pop leaves the current file, returning false if the bottom frame would be
// popped (the stack must never go empty while processing).
func (s *SourceStack) Pop() bool {
	if len(s.frames) <= 1 {
		return false
	}
	s.frames = s.frames[:len(s.frames)-1]
	return true
}

// Depth returns the current include nesting depth (0 at the original input).
func (s *SourceStack) Depth() int { return len(s.frames) - 1 }

// Next reads the next logical line from the top frame, honoring any #line
// override applied to that frame. When the top frame is exhausted and it is
// not the bottom frame, it is popped automatically and the call retries on
// the new top.
func (s *SourceStack) Next() (Line, bool, error) {
	for {
		top := s.frames[len(s.frames)-1]
		line, ok, err := top.src.Next()
		if err != nil {
			return Line{}, false, err
		}
		if !ok {
			if len(s.frames) == 1 {
				return Line{}, false, nil
			}
			s.frames = s.frames[:len(s.frames)-1]
			continue
		}
		if top.pendingTarget != nil {
			top.offset = *top.pendingTarget - line.Number
			top.pendingTarget = nil
		}
		reported := line.Number + top.offset
		return Line{Text: line.Text, Number: reported}, true, nil
	}
}

// CurrentFile reports the file name the top frame attributes to its output,
// honoring any #line override.
func (s *SourceStack) CurrentFile() string {
	return s.frames[len(s.frames)-1].file
}

// SetLine overrides the current frame's reported line number and, if
// fileName is non-empty, its reported file name. #line affects only the
// current frame.
func (s *SourceStack) SetLine(n int, fileName string) {
	top := s.frames[len(s.frames)-1]
	target := n
	top.pendingTarget = &target
	if fileName != "" {
		top.file = fileName
	}
}
