package pp

import "github.com/pkg/errors"

// Directive-class sentinels for conditional-nesting misuse.
var (
	ErrElifWithoutIf  = errors.New("#elif without matching #if")
	ErrElifAfterElse  = errors.New("#elif after #else")
	ErrElseWithoutIf  = errors.New("#else without matching #if")
	ErrDuplicateElse  = errors.New("duplicate #else")
	ErrEndifWithoutIf = errors.New("#endif without matching #if")
	ErrUnterminatedIf = errors.New("unterminated #if at end of input")
)

// Frame is a single level of the Conditional Stack.
type Frame struct {
	Active        bool // the current branch emits
	AnyTaken      bool // some prior branch has been active since this frame opened
	InElse        bool // the #else clause has been entered
	ParentActive  bool // whether the enclosing frame was active at push time
}

// Conditionals tracks nested #if/#ifdef/#ifndef/#elif/#else/#endif state
// (component C7). The emit predicate is the AND of every frame's Active.
type Conditionals struct {
	frames []Frame
}

// NewConditionals returns an empty stack.
func NewConditionals() *Conditionals {
	return &Conditionals{}
}

// Emit reports whether source lines at the current position should be
// written to output.
func (c *Conditionals) Emit() bool {
	for _, f := range c.frames {
		if !f.Active {
			return false
		}
	}
	return true
}

// Depth returns the nesting depth.
func (c *Conditionals) Depth() int { return len(c.frames) }

// NeedsIfCond reports whether a new #if's controlling expression is worth
// evaluating: false when the enclosing frame is already inactive, so the
// new frame is forced inactive regardless of cond.
func (c *Conditionals) NeedsIfCond() bool {
	return c.Emit()
}

// NeedsElifCond reports whether an #elif's controlling expression is worth
// evaluating: false when a prior branch already ran or the parent frame is
// inactive, cases where #elif is forced inactive regardless of cond.
func (c *Conditionals) NeedsElifCond() bool {
	if len(c.frames) == 0 {
		return false
	}
	f := c.frames[len(c.frames)-1]
	return !f.InElse && f.ParentActive && !f.AnyTaken
}

// PushIf opens a frame for #if/#ifdef/#ifndef, with cond already evaluated.
func (c *Conditionals) PushIf(cond bool) {
	parentActive := c.Emit()
	active := parentActive && cond
	c.frames = append(c.frames, Frame{
		Active: active, AnyTaken: active, ParentActive: parentActive,
	})
}

// Elif applies an #elif/#elifdef/#elifndef transition.
func (c *Conditionals) Elif(cond bool) error {
	if len(c.frames) == 0 {
		return ErrElifWithoutIf
	}
	f := &c.frames[len(c.frames)-1]
	if f.InElse {
		return ErrElifAfterElse
	}
	if !f.ParentActive {
		f.Active = false
		return nil
	}
	if f.AnyTaken {
		f.Active = false
		return nil
	}
	f.Active = cond
	if cond {
		f.AnyTaken = true
	}
	return nil
}

// Else applies the #else transition.
func (c *Conditionals) Else() error {
	if len(c.frames) == 0 {
		return ErrElseWithoutIf
	}
	f := &c.frames[len(c.frames)-1]
	if f.InElse {
		return ErrDuplicateElse
	}
	f.InElse = true
	f.Active = f.ParentActive && !f.AnyTaken
	if f.Active {
		f.AnyTaken = true
	}
	return nil
}

// Endif pops the current frame.
func (c *Conditionals) Endif() error {
	if len(c.frames) == 0 {
		return ErrEndifWithoutIf
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// CheckBalanced reports an error if any #if is left unclosed at end of input.
func (c *Conditionals) CheckBalanced() error {
	if len(c.frames) > 0 {
		return errors.Wrapf(ErrUnterminatedIf, "%d level(s) unclosed", len(c.frames))
	}
	return nil
}
