package command

import "strings"

const indentUnit = "    "

// Builder accumulates SQL text with indentation tracking. Build snapshots the
// current text into an immutable Command; the builder can keep being used.
type Builder struct {
	buf       strings.Builder
	indent    int
	lineStart bool
	params    []any
}

func NewBuilder() *Builder {
	return &Builder{lineStart: true}
}

// Append writes s, prefixing the current indentation when at the start of a line.
func (b *Builder) Append(s string) *Builder {
	if s == "" {
		return b
	}
	if b.lineStart {
		b.buf.WriteString(strings.Repeat(indentUnit, b.indent))
		b.lineStart = false
	}
	b.buf.WriteString(s)
	return b
}

// AppendLine writes s followed by a newline.
func (b *Builder) AppendLine(s string) *Builder {
	b.Append(s)
	b.buf.WriteByte('\n')
	b.lineStart = true
	return b
}

// AppendLines writes every line of text at the current indentation.
// A single trailing newline in text does not produce an extra empty line.
func (b *Builder) AppendLines(text string) *Builder {
	text = strings.TrimSuffix(text, "\n")
	for _, line := range strings.Split(text, "\n") {
		b.AppendLine(line)
	}
	return b
}

// AddParam binds a parameter to the command being built.
func (b *Builder) AddParam(v any) *Builder {
	b.params = append(b.params, v)
	return b
}

// Indent increases indentation and returns a func restoring it:
//
//	defer b.Indent()()
func (b *Builder) Indent() func() {
	b.IncrementIndent()
	return func() { b.DecrementIndent() }
}

func (b *Builder) IncrementIndent() *Builder {
	b.indent++
	return b
}

func (b *Builder) DecrementIndent() *Builder {
	if b.indent > 0 {
		b.indent--
	}
	return b
}

// Len is the number of bytes written so far.
func (b *Builder) Len() int { return b.buf.Len() }

// Reset clears text, parameters and indentation.
func (b *Builder) Reset() *Builder {
	b.buf.Reset()
	b.params = nil
	b.indent = 0
	b.lineStart = true
	return b
}

// Build returns an immutable command holding the current text and parameters.
func (b *Builder) Build() Command {
	return New(b.buf.String(), b.params...)
}

func (b *Builder) String() string { return b.buf.String() }
