// Package printer renders a Module in a line-oriented textual IR format:
// ';' comments, "@name = { ... }" globals, and
// "define name ( args ) { <label>: insts }" functions.
package printer

import (
	"fmt"
	"io"
	"strings"

	"github.com/Engineev/mxc/internal/ir"
)

// Fprint writes m to w in the textual IR format.
func Fprint(w io.Writer, m *ir.Module) error {
	p := &printer{w: w}
	p.module(m)
	return p.err
}

// String renders m to a string, for tests and -trace dumps.
func String(m *ir.Module) string {
	var sb strings.Builder
	_ = Fprint(&sb, m)
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) module(m *ir.Module) {
	for _, g := range m.Globals {
		if g.HasInit {
			p.printf("%s = { size %d, init %s }\n", g.Name, g.Size, hexBytes(g.Init))
		} else {
			p.printf("%s = { size %d }\n", g.Name, g.Size)
		}
	}
	for _, name := range m.FuncOrder() {
		p.function(m.Functions[name])
	}
}

func (p *printer) function(f *ir.Function) {
	p.printf("define %s ( %s )", f.Name, strings.Join(f.Params, " "))
	if f.External {
		p.printf(" external\n")
		return
	}
	p.printf(" {\n")
	for _, b := range f.Blocks {
		p.printf("<%d>:\n", b.Label)
		for _, id := range b.Insts {
			inst := f.Inst(id)
			if inst.IsDeleted() {
				continue
			}
			p.printf("  %s\n", inst.String())
		}
	}
	p.printf("}\n")
}

func hexBytes(bs []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range bs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	sb.WriteByte(']')
	return sb.String()
}
