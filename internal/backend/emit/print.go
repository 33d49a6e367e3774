// Package emit turns colored internal/backend/asmir into NASM-syntax text.
package emit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Engineev/mxc/internal/backend/asmir"
	"github.com/Engineev/mxc/internal/runtime"
)

// Print renders prog as a complete NASM source file. Every function must
// already be register-allocated: no OpVReg operand may remain.
func Print(prog *asmir.Program) string {
	var buf bytes.Buffer
	buf.WriteString("default rel\n")
	buf.WriteString("global main\n")
	for _, sym := range runtime.Symbols {
		fmt.Fprintf(&buf, "extern %s\n", asmLabel(sym))
	}
	buf.WriteString("\n")

	printData(&buf, prog.Globals)
	printBSS(&buf, prog.Globals)
	printText(&buf, prog.Functions)
	return buf.String()
}

// asmLabel replaces "#" with "__" so function and runtime-symbol names
// become valid NASM identifiers.
func asmLabel(name string) string {
	return strings.ReplaceAll(name, "#", "__")
}

func printData(buf *bytes.Buffer, globals []asmir.Global) {
	var withInit []asmir.Global
	for _, g := range globals {
		if g.HasInit {
			withInit = append(withInit, g)
		}
	}
	if len(withInit) == 0 {
		return
	}
	buf.WriteString("section .data\n")
	for _, g := range withInit {
		fmt.Fprintf(buf, "%s: db %s\n", asmLabel(g.Name), byteList(g.Init))
	}
	buf.WriteString("\n")
}

func byteList(bs []byte) string {
	if len(bs) == 0 {
		return "0"
	}
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return strings.Join(parts, ", ")
}

func printBSS(buf *bytes.Buffer, globals []asmir.Global) {
	var noInit []asmir.Global
	for _, g := range globals {
		if !g.HasInit {
			noInit = append(noInit, g)
		}
	}
	if len(noInit) == 0 {
		return
	}
	buf.WriteString("section .bss\n")
	for _, g := range noInit {
		size := g.Size
		if size <= 0 {
			size = 8
		}
		fmt.Fprintf(buf, "%s: resb %d\n", asmLabel(g.Name), size)
	}
	buf.WriteString("\n")
}

func printText(buf *bytes.Buffer, fns []*asmir.Function) {
	buf.WriteString("section .text\n")
	for _, fn := range fns {
		if fn.External {
			continue
		}
		printFunc(buf, fn)
	}
}

func printFunc(buf *bytes.Buffer, fn *asmir.Function) {
	fmt.Fprintf(buf, "%s:\n", asmLabel(fn.Name))
	buf.WriteString("\tpush rbp\n")
	buf.WriteString("\tmov rbp, rsp\n")
	if fn.SpillSlots > 0 {
		fmt.Fprintf(buf, "\tsub rsp, %d\n", 8*fn.SpillSlots)
	}
	for _, b := range fn.Blocks {
		fmt.Fprintf(buf, ".L%d:\n", b.Label)
		for _, in := range b.Insts {
			printInstr(buf, fn, in)
		}
	}
}

func printInstr(buf *bytes.Buffer, fn *asmir.Function, in *asmir.Instr) {
	switch in.Op {
	case asmir.Jmp:
		fmt.Fprintf(buf, "\tjmp .L%d\n", in.Target)
	case asmir.Jcc:
		fmt.Fprintf(buf, "\tj%s .L%d\n", in.Cond.Suffix(), in.Target)
	case asmir.Call:
		fmt.Fprintf(buf, "\tcall %s\n", asmLabel(in.Callee))
	case asmir.Ret:
		// restored by the trailing Leave; ret itself is unconditional.
		buf.WriteString("\tret\n")
	case asmir.Leave:
		buf.WriteString("\tleave\n")
	case asmir.SetFromCond:
		fmt.Fprintf(buf, "\tset%s %s\n", in.Cond.Suffix(), lowByteOperand(in.A))
	case asmir.Neg, asmir.Not, asmir.Inc, asmir.Dec, asmir.Push, asmir.Pop:
		fmt.Fprintf(buf, "\t%s %s\n", in.Op, operandStr(in.A))
	default:
		if in.HasA && in.HasB {
			fmt.Fprintf(buf, "\t%s %s, %s\n", in.Op, operandStr(in.A), operandStr(in.B))
		} else if in.HasA {
			fmt.Fprintf(buf, "\t%s %s\n", in.Op, operandStr(in.A))
		}
	}
}

func operandStr(o asmir.Operand) string {
	switch o.Kind {
	case asmir.OpGlobal:
		return "[" + asmLabel(o.Global) + "]"
	default:
		return o.String()
	}
}

func lowByteOperand(o asmir.Operand) string {
	if o.Kind != asmir.OpPReg {
		return operandStr(o)
	}
	return asmir.LowByte(o.PReg).String()
}
