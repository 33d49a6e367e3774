package asmir

import "golang.org/x/arch/x86/x86asm"

// ArgRegs are the first six System V AMD64 integer-argument registers, in
// order.
var ArgRegs = []x86asm.Reg{x86asm.RDI, x86asm.RSI, x86asm.RDX, x86asm.RCX, x86asm.R8, x86asm.R9}

// CalleeSaved are the registers a function must restore before returning,
// excluding rbp (managed separately as the frame pointer).
var CalleeSaved = []x86asm.Reg{x86asm.RBX, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15}

// ReturnReg holds a function's scalar return value.
const ReturnReg = x86asm.RAX

// UsableColors is the K = 14 colors register allocation assigns: every GPR
// except rsp and rbp, which are reserved for the frame.
var UsableColors = []x86asm.Reg{
	x86asm.RAX, x86asm.RBX, x86asm.RCX, x86asm.RDX, x86asm.RSI, x86asm.RDI,
	x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
}

// LowByte returns the 8-bit sub-register NASM uses to address the low byte
// of r, needed to print `setcc` targets.
func LowByte(r x86asm.Reg) x86asm.Reg {
	switch r {
	case x86asm.RAX:
		return x86asm.AL
	case x86asm.RBX:
		return x86asm.BL
	case x86asm.RCX:
		return x86asm.CL
	case x86asm.RDX:
		return x86asm.DL
	case x86asm.RSI:
		return x86asm.SIB
	case x86asm.RDI:
		return x86asm.DIB
	case x86asm.RBP:
		return x86asm.BPB
	case x86asm.RSP:
		return x86asm.SPB
	case x86asm.R8:
		return x86asm.R8B
	case x86asm.R9:
		return x86asm.R9B
	case x86asm.R10:
		return x86asm.R10B
	case x86asm.R11:
		return x86asm.R11B
	case x86asm.R12:
		return x86asm.R12B
	case x86asm.R13:
		return x86asm.R13B
	case x86asm.R14:
		return x86asm.R14B
	case x86asm.R15:
		return x86asm.R15B
	default:
		return r
	}
}
