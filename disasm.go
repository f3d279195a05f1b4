package hammer

import (
	"fmt"
	"math"
	"strings"
)

// Disassemble renders a link object in a readable assembly-like form:
// the member table, the export table, and each function's code with
// decoded operands.
func Disassemble(lo *LinkObject) string {
	var s strings.Builder

	fmt.Fprintf(&s, ";; module %s\n\n", lo.ModuleName)

	s.WriteString("members:\n")
	for i, m := range lo.Members {
		fmt.Fprintf(&s, "  %04d  %s\n", i, m)
	}

	if len(lo.Exports) > 0 {
		s.WriteString("exports:\n")
		for _, e := range lo.Exports {
			fmt.Fprintf(&s, "  %04d -> %04d\n", e.Symbol, e.Member)
		}
	}

	for _, fn := range lo.Functions {
		fmt.Fprintf(&s, "\nfunc %s (params=%d, locals=%d):\n", fn.Name, fn.Params, fn.Locals)
		s.WriteString(DisassembleCode(fn.Code))
	}
	return s.String()
}

// DisassembleCode decodes one code stream, one instruction per line.
func DisassembleCode(code []byte) string {
	var s strings.Builder
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		fmt.Fprintf(&s, "  %06d  %s", pc, op)
		operands := opcodeOperands[op]
		offset := pc + 1
		for _, width := range operands {
			switch width {
			case 4:
				fmt.Fprintf(&s, " %d", decodeU32(code[offset:]))
			case 8:
				if op == OpLoadFloat {
					fmt.Fprintf(&s, " %g", math.Float64frombits(decodeU64(code[offset:])))
				} else {
					fmt.Fprintf(&s, " %d", int64(decodeU64(code[offset:])))
				}
			}
			offset += width
		}
		s.WriteString("\n")
		pc += op.SizeInBytes()
	}
	return s.String()
}
