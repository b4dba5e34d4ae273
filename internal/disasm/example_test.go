package disasm_test

import (
	"fmt"

	"github.com/kk-code-lab/segsplit/internal/disasm"
	"github.com/kk-code-lab/segsplit/internal/symbols"
)

func ExampleTarget_Disassemble() {
	table := symbols.NewTable()
	_ = table.Add(0x1000, "entry")

	// PowerPC big endian: b 0x1000; bl 0x1000
	code := []byte{0x48, 0x00, 0x00, 0x10, 0x48, 0x00, 0x00, 0x0d}
	target, _ := disasm.NewTarget("ppc", false)
	lines, _ := target.Disassemble(code, 0xff0, table)
	for _, l := range lines {
		fmt.Printf("0x%x: %s\n", l.Address, l.Text)
	}
	// Output:
	// 0xff0: b entry
	// 0xff4: bl entry
}
