package disasm

import (
	"bufio"
	"fmt"
	"io"
)

// WriteListing renders lines address-ascending, one instruction per line,
// each preceded by its label when it has one. name is written as a leading
// label unless the first line already carries a label.
func WriteListing(w io.Writer, name string, lines []Line) error {
	bw := bufio.NewWriter(w)
	if name != "" && (len(lines) == 0 || lines[0].Label == "") {
		if _, err := fmt.Fprintf(bw, "%s:\n", name); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if line.Label != "" {
			if _, err := fmt.Fprintf(bw, "%s:\n", line.Label); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "/* %08X %-8s */  %s\n", line.Address, rawHex(line.Raw), line.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}
