package disasm

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/arch/ppc64/ppc64asm"

	"github.com/kk-code-lab/segsplit/internal/symbols"
)

// ErrAmbiguousOperand reports an instruction with more than one address literal.
var ErrAmbiguousOperand = errors.New("disasm: ambiguous operand symbolization")

// Arch represents a supported instruction set.
type Arch string

// Supported architectures.
const (
	ArchPPC Arch = "ppc"
)

const wordLen = 4

// Target fixes the instruction set and byte order for a whole run.
type Target struct {
	Arch      Arch
	ByteOrder binary.ByteOrder
}

// NewTarget returns the target for arch in the requested byte order.
func NewTarget(arch string, littleEndian bool) (Target, error) {
	switch Arch(arch) {
	case ArchPPC:
	default:
		return Target{}, fmt.Errorf("unsupported architecture: %s", arch)
	}
	t := Target{Arch: Arch(arch), ByteOrder: binary.BigEndian}
	if littleEndian {
		t.ByteOrder = binary.LittleEndian
	}
	return t, nil
}

// Line is one decoded instruction or data directive.
type Line struct {
	Address uint64 `json:"address"`
	Raw     []byte `json:"raw"`
	// Label is the symbol bound to Address, if any.
	Label string `json:"label,omitempty"`
	Text  string `json:"text"`
	// Data marks words that were not decoded as instructions.
	Data bool `json:"data,omitempty"`
}

// Disassemble decodes code linearly starting at virtual address base.
// This function performs no I/O.
func (t Target) Disassemble(code []byte, base uint64, table *symbols.Table) ([]Line, error) {
	if t.Arch != ArchPPC {
		return nil, fmt.Errorf("unsupported architecture: %s", t.Arch)
	}
	if t.ByteOrder == nil {
		t.ByteOrder = binary.BigEndian
	}

	lines := make([]Line, 0, len(code)/wordLen+1)
	offset := 0
	addr := base
	for offset < len(code) {
		if len(code)-offset < wordLen {
			lines = append(lines, dataBytes(code[offset:], addr, table))
			break
		}
		word := code[offset : offset+wordLen]
		line := Line{Address: addr, Raw: word}
		line.Label, _ = table.Resolve(addr)

		inst, err := ppc64asm.Decode(word, t.ByteOrder)
		// Prefixed (8-byte) forms do not exist on the 32-bit targets this
		// runs against; treat them like any other unknown word.
		if err != nil || inst.Op == 0 || inst.Len != wordLen {
			line.Text = fmt.Sprintf(".long 0x%08x", t.ByteOrder.Uint32(word))
			line.Data = true
		} else {
			text, err := Symbolize(ppc64asm.GNUSyntax(inst, addr), table)
			if err != nil {
				return nil, fmt.Errorf("%#08x: %w", addr, err)
			}
			line.Text = text
		}
		lines = append(lines, line)
		offset += wordLen
		addr += wordLen
	}
	return lines, nil
}

func dataBytes(tail []byte, addr uint64, table *symbols.Table) Line {
	parts := make([]string, len(tail))
	for i, b := range tail {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	line := Line{
		Address: addr,
		Raw:     tail,
		Text:    ".byte " + strings.Join(parts, ","),
		Data:    true,
	}
	line.Label, _ = table.Resolve(addr)
	return line
}

var addrLiteral = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// Symbolize replaces the single absolute address literal in the operands of
// an instruction text with its symbol name. Literals written relative to the
// current address (".+0x8") are left alone and do not count.
func Symbolize(text string, table *symbols.Table) (string, error) {
	mnemonic, operands, ok := strings.Cut(text, " ")
	if !ok {
		return text, nil
	}
	var spans [][]int
	for _, loc := range addrLiteral.FindAllStringIndex(operands, -1) {
		if loc[0] > 0 && (operands[loc[0]-1] == '+' || operands[loc[0]-1] == '-') {
			continue
		}
		spans = append(spans, loc)
	}
	switch len(spans) {
	case 0:
		return text, nil
	case 1:
	default:
		return "", fmt.Errorf("%w: %q has %d address literals", ErrAmbiguousOperand, text, len(spans))
	}

	start, end := spans[0][0], spans[0][1]
	addr, err := strconv.ParseUint(operands[start+2:end], 16, 64)
	if err != nil {
		// Wider than 64 bits; cannot be a symbol address.
		return text, nil
	}
	name, ok := table.Resolve(addr)
	if !ok {
		return text, nil
	}
	return mnemonic + " " + operands[:start] + name + operands[end:], nil
}

func rawHex(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}
