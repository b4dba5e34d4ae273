// Package symbols maps virtual addresses to names and back. A Table is
// built once per run and passed to the code that needs it.
package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedLine reports a symbol list line that is not an "addr name" pair.
var ErrMalformedLine = errors.New("symbols: malformed line")

// ErrConflict reports an address or name bound twice to different partners.
var ErrConflict = errors.New("symbols: conflicting entry")

// Table is a bidirectional address/name index.
type Table struct {
	byAddr map[uint64]string
	byName map[string]uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		byAddr: make(map[uint64]string),
		byName: make(map[string]uint64),
	}
}

// Load reads a symbol list file. A missing file yields an empty table.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTable(), nil
		}
		return nil, err
	}
	defer file.Close()
	t, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads "addr name" pairs, one per line. Addresses are hexadecimal
// with an optional 0x marker. Blank lines are ignored.
func Parse(r io.Reader) (*Table, error) {
	t := NewTable()
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w %d: %q", ErrMalformedLine, lineNo, line)
		}
		addr, err := parseAddress(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrMalformedLine, lineNo, err)
		}
		if err := t.Add(addr, fields[1]); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseAddress(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// Add binds addr and name. Re-adding an identical pair is a no-op.
func (t *Table) Add(addr uint64, name string) error {
	if name == "" {
		return errors.New("symbols: empty name")
	}
	if prev, ok := t.byAddr[addr]; ok && prev != name {
		return fmt.Errorf("%w: %#x is both %s and %s", ErrConflict, addr, prev, name)
	}
	if prev, ok := t.byName[name]; ok && prev != addr {
		return fmt.Errorf("%w: %s is both %#x and %#x", ErrConflict, name, prev, addr)
	}
	t.byAddr[addr] = name
	t.byName[name] = addr
	return nil
}

// Resolve returns the name bound to addr.
func (t *Table) Resolve(addr uint64) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.byAddr[addr]
	return name, ok
}

// AddressOf returns the address bound to name.
func (t *Table) AddressOf(name string) (uint64, bool) {
	if t == nil {
		return 0, false
	}
	addr, ok := t.byName[name]
	return addr, ok
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byAddr)
}

func (t *Table) String() string {
	if t == nil {
		return ""
	}
	addrs := make([]uint64, 0, len(t.byAddr))
	for addr := range t.byAddr {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	s := strings.Builder{}
	for _, addr := range addrs {
		s.WriteString(fmt.Sprintf("%08x %s\n", addr, t.byAddr[addr]))
	}
	return s.String()
}
