// Package disasm renders a byte range as an annotated instruction listing.
//
// Decoding is linear: the bytes are walked one instruction word at a time
// from the base address and control flow is never followed. Words the
// decoder does not recognise are emitted as .long data so that the listing
// always accounts for every byte of the input.
//
// # Labels
//
// When the symbol table resolves the address of an instruction, a "name:"
// label line precedes it in the listing.
//
// # Symbolization
//
// The operand text of each instruction is scanned for an absolute address
// literal (0x followed by hex digits). A literal that resolves in the
// symbol table is replaced by the symbol name. An instruction whose
// operands contain more than one absolute literal cannot be symbolized
// unambiguously and fails with [ErrAmbiguousOperand].
package disasm
