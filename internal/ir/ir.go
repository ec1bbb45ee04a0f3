package ir

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// IR — the normalized function representation consumed by the backend
//
// A Function is a flat, block-structured form of a single function: a header
// of named fields, an ordered list of basic blocks, a constant pool and an
// upvalue list.  Operands are virtual registers (identified by a pass-wide
// unique name), constant-pool indices, or upvalue indices.  The IR arrives
// already decoded and normalized; this package is a pure data model.
// ---------------------------------------------------------------------------

// ---------------------------------------------------------------------------
// Operand kinds
// ---------------------------------------------------------------------------

// Kind describes what an operand refers to.
type Kind int

const (
	KindNone     Kind = iota // unused operand slot
	KindRegister             // virtual register, identified by name
	KindConstant             // index into the constant pool
	KindUpvalue              // index into the upvalue list
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRegister:
		return "register"
	case KindConstant:
		return "constant"
	case KindUpvalue:
		return "upvalue"
	default:
		return fmt.Sprintf("kind_%d", int(k))
	}
}

// Operand is a single value reference in an instruction.
type Operand struct {
	Kind  Kind
	Name  string // virtual register name (KindRegister)
	Index int    // pool index (KindConstant, KindUpvalue)
}

// Convenience constructors for operands.
func Reg(name string) Operand { return Operand{Kind: KindRegister, Name: name} }
func Const(index int) Operand { return Operand{Kind: KindConstant, Index: index} }
func Upval(index int) Operand { return Operand{Kind: KindUpvalue, Index: index} }
func None() Operand           { return Operand{Kind: KindNone} }

func (o Operand) String() string {
	switch o.Kind {
	case KindNone:
		return "<none>"
	case KindRegister:
		return o.Name
	case KindConstant:
		return fmt.Sprintf("K%d", o.Index)
	case KindUpvalue:
		return fmt.Sprintf("U%d", o.Index)
	default:
		return "?"
	}
}

// ---------------------------------------------------------------------------
// Opcode tags
// ---------------------------------------------------------------------------

// Opcode tags recognized by the lowering stage.  The emitted mnemonic is the
// uppercase form of the tag.  Any other tag must carry a verbatim payload.
const (
	OpLoadK    = "loadk"    // dst = constant-pool entry
	OpMove     = "move"     // dst = source register
	OpGetTabUp = "gettabup" // dst = upvalue table read (constant key)
	OpSetTabUp = "settabup" // upvalue table write (upvalue, key, value)
	OpNewTable = "newtable" // dst = fresh table, with size hints
	OpSetTable = "settable" // table write (table, key, value)
	OpCall     = "call"     // call callee with trailing argument operands
	OpReturn   = "return"   // return zero or more operands
	OpAdd      = "add"
	OpSub      = "sub"
	OpMul      = "mul"
	OpDiv      = "div"
	OpMod      = "mod"
	OpForPrep  = "forprep" // iteration setup: index, limit, step + target label
	OpForLoop  = "forloop" // iteration step: index + body label
)

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Meta carries opcode-specific metadata.  Only the fields relevant to an
// instruction's tag are consulted.
type Meta struct {
	Target    string // forprep: branch-target label (required)
	Body      string // forloop: body label (required)
	Returns   *int   // call: return count (nil means default 1)
	ArraySize int    // newtable: array-part size hint
	HashSize  int    // newtable: hash-part size hint
	Key       int    // gettabup: constant key index
	Verbatim  string // pre-formatted output text for unrecognized tags
}

// Instr is a single IR instruction: an opcode tag, an optional destination,
// ordered source operands and optional metadata.
type Instr struct {
	Op   string
	Dst  Operand
	Srcs []Operand
	Meta Meta
}

func (i Instr) String() string {
	s := i.Op
	if i.Dst.Kind != KindNone {
		s += " " + i.Dst.String()
	}
	for n, src := range i.Srcs {
		if n == 0 && i.Dst.Kind == KindNone {
			s += " " + src.String()
		} else {
			s += ", " + src.String()
		}
	}
	return s
}

// ---------------------------------------------------------------------------
// Blocks, upvalues, functions
// ---------------------------------------------------------------------------

// Block is a labeled, ordered instruction sequence.  Blocks are never merged
// or reordered by this stage; identity is the label.
type Block struct {
	Label  string
	Instrs []Instr
}

// Upvalue describes one declared upvalue: an optional surface name and its
// storage location (in the enclosing stack or in the enclosing upvalue list).
type Upvalue struct {
	Name    string
	InStack int
	Index   int
}

// Function is the unit of lowering: one function's complete normalized form.
type Function struct {
	Name   string
	Header map[string]int // named header fields (numparams, is_vararg, maxstack, ...)
	Blocks []Block
	Consts []any // constant pool, positional
	Upvals []Upvalue
}

// DebugDump returns a human-readable summary of the function, for --debug
// output and test failure messages.
func (f *Function) DebugDump() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "function %s (%d blocks, %d consts, %d upvalues)\n",
		f.Name, len(f.Blocks), len(f.Consts), len(f.Upvals))
	for _, blk := range f.Blocks {
		fmt.Fprintf(b, "  %s:\n", blk.Label)
		for _, in := range blk.Instrs {
			fmt.Fprintf(b, "    %s\n", in.String())
		}
	}
	return b.String()
}
