package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"luva/internal/ir"
)

// ---------------------------------------------------------------------------
// Assembly Emitter
//
// Lowers one normalized function to the textual assembly form of the target
// virtual machine.  The document layout, in order:
//
//   .func <name>
//   <header line: key=value, key=value, ...>
//
//   <label>:
//   {
//       <instruction lines>
//   }
//
//   K<i> = <constant>
//   <upvalue> = L<instack> R<index>
//   .end
//
// Operand tokens are R<slot> for registers, K<index> for constants and
// U<index> for upvalues.  The pass is strictly sequential, block order then
// instruction order, and aborts on the first fatal condition; the final
// document is assembled only after every block has lowered cleanly, so a
// failing pass produces no output text at all.
// ---------------------------------------------------------------------------

// Header fields emitted first, in this fixed order.  Any remaining fields
// follow sorted by key.
var preferredHeaderFields = []string{"numparams", "is_vararg", "maxstack"}

// Assemble lowers fn to its complete assembly document.
func Assemble(fn *ir.Function) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("%w: nil function", ErrMalformedInput)
	}
	if len(fn.Blocks) == 0 {
		return "", fmt.Errorf("%w: function %q has no blocks", ErrMalformedInput, fn.Name)
	}

	e := &emitter{fn: fn, alloc: NewAllocator()}

	var blocks []string
	for i := range fn.Blocks {
		text, err := e.emitBlock(&fn.Blocks[i])
		if err != nil {
			return "", err
		}
		blocks = append(blocks, text)
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, ".func %s\n", fn.Name)
	b.WriteString(e.headerLine())
	b.WriteString("\n\n")
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(blk)
	}
	b.WriteString("\n")
	e.emitConsts(b)
	e.emitUpvals(b)
	b.WriteString(".end\n")
	return b.String(), nil
}

// emitter carries the pass-local state: the function being lowered and its
// allocator.  Never reused across functions.
type emitter struct {
	fn    *ir.Function
	alloc *Allocator
}

// headerLine renders the header fields as "key=value" pairs, preferred
// fields first in fixed order, the rest sorted by key.
func (e *emitter) headerLine() string {
	var parts []string
	seen := map[string]bool{}
	for _, k := range preferredHeaderFields {
		if v, ok := e.fn.Header[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", k, v))
			seen[k] = true
		}
	}
	var rest []string
	for k := range e.fn.Header {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s=%d", k, e.fn.Header[k]))
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Block and instruction lowering
// ---------------------------------------------------------------------------

func (e *emitter) emitBlock(blk *ir.Block) (string, error) {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s:\n{\n", blk.Label)
	for i := range blk.Instrs {
		lines, err := e.lower(&blk.Instrs[i])
		if err != nil {
			return "", fmt.Errorf("block %s: %w", blk.Label, err)
		}
		for _, ln := range lines {
			b.WriteString("    " + ln + "\n")
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// lower maps one instruction to its assembly line(s).
func (e *emitter) lower(in *ir.Instr) ([]string, error) {
	switch in.Op {
	case ir.OpLoadK, ir.OpMove:
		if len(in.Srcs) < 1 {
			return nil, fmt.Errorf("%w: %s needs a source operand", ErrBadArity, in.Op)
		}
		dst, err := e.alloc.Resolve(in.Dst)
		if err != nil {
			return nil, err
		}
		src, err := e.alloc.Resolve(in.Srcs[0])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("%s %s %s", mnemonic(in.Op), dst, src)}, nil

	case ir.OpGetTabUp:
		if len(in.Srcs) < 1 {
			return nil, fmt.Errorf("%w: gettabup needs an upvalue operand", ErrBadArity)
		}
		dst, err := e.alloc.Resolve(in.Dst)
		if err != nil {
			return nil, err
		}
		up, err := e.alloc.Resolve(in.Srcs[0])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("GETTABUP %s %s K%d", dst, up, in.Meta.Key)}, nil

	case ir.OpSetTabUp:
		if len(in.Srcs) < 3 {
			return nil, fmt.Errorf("%w: settabup needs upvalue, key and value operands", ErrBadArity)
		}
		toks, err := e.resolveAll(in.Srcs[:3])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("SETTABUP %s %s %s", toks[0], toks[1], toks[2])}, nil

	case ir.OpNewTable:
		dst, err := e.alloc.Resolve(in.Dst)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("NEWTABLE %s %d %d", dst, in.Meta.ArraySize, in.Meta.HashSize)}, nil

	case ir.OpSetTable:
		if len(in.Srcs) < 2 {
			return nil, fmt.Errorf("%w: settable needs key and value operands", ErrBadArity)
		}
		tbl, err := e.alloc.Resolve(in.Dst)
		if err != nil {
			return nil, err
		}
		toks, err := e.resolveAll(in.Srcs[:2])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("SETTABLE %s %s %s", tbl, toks[0], toks[1])}, nil

	case ir.OpCall:
		if len(in.Srcs) < 1 {
			return nil, fmt.Errorf("%w: call needs a callee operand", ErrBadArity)
		}
		callee, err := e.alloc.Resolve(in.Srcs[0])
		if err != nil {
			return nil, err
		}
		// Resolve trailing arguments for their allocation side effects.
		if _, err := e.resolveAll(in.Srcs[1:]); err != nil {
			return nil, err
		}
		// Argument count encodes callee plus arguments: (count-1)+1.
		argc := len(in.Srcs)
		retc := 1
		if in.Meta.Returns != nil {
			retc = *in.Meta.Returns
		}
		return []string{fmt.Sprintf("CALL %s %d %d", callee, argc, retc)}, nil

	case ir.OpReturn:
		return e.lowerReturn(in)

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		if len(in.Srcs) < 2 {
			return nil, fmt.Errorf("%w: %s needs two source operands", ErrBadArity, in.Op)
		}
		dst, err := e.alloc.Resolve(in.Dst)
		if err != nil {
			return nil, err
		}
		toks, err := e.resolveAll(in.Srcs[:2])
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("%s %s %s %s", mnemonic(in.Op), dst, toks[0], toks[1])}, nil

	case ir.OpForPrep:
		return e.lowerForPrep(in)

	case ir.OpForLoop:
		return e.lowerForLoop(in)

	default:
		if in.Meta.Verbatim != "" {
			return []string{in.Meta.Verbatim}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownOpcode, in.Op)
	}
}

func (e *emitter) resolveAll(ops []ir.Operand) ([]string, error) {
	toks := make([]string, len(ops))
	for i, op := range ops {
		tok, err := e.alloc.Resolve(op)
		if err != nil {
			return nil, err
		}
		toks[i] = tok
	}
	return toks, nil
}

// mnemonic is the uppercase form of the opcode tag.
func mnemonic(op string) string { return strings.ToUpper(op) }

// lowerReturn encodes the return-value list.  Constant operands are first
// materialized into fresh scratch registers, since RETURN only takes
// registers.  Zero values is the fixed zero-return line; otherwise the
// registers are space-joined and followed by the count token N+1.
func (e *emitter) lowerReturn(in *ir.Instr) ([]string, error) {
	if len(in.Srcs) == 0 {
		return []string{"RETURN R0 1"}, nil
	}
	var lines []string
	regs := make([]string, 0, len(in.Srcs))
	for _, op := range in.Srcs {
		tok, err := e.alloc.Resolve(op)
		if err != nil {
			return nil, err
		}
		if op.Kind == ir.KindConstant {
			s := e.alloc.Claim()
			lines = append(lines, fmt.Sprintf("LOADK R%d %s", s, tok))
			tok = fmt.Sprintf("R%d", s)
		}
		regs = append(regs, tok)
	}
	lines = append(lines, fmt.Sprintf("RETURN %s %d", strings.Join(regs, " "), len(regs)+1))
	return lines, nil
}

// ---------------------------------------------------------------------------
// Iteration constructs
//
// The machine requires loop-control values in a contiguous 4-slot range
// [base, base+3]: index, limit, step, body-visible value.  FORLOOP must
// address the same base the matching FORPREP established, even though the
// surface index name has been re-aliased onto base+3 by then.
// ---------------------------------------------------------------------------

func (e *emitter) lowerForPrep(in *ir.Instr) ([]string, error) {
	if in.Meta.Target == "" {
		return nil, fmt.Errorf("%w: forprep without branch target", ErrMissingMetadata)
	}
	if len(in.Srcs) != 3 {
		return nil, fmt.Errorf("%w: forprep needs index, limit and step operands", ErrBadArity)
	}
	ops := in.Srcs

	// Capture bindings before any forcing: the materialization step compares
	// each operand's original slot against its target slot, and the
	// re-aliasing below would destroy that information.
	var pre [3]struct {
		slot  int
		bound bool
	}
	for k, op := range ops {
		if op.Kind == ir.KindRegister {
			pre[k].slot, pre[k].bound = e.alloc.Bound(op.Name)
		}
	}

	// Base: reuse the index operand's existing slot, else the next free one.
	base := -1
	idx := ops[0]
	if idx.Kind == ir.KindRegister {
		if s, ok := e.alloc.Bound(idx.Name); ok {
			base = s
		}
	}
	if base < 0 {
		base = e.alloc.nextFree()
	}
	e.alloc.Reserve(base, 4)

	// Pin named control registers onto the group slots.  Constant limit or
	// step operands have nothing to pin.
	for k, op := range ops {
		if op.Kind == ir.KindRegister {
			e.alloc.Force(op.Name, base+k)
		}
	}

	// Record the group and converge every known same-stem name — earlier
	// occurrences of this loop variable included — onto the body slot.
	if idx.Kind == ir.KindRegister {
		st := stem(idx.Name)
		e.alloc.SetLoopBase(st, base)
		for _, name := range e.alloc.NamesWithStem(st) {
			e.alloc.Force(name, base+3)
		}
	}

	// Materialize index/limit/step into the group slots.  Nothing is emitted
	// when the source already sits in its target slot.
	var lines []string
	for k, op := range ops {
		target := base + k
		switch op.Kind {
		case ir.KindConstant:
			lines = append(lines, fmt.Sprintf("LOADK R%d K%d", target, op.Index))
		case ir.KindRegister:
			if pre[k].bound && pre[k].slot != target {
				lines = append(lines, fmt.Sprintf("MOVE R%d R%d", target, pre[k].slot))
			}
		case ir.KindUpvalue:
			lines = append(lines, fmt.Sprintf("MOVE R%d U%d", target, op.Index))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownOperand, op.Kind)
		}
	}

	lines = append(lines, fmt.Sprintf("FORPREP R%d %s", base, in.Meta.Target))
	return lines, nil
}

func (e *emitter) lowerForLoop(in *ir.Instr) ([]string, error) {
	if in.Meta.Body == "" {
		return nil, fmt.Errorf("%w: forloop without body label", ErrMissingMetadata)
	}
	if len(in.Srcs) < 1 {
		return nil, fmt.Errorf("%w: forloop needs an index operand", ErrBadArity)
	}
	op := in.Srcs[0]
	// Address the recorded group base, not a fresh resolution: the surface
	// index name resolves to base+3 once its group is established.
	if op.Kind == ir.KindRegister {
		if base, ok := e.alloc.LoopBase(stem(op.Name)); ok {
			return []string{fmt.Sprintf("FORLOOP R%d %s", base, in.Meta.Body)}, nil
		}
	}
	tok, err := e.alloc.Resolve(op)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("FORLOOP %s %s", tok, in.Meta.Body)}, nil
}

// ---------------------------------------------------------------------------
// Constant pool and upvalue sections
// ---------------------------------------------------------------------------

// emitConsts writes one line per pool entry in positional order.  Entries
// are never deduplicated: structurally identical constants keep their own
// lines and indices.
func (e *emitter) emitConsts(b *strings.Builder) {
	for i, v := range e.fn.Consts {
		fmt.Fprintf(b, "K%d = %s\n", i, formatConst(v))
	}
}

// formatConst renders a constant-pool value: numbers in natural textual
// form, composites as structural literals, everything else as a quoted
// string with backslashes and quotes escaped.
func formatConst(v any) string {
	switch x := v.(type) {
	case nil:
		return `"nil"`
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case []any:
		elems := make([]string, len(x))
		for i, el := range x {
			elems[i] = formatConst(el)
		}
		return "{" + strings.Join(elems, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s = %s", k, formatConst(x[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}

// emitUpvals writes one line per declared upvalue; a function with none gets
// the single synthetic default entry.
func (e *emitter) emitUpvals(b *strings.Builder) {
	if len(e.fn.Upvals) == 0 {
		b.WriteString("U0 = L0 R0\n")
		return
	}
	for i, uv := range e.fn.Upvals {
		name := uv.Name
		if name == "" {
			name = fmt.Sprintf("U%d", i)
		}
		fmt.Fprintf(b, "%s = L%d R%d\n", name, uv.InStack, uv.Index)
	}
}
