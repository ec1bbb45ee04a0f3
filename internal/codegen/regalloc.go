package codegen

import (
	"fmt"
	"sort"
	"strings"

	"luva/internal/ir"
)

// ---------------------------------------------------------------------------
// Register allocator
//
// Maps virtual register names to small non-negative machine-register slots
// for the duration of one function pass.  Constant and upvalue operands pass
// straight through as pool tokens and never touch allocation state.
//
// Fresh allocation is first-fit ascending: the smallest slot not currently
// occupied, where occupancy covers both real bindings and range
// reservations.  A name keeps its slot for the whole pass; the only way a
// binding changes is an explicit Force, used by the loop-group tracker to
// re-alias loop variables.
//
// Iteration constructs require their control values to occupy a contiguous
// 4-slot range {index, limit, step, body-visible value}.  Because the same
// logical loop variable may reappear under different surface names across
// unrolled occurrences (i_1, i_2, ...), the tracker keys loop groups by the
// name stem — the name with its trailing occurrence suffix stripped — and
// resolves every same-stem name to the group's body slot, base+3.
// ---------------------------------------------------------------------------

// Allocator holds the name→slot table and the loop-group table for one
// function pass.  Create a fresh one per pass; it is not safe for reuse or
// concurrent access.
type Allocator struct {
	slots map[string]int // register name → assigned slot
	used  map[int]bool   // slot → occupied (bindings and reservations)
	loops map[string]int // loop stem → group base slot
}

// NewAllocator returns an empty allocator for a single function pass.
func NewAllocator() *Allocator {
	return &Allocator{
		slots: make(map[string]int),
		used:  make(map[int]bool),
		loops: make(map[string]int),
	}
}

// Resolve turns an operand into its assembly token.  Constants and upvalues
// resolve statelessly to K/U pool tokens.  Registers resolve to R tokens,
// binding the name on first sight: to the loop body slot if the name's stem
// has an established group, otherwise first-fit.
func (a *Allocator) Resolve(op ir.Operand) (string, error) {
	switch op.Kind {
	case ir.KindConstant:
		return fmt.Sprintf("K%d", op.Index), nil
	case ir.KindUpvalue:
		return fmt.Sprintf("U%d", op.Index), nil
	case ir.KindRegister:
		return fmt.Sprintf("R%d", a.slot(op.Name)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownOperand, op.Kind)
	}
}

// slot returns the machine slot for a register name, binding it if needed.
func (a *Allocator) slot(name string) int {
	if s, ok := a.slots[name]; ok {
		return s
	}
	if base, ok := a.loops[stem(name)]; ok {
		a.bind(name, base+3)
		return base + 3
	}
	s := a.nextFree()
	a.bind(name, s)
	return s
}

func (a *Allocator) bind(name string, slot int) {
	a.slots[name] = slot
	a.used[slot] = true
}

// nextFree scans ascending for the smallest unoccupied slot.
func (a *Allocator) nextFree() int {
	for i := 0; ; i++ {
		if !a.used[i] {
			return i
		}
	}
}

// Bound reports the slot directly assigned to name, if any.  It does not
// consult the loop-group table.
func (a *Allocator) Bound(name string) (int, bool) {
	s, ok := a.slots[name]
	return s, ok
}

// Claim occupies and returns the next free slot without binding a name to
// it.  Used to materialize scratch values (e.g. constants in return lists).
func (a *Allocator) Claim() int {
	s := a.nextFree()
	a.used[s] = true
	return s
}

// Reserve marks every slot in [start, start+n) as occupied so that first-fit
// allocation skips the range.  Slots already claimed by a name are left as
// they are.
func (a *Allocator) Reserve(start, n int) {
	for i := start; i < start+n; i++ {
		a.used[i] = true
	}
}

// Force unconditionally (re)binds name to slot, replacing any prior binding.
// Idempotent when the name already holds the slot.  A slot vacated by a
// re-forced name stays occupied: slots are never handed to a different name
// within one pass.
func (a *Allocator) Force(name string, slot int) {
	if s, ok := a.slots[name]; ok && s == slot {
		return
	}
	a.bind(name, slot)
}

// ---------------------------------------------------------------------------
// Loop groups
// ---------------------------------------------------------------------------

// LoopBase returns the base slot of the group recorded for a stem.
func (a *Allocator) LoopBase(st string) (int, bool) {
	base, ok := a.loops[st]
	return base, ok
}

// SetLoopBase records (or replaces) the group base for a stem.
func (a *Allocator) SetLoopBase(st string, base int) {
	a.loops[st] = base
}

// NamesWithStem returns every bound register name whose stem is st, sorted
// so callers behave identically regardless of map iteration order.
func (a *Allocator) NamesWithStem(st string) []string {
	var names []string
	for name := range a.slots {
		if stem(name) == st {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// stem strips a trailing "_<digits>" iteration-occurrence suffix, recovering
// the identity of a loop variable across repeated surface names:
// stem("i_2") == "i", stem("limit") == "limit".
func stem(name string) string {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 || i == len(name)-1 {
		return name
	}
	for _, r := range name[i+1:] {
		if r < '0' || r > '9' {
			return name
		}
	}
	return name[:i]
}
