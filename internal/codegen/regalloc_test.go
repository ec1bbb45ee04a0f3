package codegen

import (
	"errors"
	"testing"

	"luva/internal/ir"
)

// helper: resolve an operand, failing the test on error.
func mustResolve(t *testing.T, a *Allocator, op ir.Operand) string {
	t.Helper()
	tok, err := a.Resolve(op)
	if err != nil {
		t.Fatalf("resolve %v: %v", op, err)
	}
	return tok
}

func TestResolveStability(t *testing.T) {
	a := NewAllocator()
	first := mustResolve(t, a, ir.Reg("x"))
	second := mustResolve(t, a, ir.Reg("x"))
	if first != second {
		t.Fatalf("same name resolved differently: %s then %s", first, second)
	}
	if first != "R0" {
		t.Fatalf("expected first allocation R0, got %s", first)
	}
}

func TestFirstFitFillsReservationGaps(t *testing.T) {
	a := NewAllocator()
	a.Reserve(1, 2) // occupy slots 1 and 2

	got := []string{
		mustResolve(t, a, ir.Reg("a")),
		mustResolve(t, a, ir.Reg("b")),
		mustResolve(t, a, ir.Reg("c")),
	}
	want := []string{"R0", "R3", "R4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocation %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDistinctNamesGetDistinctSlots(t *testing.T) {
	a := NewAllocator()
	names := []string{"p", "q", "r", "s"}
	seen := map[string]string{}
	for _, n := range names {
		tok := mustResolve(t, a, ir.Reg(n))
		if prev, dup := seen[tok]; dup {
			t.Fatalf("slot %s assigned to both %q and %q", tok, prev, n)
		}
		seen[tok] = n
	}
}

func TestForceIdempotent(t *testing.T) {
	a := NewAllocator()
	a.Force("x", 5)
	a.Force("x", 5)
	if tok := mustResolve(t, a, ir.Reg("x")); tok != "R5" {
		t.Fatalf("expected R5 after force, got %s", tok)
	}
}

func TestForceRebindLeavesOldSlotOccupied(t *testing.T) {
	a := NewAllocator()
	if tok := mustResolve(t, a, ir.Reg("x")); tok != "R0" {
		t.Fatalf("expected x at R0, got %s", tok)
	}
	a.Force("x", 2)
	if tok := mustResolve(t, a, ir.Reg("x")); tok != "R2" {
		t.Fatalf("expected x at R2 after force, got %s", tok)
	}
	// Slot 0 was vacated by the force but must not be handed out again.
	if tok := mustResolve(t, a, ir.Reg("y")); tok != "R1" {
		t.Fatalf("expected y at R1, got %s", tok)
	}
	if tok := mustResolve(t, a, ir.Reg("z")); tok != "R3" {
		t.Fatalf("expected z at R3, got %s", tok)
	}
}

func TestPoolPassthrough(t *testing.T) {
	a := NewAllocator()
	// Allocation state must not affect pool tokens.
	mustResolve(t, a, ir.Reg("a"))
	mustResolve(t, a, ir.Reg("b"))
	if tok := mustResolve(t, a, ir.Const(5)); tok != "K5" {
		t.Fatalf("expected K5, got %s", tok)
	}
	if tok := mustResolve(t, a, ir.Upval(2)); tok != "U2" {
		t.Fatalf("expected U2, got %s", tok)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	a := NewAllocator()
	_, err := a.Resolve(ir.Operand{Kind: ir.Kind(99)})
	if !errors.Is(err, ErrUnknownOperand) {
		t.Fatalf("expected ErrUnknownOperand, got %v", err)
	}
}

func TestClaimOccupiesSlot(t *testing.T) {
	a := NewAllocator()
	if s := a.Claim(); s != 0 {
		t.Fatalf("expected claim of slot 0, got %d", s)
	}
	if tok := mustResolve(t, a, ir.Reg("a")); tok != "R1" {
		t.Fatalf("expected a at R1 after claim, got %s", tok)
	}
}

func TestStemResolvesToLoopBodySlot(t *testing.T) {
	a := NewAllocator()
	a.Reserve(4, 4)
	a.SetLoopBase("i", 4)
	if tok := mustResolve(t, a, ir.Reg("i_2")); tok != "R7" {
		t.Fatalf("expected stem-aliased name at R7, got %s", tok)
	}
	// A name with a different stem must not land inside the reserved range.
	if tok := mustResolve(t, a, ir.Reg("other")); tok != "R0" {
		t.Fatalf("expected unrelated name at R0, got %s", tok)
	}
}

func TestStem(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"i_1", "i"},
		{"i_23", "i"},
		{"loop_var_2", "loop_var"},
		{"limit", "limit"},
		{"i_", "i_"},
		{"i_x1", "i_x1"},
		{"_1", "_1"},
		{"i", "i"},
	}
	for _, c := range cases {
		if got := stem(c.name); got != c.want {
			t.Fatalf("stem(%q): expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestNamesWithStemSorted(t *testing.T) {
	a := NewAllocator()
	mustResolve(t, a, ir.Reg("i_2"))
	mustResolve(t, a, ir.Reg("i_1"))
	mustResolve(t, a, ir.Reg("j"))
	names := a.NamesWithStem("i")
	if len(names) != 2 || names[0] != "i_1" || names[1] != "i_2" {
		t.Fatalf("expected [i_1 i_2], got %v", names)
	}
}
