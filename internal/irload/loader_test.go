package irload

import (
	"path/filepath"
	"strings"
	"testing"

	"luva/internal/codegen"
	"luva/internal/ir"
)

// helper: parse a YAML document, failing the test on error.
func mustParse(t *testing.T, src string) *ir.Function {
	t.Helper()
	fn, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return fn
}

func TestParseMinimalDocument(t *testing.T) {
	fn := mustParse(t, `
name: main
header: {numparams: 1, is_vararg: 0, maxstack: 3}
constants: [hello]
blocks:
  - label: entry
    instrs:
      - {op: loadk, dst: a, srcs: [{const: 0}]}
      - {op: return, srcs: [a]}
`)
	if fn.Name != "main" {
		t.Fatalf("expected function name 'main', got %q", fn.Name)
	}
	if fn.Header["maxstack"] != 3 {
		t.Fatalf("expected maxstack=3, got %d", fn.Header["maxstack"])
	}
	if len(fn.Blocks) != 1 || fn.Blocks[0].Label != "entry" {
		t.Fatalf("expected one block 'entry', got %+v", fn.Blocks)
	}
	if len(fn.Blocks[0].Instrs) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(fn.Blocks[0].Instrs))
	}
	if len(fn.Consts) != 1 || fn.Consts[0] != "hello" {
		t.Fatalf("expected constant pool [hello], got %v", fn.Consts)
	}
}

func TestBareNamesCoerceToRegisters(t *testing.T) {
	fn := mustParse(t, `
blocks:
  - label: entry
    instrs:
      - {op: settable, dst: t, srcs: [key, value]}
`)
	in := fn.Blocks[0].Instrs[0]
	if in.Dst.Kind != ir.KindRegister || in.Dst.Name != "t" {
		t.Fatalf("expected bare dst coerced to register 't', got %+v", in.Dst)
	}
	for i, want := range []string{"key", "value"} {
		if in.Srcs[i].Kind != ir.KindRegister || in.Srcs[i].Name != want {
			t.Fatalf("src %d: expected register %q, got %+v", i, want, in.Srcs[i])
		}
	}
}

func TestOperandForms(t *testing.T) {
	fn := mustParse(t, `
blocks:
  - label: entry
    instrs:
      - {op: settabup, srcs: [{up: 0}, {const: 1}, {reg: v}]}
`)
	srcs := fn.Blocks[0].Instrs[0].Srcs
	if srcs[0].Kind != ir.KindUpvalue || srcs[0].Index != 0 {
		t.Fatalf("expected upvalue 0, got %+v", srcs[0])
	}
	if srcs[1].Kind != ir.KindConstant || srcs[1].Index != 1 {
		t.Fatalf("expected constant 1, got %+v", srcs[1])
	}
	if srcs[2].Kind != ir.KindRegister || srcs[2].Name != "v" {
		t.Fatalf("expected register v, got %+v", srcs[2])
	}
}

func TestParseMetadataFields(t *testing.T) {
	fn := mustParse(t, `
blocks:
  - label: entry
    instrs:
      - {op: forprep, srcs: [i, {const: 0}, {const: 1}], target: body}
      - {op: call, srcs: [f], returns: 2}
      - {op: newtable, dst: t, asize: 4, hsize: 2}
      - {op: weird, verbatim: "HALT"}
`)
	instrs := fn.Blocks[0].Instrs
	if instrs[0].Meta.Target != "body" {
		t.Fatalf("expected forprep target 'body', got %q", instrs[0].Meta.Target)
	}
	if instrs[1].Meta.Returns == nil || *instrs[1].Meta.Returns != 2 {
		t.Fatalf("expected returns=2, got %v", instrs[1].Meta.Returns)
	}
	if instrs[2].Meta.ArraySize != 4 || instrs[2].Meta.HashSize != 2 {
		t.Fatalf("expected size hints 4/2, got %+v", instrs[2].Meta)
	}
	if instrs[3].Meta.Verbatim != "HALT" {
		t.Fatalf("expected verbatim payload, got %q", instrs[3].Meta.Verbatim)
	}
}

func TestParseUpvalues(t *testing.T) {
	fn := mustParse(t, `
upvalues:
  - {name: _ENV, instack: 1, index: 0}
  - {instack: 0, index: 1}
blocks:
  - label: entry
`)
	if len(fn.Upvals) != 2 {
		t.Fatalf("expected 2 upvalues, got %d", len(fn.Upvals))
	}
	if fn.Upvals[0].Name != "_ENV" || fn.Upvals[0].InStack != 1 {
		t.Fatalf("unexpected first upvalue: %+v", fn.Upvals[0])
	}
	if fn.Upvals[1].Name != "" || fn.Upvals[1].Index != 1 {
		t.Fatalf("unexpected second upvalue: %+v", fn.Upvals[1])
	}
}

func TestParseRejectsMissingOpcode(t *testing.T) {
	_, err := Parse([]byte(`
blocks:
  - label: entry
    instrs:
      - {dst: a, srcs: [{const: 0}]}
`))
	if err == nil || !strings.Contains(err.Error(), "no opcode") {
		t.Fatalf("expected missing-opcode error, got %v", err)
	}
}

func TestParseRejectsUnlabeledBlock(t *testing.T) {
	_, err := Parse([]byte(`
blocks:
  - instrs:
      - {op: return}
`))
	if err == nil || !strings.Contains(err.Error(), "no label") {
		t.Fatalf("expected missing-label error, got %v", err)
	}
}

func TestParseRejectsBadOperandMapping(t *testing.T) {
	_, err := Parse([]byte(`
blocks:
  - label: entry
    instrs:
      - {op: loadk, dst: a, srcs: [{bogus: 1}]}
`))
	if err == nil {
		t.Fatal("expected an operand decoding error")
	}
}

// ---------------------------------------------------------------------------
// Fixture round trips through the full pipeline
// ---------------------------------------------------------------------------

func TestFixtureHello(t *testing.T) {
	fn, err := LoadFile(filepath.Join("testdata", "hello.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	text, err := codegen.Assemble(fn)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, want := range []string{
		"numparams=1, is_vararg=0, maxstack=3",
		"LOADK R0 K0",
		"MOVE R1 R0",
		"RETURN R1 2",
		`K0 = "hello"`,
		"U0 = L0 R0",
	} {
		if !containsTrimmed(text, want) {
			t.Fatalf("expected line %q in output:\n%s", want, text)
		}
	}
}

func TestFixtureCountLoop(t *testing.T) {
	fn, err := LoadFile(filepath.Join("testdata", "count.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	text, err := codegen.Assemble(fn)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, want := range []string{
		"LOADK R2 K2",
		"FORPREP R0 body",
		"ADD R4 R3 K3",
		"FORLOOP R0 body",
	} {
		if !containsTrimmed(text, want) {
			t.Fatalf("expected line %q in output:\n%s", want, text)
		}
	}
}

func containsTrimmed(text, want string) bool {
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == want {
			return true
		}
	}
	return false
}
