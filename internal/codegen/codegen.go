package codegen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"luva/internal/ir"
)

// ---------------------------------------------------------------------------
// Fatal error classes
//
// The first fatal condition aborts the whole pass; nothing is recovered
// locally and no output artifact is produced on a failing path.
// ---------------------------------------------------------------------------

var (
	// ErrMalformedInput: the supplied structure is not a validly normalized
	// function (e.g. no blocks).
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnknownOperand: an operand whose kind is not register, constant or
	// upvalue.
	ErrUnknownOperand = errors.New("unknown operand kind")
	// ErrUnknownOpcode: an instruction with no lowering rule and no verbatim
	// fallback payload.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrMissingMetadata: forprep without a branch target, or forloop
	// without a body label.
	ErrMissingMetadata = errors.New("missing metadata")
	// ErrBadArity: an instruction missing required operands.
	ErrBadArity = errors.New("missing operand")
)

// ---------------------------------------------------------------------------
// Options controls the behaviour of the lowering pipeline.
// ---------------------------------------------------------------------------

// Options configures the codegen pipeline.
type Options struct {
	// BuildDir is the directory where the assembly artifact is written.
	// Empty means no file is written; the text is only returned.
	BuildDir string

	// OutputName is the base name for the output file (without extension).
	// Defaults to the function name or "output".
	OutputName string

	// Verbose enables extra diagnostic output.
	Verbose bool
}

// DefaultOptions returns sensible defaults (build/ directory).
func DefaultOptions() *Options {
	return &Options{
		BuildDir: "build",
	}
}

// ---------------------------------------------------------------------------
// Result is returned by Generate with the produced artifacts.
// ---------------------------------------------------------------------------

type Result struct {
	Text    string // the complete assembly document
	AsmFile string // path to the assembly file (empty if BuildDir was empty)
	IRDump  string // human-readable IR dump (for debugging)
}

// ---------------------------------------------------------------------------
// Generate — the public entry point for the lowering pipeline
//
// Pipeline: normalized IR function → assembly text (allocate + lower + emit)
// → optional artifact file.  Assembling and linking the output for an actual
// machine are external collaborators and not part of this stage.
// ---------------------------------------------------------------------------

// Generate lowers fn and, when a build directory is configured, writes the
// resulting document to <BuildDir>/<name>.lva.  On error no file is written.
func Generate(fn *ir.Function, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil function", ErrMalformedInput)
	}

	result := &Result{IRDump: fn.DebugDump()}

	if opts.Verbose {
		fmt.Println("[codegen] Lowering function " + fn.Name + "...")
		fmt.Println(result.IRDump)
	}

	text, err := Assemble(fn)
	if err != nil {
		return nil, err
	}
	result.Text = text

	if opts.BuildDir == "" {
		return result, nil
	}

	// --- Determine output name ---
	outputName := opts.OutputName
	if outputName == "" {
		outputName = fn.Name
	}
	if outputName == "" {
		outputName = "output"
	}
	// Sanitize: replace dots/spaces with underscores.
	outputName = strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, outputName)

	if err := os.MkdirAll(opts.BuildDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create build directory %s: %w", opts.BuildDir, err)
	}

	asmFile := filepath.Join(opts.BuildDir, outputName+".lva")
	if err := os.WriteFile(asmFile, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("cannot write assembly file: %w", err)
	}
	result.AsmFile = asmFile

	if opts.Verbose {
		fmt.Printf("[codegen] Assembly written to %s\n", result.AsmFile)
	}

	return result, nil
}
