package irload

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"luva/internal/ir"
)

// ---------------------------------------------------------------------------
// Loader — decodes a YAML IR document into the in-memory Function form
//
// This is the decoding collaborator in front of the backend: it only builds
// the data model.  Structural validation beyond "decodable and every
// instruction has an opcode tag" is the lowering pass's job.
// ---------------------------------------------------------------------------

// Parse decodes one function document.
func Parse(data []byte) (*ir.Function, error) {
	var doc functionDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("cannot decode IR document: %w", err)
	}
	return convert(&doc)
}

// LoadFile reads and decodes the function document at path.
func LoadFile(path string) (*ir.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fn, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fn, nil
}

func convert(doc *functionDoc) (*ir.Function, error) {
	fn := &ir.Function{
		Name:   doc.Name,
		Header: doc.Header,
		Consts: doc.Constants,
	}
	if fn.Name == "" {
		fn.Name = "main"
	}
	if fn.Header == nil {
		fn.Header = map[string]int{}
	}

	for _, uv := range doc.Upvalues {
		fn.Upvals = append(fn.Upvals, ir.Upvalue{
			Name:    uv.Name,
			InStack: uv.InStack,
			Index:   uv.Index,
		})
	}

	for _, blk := range doc.Blocks {
		if blk.Label == "" {
			return nil, fmt.Errorf("block %d has no label", len(fn.Blocks))
		}
		b := ir.Block{Label: blk.Label}
		for i, in := range blk.Instrs {
			if in.Op == "" {
				return nil, fmt.Errorf("instruction %d in block %q has no opcode", i, blk.Label)
			}
			instr := ir.Instr{
				Op: in.Op,
				Meta: ir.Meta{
					Target:    in.Target,
					Body:      in.Body,
					Returns:   in.Returns,
					ArraySize: in.ArraySize,
					HashSize:  in.HashSize,
					Key:       in.Key,
					Verbatim:  in.Verbatim,
				},
			}
			if in.Dst != nil {
				instr.Dst = in.Dst.op
			}
			for _, src := range in.Srcs {
				instr.Srcs = append(instr.Srcs, src.op)
			}
			b.Instrs = append(b.Instrs, instr)
		}
		fn.Blocks = append(fn.Blocks, b)
	}

	return fn, nil
}
