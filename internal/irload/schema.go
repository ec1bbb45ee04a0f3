package irload

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"luva/internal/ir"
)

// ---------------------------------------------------------------------------
// YAML schema for IR documents
//
// One document describes one normalized function.  Example:
//
//   name: main
//   header: {numparams: 1, is_vararg: 0, maxstack: 3}
//   constants: [hello]
//   blocks:
//     - label: entry
//       instrs:
//         - {op: loadk, dst: a, srcs: [{const: 0}]}
//         - {op: move, dst: b, srcs: [a]}
//         - {op: return, srcs: [b]}
//
// Operands are either a mapping with exactly one of reg/const/up, or a bare
// scalar, which is coerced to a register operand of that name.
// ---------------------------------------------------------------------------

// functionDoc is a complete function document.
type functionDoc struct {
	Name      string         `yaml:"name"`
	Header    map[string]int `yaml:"header,omitempty"`
	Constants []any          `yaml:"constants,omitempty"`
	Upvalues  []upvalueDoc   `yaml:"upvalues,omitempty"`
	Blocks    []blockDoc     `yaml:"blocks"`
}

type upvalueDoc struct {
	Name    string `yaml:"name,omitempty"`
	InStack int    `yaml:"instack"`
	Index   int    `yaml:"index"`
}

type blockDoc struct {
	Label  string     `yaml:"label"`
	Instrs []instrDoc `yaml:"instrs,omitempty"`
}

// instrDoc carries the opcode tag, operands and the flattened metadata
// fields an opcode may need.
type instrDoc struct {
	Op   string       `yaml:"op"`
	Dst  *operandDoc  `yaml:"dst,omitempty"`
	Srcs []operandDoc `yaml:"srcs,omitempty"`

	Target    string `yaml:"target,omitempty"`   // forprep branch target
	Body      string `yaml:"body,omitempty"`     // forloop body label
	Returns   *int   `yaml:"returns,omitempty"`  // call return count
	ArraySize int    `yaml:"asize,omitempty"`    // newtable array hint
	HashSize  int    `yaml:"hsize,omitempty"`    // newtable hash hint
	Key       int    `yaml:"key,omitempty"`      // gettabup constant key
	Verbatim  string `yaml:"verbatim,omitempty"` // passthrough text
}

// operandDoc wraps ir.Operand with the YAML decoding rules.
type operandDoc struct {
	op ir.Operand
}

// UnmarshalYAML accepts either a tagged mapping or a bare name.  Bare names
// coerce to register operands.
func (o *operandDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		o.op = ir.Reg(name)
		return nil
	case yaml.MappingNode:
		var m struct {
			Reg   *string `yaml:"reg"`
			Const *int    `yaml:"const"`
			Up    *int    `yaml:"up"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.Reg != nil:
			o.op = ir.Reg(*m.Reg)
		case m.Const != nil:
			o.op = ir.Const(*m.Const)
		case m.Up != nil:
			o.op = ir.Upval(*m.Up)
		default:
			return fmt.Errorf("line %d: operand needs one of reg, const or up", node.Line)
		}
		return nil
	default:
		return fmt.Errorf("line %d: cannot decode operand", node.Line)
	}
}
