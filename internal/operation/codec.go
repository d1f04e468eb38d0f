package operation

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// List is an ordered operation sequence that round-trips through YAML. Each
// element is a mapping whose "op" key holds the operation kind:
//
//	- op: rename_table
//	  name: T1
//	  new_name: T2
type List []Operation

var decoders = map[string]func(*yaml.Node) (Operation, error){
	"create_table":           decodeAs[CreateTable],
	"drop_table":             decodeAs[DropTable],
	"rename_table":           decodeAs[RenameTable],
	"add_column":             decodeAs[AddColumn],
	"drop_column":            decodeAs[DropColumn],
	"alter_column":           decodeAs[AlterColumn],
	"rename_column":          decodeAs[RenameColumn],
	"add_primary_key":        decodeAs[AddPrimaryKey],
	"drop_primary_key":       decodeAs[DropPrimaryKey],
	"add_unique_constraint":  decodeAs[AddUniqueConstraint],
	"drop_unique_constraint": decodeAs[DropUniqueConstraint],
	"add_foreign_key":        decodeAs[AddForeignKey],
	"drop_foreign_key":       decodeAs[DropForeignKey],
	"create_index":           decodeAs[CreateIndex],
	"drop_index":             decodeAs[DropIndex],
	"rename_index":           decodeAs[RenameIndex],
	"sql":                    decodeAs[SQL],
}

func decodeAs[T Operation](n *yaml.Node) (Operation, error) {
	var op T
	if err := n.Decode(&op); err != nil {
		return nil, err
	}
	return op, nil
}

func (l List) MarshalYAML() (interface{}, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for i, op := range l {
		kind, err := Kind(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		var body yaml.Node
		if err := body.Encode(op); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, kind, err)
		}
		head := []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "op"},
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: kind},
		}
		body.Content = append(head, body.Content...)
		seq.Content = append(seq.Content, &body)
	}
	return seq, nil
}

func (l *List) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: operations must be a sequence", value.Line)
	}
	out := make(List, 0, len(value.Content))
	for _, item := range value.Content {
		var head struct {
			Op string `yaml:"op"`
		}
		if err := item.Decode(&head); err != nil {
			return err
		}
		decode, ok := decoders[head.Op]
		if !ok {
			return fmt.Errorf("line %d: %w %q", item.Line, ErrUnknownOperation, head.Op)
		}
		op, err := decode(item)
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", item.Line, head.Op, err)
		}
		out = append(out, op)
	}
	*l = out
	return nil
}
