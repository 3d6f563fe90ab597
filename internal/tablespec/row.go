package tablespec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Column is one column/value pair of a static row.
type Column struct {
	Name  string
	Value any
}

// Row is an ordered list of column/value pairs. Order follows the
// specification file and fixes the parameter binding order.
type Row []Column

// Names returns the column names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Values returns the column values in order.
func (r Row) Values() []any {
	values := make([]any, len(r))
	for i, c := range r {
		values[i] = c.Value
	}
	return values
}

// String renders the row as a JSON object in column order.
func (r Row) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(c.Name)
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(c.Value)
		if err != nil {
			v, _ = json.Marshal(fmt.Sprint(c.Value))
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String()
}

// UnmarshalYAML decodes a mapping node into a Row, keeping key order.
// Only scalar values are allowed.
func (r *Row) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: static row must be a mapping", node.Line)
	}
	row := make(Row, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: column %q: value must be a scalar", val.Line, key.Value)
		}
		var v any
		if err := val.Decode(&v); err != nil {
			return fmt.Errorf("line %d: column %q: %w", val.Line, key.Value, err)
		}
		row = append(row, Column{Name: key.Value, Value: v})
	}
	*r = row
	return nil
}
