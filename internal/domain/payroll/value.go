package payroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueKind string

const (
	ValueScalar ValueKind = "scalar"
	ValueList   ValueKind = "list"
)

// ConditionValue is either a single scalar or a list of scalars. Scalars are
// kept in their textual form; numeric fields parse them as decimals.
type ConditionValue struct {
	Kind   ValueKind
	Scalar string
	List   []string
}

func ScalarValue(value string) ConditionValue {
	return ConditionValue{Kind: ValueScalar, Scalar: strings.TrimSpace(value)}
}

func ListValue(values ...string) ConditionValue {
	list := make([]string, 0, len(values))
	for _, v := range values {
		list = append(list, strings.TrimSpace(v))
	}
	return ConditionValue{Kind: ValueList, List: list}
}

func (v ConditionValue) IsZero() bool {
	return v.Kind == ""
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueScalar:
		return json.Marshal(v.Scalar)
	case ValueList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return []byte("null"), nil
	}
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ConditionValue{}
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		list := make([]string, 0, len(raw))
		for _, item := range raw {
			scalar, err := jsonScalar(item)
			if err != nil {
				return err
			}
			list = append(list, scalar)
		}
		*v = ListValue(list...)
		return nil
	}
	scalar, err := jsonScalar(data)
	if err != nil {
		return err
	}
	*v = ScalarValue(scalar)
	return nil
}

func jsonScalar(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return fmt.Sprint(b), nil
	}
	return "", fmt.Errorf("condition value %s is not a scalar", string(data))
}

func (v *ConditionValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = ScalarValue(node.Value)
		return nil
	case yaml.SequenceNode:
		list := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: condition list items must be scalars", item.Line)
			}
			list = append(list, item.Value)
		}
		*v = ListValue(list...)
		return nil
	default:
		return fmt.Errorf("line %d: condition value must be a scalar or a list", node.Line)
	}
}
