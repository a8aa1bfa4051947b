package avrodec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// node is the part of an Avro schema needed to strip union wrappers from
// goavro's native values. Logical types and defaults are irrelevant here.
type node struct {
	kind     string // record, array, map, union, enum, fixed or a primitive name
	name     string // full name for named types
	fields   map[string]*node
	items    *node
	values   *node
	branches []*node
}

// branchName is the key goavro uses for this type inside a union wrapper.
func (n *node) branchName() string {
	if n.name != "" {
		return n.name
	}
	return n.kind
}

type schemaParser struct {
	named map[string]*node
}

func parseSchema(schema string) (*node, error) {
	var raw any
	if err := json.Unmarshal([]byte(schema), &raw); err != nil {
		return nil, fmt.Errorf("schema json: %w", err)
	}
	p := &schemaParser{named: map[string]*node{}}
	return p.parse(raw, "")
}

func (p *schemaParser) parse(raw any, namespace string) (*node, error) {
	switch s := raw.(type) {
	case string:
		return p.reference(s, namespace), nil

	case []any:
		u := &node{kind: "union"}
		for _, b := range s {
			bn, err := p.parse(b, namespace)
			if err != nil {
				return nil, err
			}
			u.branches = append(u.branches, bn)
		}
		return u, nil

	case map[string]any:
		typ, _ := s["type"].(string)
		switch typ {
		case "record", "error":
			name, ns := fullName(s, namespace)
			n := &node{kind: "record", name: name, fields: map[string]*node{}}
			// registered before the fields so recursive references resolve
			p.named[name] = n
			fields, _ := s["fields"].([]any)
			for _, f := range fields {
				fm, ok := f.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("record %s: malformed field", name)
				}
				fname, _ := fm["name"].(string)
				fn, err := p.parse(fm["type"], ns)
				if err != nil {
					return nil, fmt.Errorf("record %s field %s: %w", name, fname, err)
				}
				n.fields[fname] = fn
			}
			return n, nil

		case "enum", "fixed":
			name, _ := fullName(s, namespace)
			n := &node{kind: typ, name: name}
			p.named[name] = n
			return n, nil

		case "array":
			items, err := p.parse(s["items"], namespace)
			if err != nil {
				return nil, err
			}
			return &node{kind: "array", items: items}, nil

		case "map":
			values, err := p.parse(s["values"], namespace)
			if err != nil {
				return nil, err
			}
			return &node{kind: "map", values: values}, nil

		case "":
			// {"type": {...}} nests a full schema
			return p.parse(s["type"], namespace)

		default:
			n := &node{kind: typ}
			if lt, ok := s["logicalType"].(string); ok {
				n.kind = typ + "." + lt
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("unsupported schema element %T", raw)
}

func (p *schemaParser) reference(name, namespace string) *node {
	if n, ok := p.named[name]; ok {
		return n
	}
	if namespace != "" && !strings.Contains(name, ".") {
		if n, ok := p.named[namespace+"."+name]; ok {
			return n
		}
	}
	return &node{kind: name}
}

// fullName returns the full name of a named type and the namespace its
// children inherit.
func fullName(s map[string]any, enclosing string) (string, string) {
	name, _ := s["name"].(string)
	if strings.Contains(name, ".") {
		return name, name[:strings.LastIndex(name, ".")]
	}
	ns := enclosing
	if v, ok := s["namespace"].(string); ok {
		ns = v
	}
	if ns == "" {
		return name, ""
	}
	return ns + "." + name, ns
}

// unwrap replaces goavro union wrappers ({"string": "x"}) with the wrapped
// value, recursing through records, arrays and maps. A nil schema leaves the
// value as decoded.
func unwrap(n *node, v any) any {
	if n == nil || v == nil {
		return v
	}
	switch n.kind {
	case "union":
		m, ok := v.(map[string]any)
		if !ok || len(m) != 1 {
			return v
		}
		for key, inner := range m {
			return unwrap(n.branch(key), inner)
		}

	case "record":
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for k, fv := range m {
			m[k] = unwrap(n.fields[k], fv)
		}
		return m

	case "array":
		xs, ok := v.([]any)
		if !ok {
			return v
		}
		for i, x := range xs {
			xs[i] = unwrap(n.items, x)
		}
		return xs

	case "map":
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		for k, mv := range m {
			m[k] = unwrap(n.values, mv)
		}
		return m
	}
	return v
}

func (n *node) branch(key string) *node {
	for _, b := range n.branches {
		if b.branchName() == key {
			return b
		}
	}
	// goavro keys named types by full name; tolerate a short name too
	for _, b := range n.branches {
		if b.name != "" && strings.HasSuffix(b.name, "."+key) {
			return b
		}
	}
	return nil
}
