package abi

import (
	"strconv"

	"github.com/domforge/domhost/schema"
)

// Check validates a host value against a type without touching guest
// memory, so a malformed argument is rejected before anything is
// written into the callee. It applies the same rules as Lower.
func Check(slot string, path []string, t schema.ValueType, v any) error {
	e := &enc{slot: slot}
	return e.check(path, t, v)
}

func (e *enc) check(path []string, t schema.ValueType, v any) error {
	switch t.Kind {
	case schema.KindString:
		if _, ok := v.(string); !ok {
			return e.mismatch(path, t, v)
		}
		return nil
	case schema.KindList:
		elem := *t.Elem
		switch xs := v.(type) {
		case []any:
			for i, item := range xs {
				if err := e.check(append(path, strconv.Itoa(i)), elem, item); err != nil {
					return err
				}
			}
			return nil
		case []byte:
			if elem.Kind != schema.KindU8 {
				return e.mismatch(path, t, v)
			}
			return nil
		default:
			return e.mismatch(path, t, v)
		}
	case schema.KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return e.mismatch(path, t, v)
		}
		if len(m) != len(t.Fields) {
			return e.mismatch(path, t, v)
		}
		for _, f := range t.Fields {
			fv, present := m[f.Name]
			if !present {
				return e.mismatch(append(path, f.Name), f.Type, nil)
			}
			if err := e.check(append(path, f.Name), f.Type, fv); err != nil {
				return err
			}
		}
		return nil
	case schema.KindVariant, schema.KindOption, schema.KindResult:
		idx, payload, err := e.pickCase(path, t, v)
		if err != nil {
			return err
		}
		cases := casesOf(t)
		if cases[idx].Type == nil {
			return nil
		}
		return e.check(append(path, cases[idx].Name), *cases[idx].Type, payload)
	default:
		_, err := e.scalar(path, t, v)
		return err
	}
}
