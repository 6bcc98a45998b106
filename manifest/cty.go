package manifest

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/domforge/domhost/errors"
)

// ctyList converts a manifest expression into a host argument list.
func ctyList(v cty.Value) ([]any, error) {
	if !v.Type().IsTupleType() && !v.Type().IsListType() {
		return nil, errors.InvalidInput(errors.PhaseRegister, "invoke args must be a list")
	}
	out := make([]any, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		converted, err := ctyValue(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

// ctyValue maps an HCL value onto the host value conventions: strings,
// bools, int64 for integral numbers, float64 otherwise, []any for
// lists and tuples, map[string]any for objects.
func ctyValue(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		f := v.AsBigFloat()
		if f.IsInt() {
			i, _ := f.Int64()
			return i, nil
		}
		fl, _ := f.Float64()
		return fl, nil
	case t.IsTupleType() || t.IsListType():
		return ctyList(v)
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			converted, err := ctyValue(elem)
			if err != nil {
				return nil, err
			}
			out[key.AsString()] = converted
		}
		return out, nil
	default:
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Detail("unsupported manifest value type %s", t.FriendlyName()).
			Build()
	}
}
