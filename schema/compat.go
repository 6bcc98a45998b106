package schema

// Compatible reports whether a provided signature satisfies a required
// one. The check is exact: structurally identical parameter order and
// types and an identical result type. No implicit widening or
// narrowing is accepted, so a mismatch surfaces at link time instead
// of as a silent marshalling error at call time.
func Compatible(required, provided FunctionSignature) bool {
	if len(required.Params) != len(provided.Params) {
		return false
	}
	for i := range required.Params {
		// Parameter names are documentation; only position and type
		// participate in compatibility.
		if !required.Params[i].Type.Equal(provided.Params[i].Type) {
			return false
		}
	}
	return optEqual(required.Result, provided.Result)
}
