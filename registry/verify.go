package registry

import (
	"fmt"

	"github.com/domforge/domhost/abi"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/schema"
	"github.com/domforge/domhost/wasm"
)

// Core module exports with a meaning fixed by the calling convention
// rather than by the world.
const (
	memoryExport = "memory"
	allocExport  = "alloc"
)

var allocType = wasm.FuncType{
	Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
	Results: []wasm.ValType{wasm.ValI32},
}

// verifyModule checks that the core module's export and import tables
// structurally match the declared world under the canonical lowering.
func verifyModule(id string, world *schema.World, module *wasm.Module) error {
	seen := make(map[string]bool)
	for _, exp := range module.Exports {
		if exp.Kind != wasm.KindFunc {
			continue
		}
		if seen[exp.Name] {
			return errors.DuplicateExport(id, fmt.Sprintf("export %q appears twice in the export table", exp.Name))
		}
		seen[exp.Name] = true
	}

	// Every world export must be present with its lowered signature.
	for _, fn := range world.Exports {
		got, ok := module.ExportedFuncType(fn.Name)
		if !ok {
			return errors.DuplicateExport(id, fmt.Sprintf("world export %q missing from the binary", fn.Name))
		}
		want := abi.FlatSignature(fn.Signature)
		if !got.Equal(want) {
			return errors.DuplicateExport(id, fmt.Sprintf(
				"export %q has core signature %s, world requires %s", fn.Name, coreSig(got), coreSig(want)))
		}
	}

	// And vice versa: no undeclared function exports besides alloc.
	for _, exp := range module.Exports {
		if exp.Kind != wasm.KindFunc || exp.Name == allocExport {
			continue
		}
		if _, ok := world.Export(exp.Name); !ok {
			return errors.DuplicateExport(id, fmt.Sprintf("binary exports %q, which the world does not declare", exp.Name))
		}
	}

	// Function imports come from the "imports" core module and must
	// name declared import slots with lowered signatures. A guest may
	// import fewer slots than the world declares.
	for _, imp := range module.Imports {
		if imp.Kind != wasm.KindFunc {
			continue
		}
		if imp.Module != "imports" {
			return errors.UnreadableBinary(id, errors.InvalidInput(errors.PhaseRegister,
				fmt.Sprintf("function import from core module %q; only \"imports\" is linkable", imp.Module)))
		}
		sig, ok := world.Import(imp.Name)
		if !ok {
			return errors.UnreadableBinary(id, errors.InvalidInput(errors.PhaseRegister,
				fmt.Sprintf("binary imports %q, which the world does not declare", imp.Name)))
		}
		want := abi.FlatSignature(sig)
		var got wasm.FuncType
		if int(imp.TypeIdx) < len(module.Types) {
			got = module.Types[imp.TypeIdx]
		}
		if !got.Equal(want) {
			return errors.UnreadableBinary(id, errors.InvalidInput(errors.PhaseRegister,
				fmt.Sprintf("import %q has core signature %s, world requires %s", imp.Name, coreSig(got), coreSig(want))))
		}
	}

	if worldNeedsMemory(world) {
		if !hasMemoryExport(module) {
			return errors.DuplicateExport(id, "world uses compound values but the binary exports no \"memory\"")
		}
		got, ok := module.ExportedFuncType(allocExport)
		if !ok || !got.Equal(allocType) {
			return errors.DuplicateExport(id, "world uses compound values but the binary exports no alloc(size, align) -> ptr")
		}
	}
	return nil
}

func hasMemoryExport(module *wasm.Module) bool {
	for _, exp := range module.Exports {
		if exp.Kind == wasm.KindMemory && exp.Name == memoryExport {
			return true
		}
	}
	return false
}

// worldNeedsMemory reports whether any signature in the world carries
// a value that crosses the boundary through linear memory.
func worldNeedsMemory(world *schema.World) bool {
	for _, fns := range [][]schema.Function{world.Imports, world.Exports} {
		for _, fn := range fns {
			for _, p := range fn.Signature.Params {
				if isCompound(p.Type) {
					return true
				}
			}
			if fn.Signature.Result != nil && isCompound(*fn.Signature.Result) {
				return true
			}
		}
	}
	return false
}

func isCompound(t schema.ValueType) bool {
	switch t.Kind {
	case schema.KindString, schema.KindList, schema.KindRecord,
		schema.KindVariant, schema.KindOption, schema.KindResult:
		return true
	default:
		return false
	}
}

func coreSig(ft wasm.FuncType) string {
	s := "("
	for i, p := range ft.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	for _, r := range ft.Results {
		s += " -> " + r.String()
	}
	return s
}
