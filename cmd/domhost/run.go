package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/manifest"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/runtime"
	"github.com/domforge/domhost/schema"
)

func newRunCmd() *cobra.Command {
	var (
		manifestPath string
		entry        string
	)

	cmd := &cobra.Command{
		Use:   "run -m composition.hcl [args...]",
		Short: "Instantiate a composition and call its entry point",
		Long: "run loads the manifest, links and instantiates every component,\n" +
			"then calls the entry point. The entry defaults to the manifest's\n" +
			"invoke block; --entry instance#export overrides it, with arguments\n" +
			"taken from the command line and converted per the export's\n" +
			"declared parameter types.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComposition(cmd.Context(), manifestPath, entry, args)
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "composition manifest file")
	cmd.Flags().StringVarP(&entry, "entry", "e", "", "entry point as instance#export")
	cmd.MarkFlagRequired("manifest")
	return cmd
}

func runComposition(ctx context.Context, manifestPath, entry string, rawArgs []string) error {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}

	rt := runtime.New()
	if err := m.Apply(rt); err != nil {
		return err
	}
	graph, err := rt.Linker().Finalize()
	if err != nil {
		return err
	}

	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	instance, export, args, err := resolveEntry(rt, m, entry, rawArgs)
	if err != nil {
		return err
	}

	out, err := session.Invoke(ctx, instance, export, args)
	if err != nil {
		return err
	}
	if out != nil {
		fmt.Println(formatValue(out))
	}
	return nil
}

// resolveEntry picks the function to call: the --entry flag wins,
// otherwise the manifest's invoke block.
func resolveEntry(rt *runtime.Runtime, m *manifest.Manifest, entry string, rawArgs []string) (registry.ComponentID, string, []any, error) {
	if entry == "" {
		if m.Invoke == nil {
			return "", "", nil, errors.InvalidInput(errors.PhaseCall,
				"no entry point: manifest has no invoke block and --entry was not given")
		}
		args, err := m.InvokeArgs()
		if err != nil {
			return "", "", nil, err
		}
		return registry.ComponentID(m.Invoke.Instance), m.Invoke.Export, args, nil
	}

	instance, export, ok := strings.Cut(entry, "#")
	if !ok {
		return "", "", nil, errors.InvalidInput(errors.PhaseCall,
			"entry must be instance#export")
	}

	id := registry.ComponentID(instance)
	rec, ok := rt.Registry().Record(id)
	if !ok {
		return "", "", nil, errors.NotFound(errors.PhaseCall, "instance", instance)
	}
	sig, ok := rec.World().Export(export)
	if !ok {
		return "", "", nil, errors.UnknownExport(instance, export)
	}
	if len(rawArgs) != len(sig.Params) {
		return "", "", nil, errors.Arity(export, len(sig.Params), len(rawArgs))
	}

	args := make([]any, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := convertArg(raw, sig.Params[i].Type)
		if err != nil {
			return "", "", nil, err
		}
		args[i] = v
	}
	return id, export, args, nil
}

// convertArg parses one command-line token into the host value for a
// declared parameter type. Compound types are not expressible on the
// command line; use a manifest invoke block for those.
func convertArg(value string, t schema.ValueType) (any, error) {
	switch t.Kind {
	case schema.KindString:
		return value, nil
	case schema.KindBool:
		return value == "true" || value == "1", nil
	case schema.KindS8:
		v, err := strconv.ParseInt(value, 10, 8)
		return int8(v), err
	case schema.KindS16:
		v, err := strconv.ParseInt(value, 10, 16)
		return int16(v), err
	case schema.KindS32:
		v, err := strconv.ParseInt(value, 10, 32)
		return int32(v), err
	case schema.KindS64:
		return strconv.ParseInt(value, 10, 64)
	case schema.KindU8:
		v, err := strconv.ParseUint(value, 10, 8)
		return uint8(v), err
	case schema.KindU16:
		v, err := strconv.ParseUint(value, 10, 16)
		return uint16(v), err
	case schema.KindU32:
		v, err := strconv.ParseUint(value, 10, 32)
		return uint32(v), err
	case schema.KindU64:
		return strconv.ParseUint(value, 10, 64)
	case schema.KindF32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case schema.KindF64:
		return strconv.ParseFloat(value, 64)
	case schema.KindChar:
		r := []rune(value)
		if len(r) != 1 {
			return nil, errors.InvalidInput(errors.PhaseCall, "char argument must be a single character")
		}
		return r[0], nil
	default:
		return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Detail("cannot pass %s on the command line", t).
			Build()
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
