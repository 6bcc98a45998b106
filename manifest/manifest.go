package manifest

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/domforge/domhost/errors"
)

// Manifest is the composition input: which component binaries to load
// and how every import slot is satisfied. Nothing is ever auto-wired;
// a slot missing from the manifest stays unbound and fails Finalize.
type Manifest struct {
	Components []Component `hcl:"component,block"`
	Invoke     *Invoke     `hcl:"invoke,block"`

	dir string // manifest location, for resolving relative paths
}

// Component declares one binary and the bindings of its imports.
type Component struct {
	ID        string     `hcl:"id,label"`
	Path      string     `hcl:"path"`
	Binds     []Bind     `hcl:"bind,block"`
	HostBinds []HostBind `hcl:"bind_host,block"`
}

// Bind satisfies one import with another component's export.
type Bind struct {
	Import   string `hcl:"import"`
	Provider string `hcl:"provider"`
	Export   string `hcl:"export"`
}

// HostBind satisfies one import with a host function exposed under a
// name.
type HostBind struct {
	Import   string `hcl:"import"`
	Function string `hcl:"function"`
}

// Invoke is the optional default entry point a manifest names.
type Invoke struct {
	Instance string    `hcl:"instance"`
	Export   string    `hcl:"export"`
	Args     cty.Value `hcl:"args,optional"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "read manifest")
	}
	return Parse(data, path)
}

// Parse decodes manifest text.
func Parse(data []byte, filename string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, diags, "parse manifest")
	}

	var m Manifest
	if diags := gohcl.DecodeBody(file.Body, nil, &m); diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, diags, "decode manifest")
	}

	seen := make(map[string]bool, len(m.Components))
	for _, c := range m.Components {
		if seen[c.ID] {
			return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Component(c.ID).
				Detail("component %q declared twice", c.ID).
				Build()
		}
		seen[c.ID] = true
	}
	m.dir = filepath.Dir(filename)
	return &m, nil
}

// InvokeArgs converts the default entry point's argument list into
// host values.
func (m *Manifest) InvokeArgs() ([]any, error) {
	if m.Invoke == nil || m.Invoke.Args.IsNull() {
		return nil, nil
	}
	return ctyList(m.Invoke.Args)
}
