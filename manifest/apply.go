package manifest

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/runtime"
)

// Apply registers every component named by the manifest and issues its
// bindings against the runtime's linker. Relative component paths are
// resolved against the manifest's directory. Apply does not finalize;
// the caller decides when linking is complete.
func (m *Manifest) Apply(rt *runtime.Runtime) error {
	for _, c := range m.Components {
		path := c.Path
		if !filepath.IsAbs(path) && m.dir != "" {
			path = filepath.Join(m.dir, path)
		}
		id, err := rt.LoadComponentFile(c.ID, path)
		if err != nil {
			return err
		}
		Logger().Debug("component loaded",
			zap.String("component", string(id)),
			zap.String("path", path))
	}

	for _, c := range m.Components {
		consumer := registry.ComponentID(c.ID)
		for _, b := range c.Binds {
			if err := rt.Linker().Bind(consumer, b.Import, registry.ComponentID(b.Provider), b.Export); err != nil {
				return err
			}
		}
		for _, b := range c.HostBinds {
			fn, ok := rt.Bridge().ByName(b.Function)
			if !ok {
				return errors.NotFound(errors.PhaseLink, "host function", b.Function)
			}
			if err := rt.Linker().BindHost(consumer, b.Import, fn); err != nil {
				return err
			}
		}
	}

	Logger().Info("manifest applied", zap.Int("components", len(m.Components)))
	return nil
}
