package controllers

import (
	"context"
	"fmt"

	"skeleton/pkg/dispatch"
	"skeleton/pkg/names"
	"skeleton/pkg/registry"
)

func register(c *dispatch.Controllers, ns dispatch.Namespace, name dispatch.ControllerName, ctrl dispatch.Controller) {
	c.Register(ns, name, func() dispatch.Controller { return ctrl })
}

// Mount registers the per-module controller set for module under system.
func Mount(c *dispatch.Controllers, d Deps, system registry.System, module string) {
	ns := dispatch.ModuleNamespace(system, module)
	b := base{d}
	register(c, ns, dispatch.NavCtrl, &NavCtrl{b})
	register(c, ns, dispatch.TokenCtrl, &TokenCtrl{b})
	register(c, ns, dispatch.ShowAddCtrl, &ShowAddCtrl{b})
	register(c, ns, dispatch.SaveAddCtrl, &SaveAddCtrl{b})
	register(c, ns, dispatch.ShowEditCtrl, &ShowEditCtrl{b})
	register(c, ns, dispatch.SaveEditCtrl, &SaveEditCtrl{b})
	register(c, ns, dispatch.FormCtrl, &FormCtrl{b})
	register(c, ns, dispatch.CardCtrl, &CardCtrl{b})
	register(c, ns, dispatch.TableCtrl, &TableCtrl{b})
	register(c, ns, dispatch.ViewCtrl, &ViewCtrl{b})
}

// MountShared registers the Actions and Helpers namespaces.
func MountShared(c *dispatch.Controllers, d Deps) {
	b := base{d}
	register(c, dispatch.NamespaceActions, dispatch.DeleteCtrl, &Delete{b})
	register(c, dispatch.NamespaceActions, dispatch.UniqueCtrl, &Unique{b})
	register(c, dispatch.NamespaceHelpers, dispatch.SelectHelper, &SelectHelper{b})
}

// Mounter keeps the controller registry in step with the module registry.
// Every registry module is mounted under each of Systems, and every token
// definition's module under the definition's system.
type Mounter struct {
	Controllers *dispatch.Controllers
	Deps        Deps
	Registry    registry.Source
	Systems     []registry.System
}

func NewMounter(c *dispatch.Controllers, d Deps, src registry.Source) *Mounter {
	return &Mounter{
		Controllers: c,
		Deps:        d,
		Registry:    src,
		Systems:     []registry.System{registry.SystemCentral, registry.SystemBusiness},
	}
}

// Reload builds a fresh registration set from the registry and swaps it in,
// so modules and definitions that were removed stop resolving. On error the
// current set is left as is.
func (m *Mounter) Reload(ctx context.Context) error {
	next := dispatch.NewControllers()
	MountShared(next, m.Deps)
	mods, err := m.Registry.Modules(ctx)
	if err != nil {
		return fmt.Errorf("mount modules: %w", err)
	}
	for _, mod := range mods {
		for _, sys := range m.Systems {
			Mount(next, m.Deps, sys, names.Normalize(mod.Name))
		}
	}
	defs, err := m.Registry.TokenDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("mount token modules: %w", err)
	}
	for _, def := range defs {
		Mount(next, m.Deps, registry.ParseSystem(string(def.System)), names.Normalize(def.Module))
	}
	m.Controllers.Replace(next)
	return nil
}
