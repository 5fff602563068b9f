package jit

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// linkImport is a function import of the dylib's namespace.
type linkImport struct {
	name string
	def  api.FunctionDefinition
}

// namespaceImports returns the function imports of m from jd, first
// occurrence of each name, in declaration order.
func (jd *Dylib) namespaceImports(m *Module) (ret []linkImport) {
	seen := map[string]bool{}
	for _, f := range m.ImportedFunctions() {
		moduleName, name, _ := f.Import()
		if moduleName != jd.name || seen[name] {
			continue
		}
		seen[name] = true
		ret = append(ret, linkImport{name: name, def: f})
	}
	return
}

// materialize instantiates m after every import it needs from jd is defined.
// Missing imports are requested from the generators as one batch.
func (jd *Dylib) materialize(ctx context.Context, m *Module) error {
	if m.instance != nil || m.materializing {
		return nil
	}
	m.materializing = true
	defer func() { m.materializing = false }()

	imports := jd.namespaceImports(m)

	var request LookupSet
	for _, imp := range imports {
		if _, ok := jd.defs[imp.name]; !ok {
			request = append(request, jd.host.pool.Intern(imp.name))
		}
	}
	if len(request) > 0 {
		err := jd.generate(ctx, request)
		for _, e := range request {
			e.Release()
		}
		if err != nil {
			return fmt.Errorf("materialize %s: %w", m.name, err)
		}
	}

	var missing []string
	for _, imp := range imports {
		def, ok := jd.defs[imp.name]
		if !ok {
			missing = append(missing, imp.name)
			continue
		}
		// Another module's export must be callable before m's start functions run.
		if def.module != nil && def.module != m {
			if err := jd.materialize(ctx, def.module); err != nil {
				return err
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("materialize %s: %w", m.name, &SymbolsNotFoundError{Names: missing})
	}

	if err := jd.ensureLink(ctx, imports); err != nil {
		return fmt.Errorf("materialize %s: %w", m.name, err)
	}

	instance, err := jd.host.tsc.runtime.InstantiateModule(ctx, m.compiled, jd.host.moduleConfig.WithName(m.name))
	if err != nil {
		return fmt.Errorf("materialize %s: %w", m.name, err)
	}
	m.instance = instance
	jd.host.logger.Debug("module materialized", zap.String("module", m.name), zap.Int("imports", len(imports)))
	return nil
}

// ensureLink instantiates the link module exporting imports plus every
// absolute definition with a fixed signature. Once instantiated, it can only
// serve the names it already exports.
func (jd *Dylib) ensureLink(ctx context.Context, imports []linkImport) error {
	if jd.link != nil {
		for _, imp := range imports {
			if !jd.linkExports[imp.name] {
				return fmt.Errorf("%w: %s.%s", ErrDylibSealed, jd.name, imp.name)
			}
		}
		return nil
	}

	exports := map[string]bool{}
	b := jd.host.tsc.runtime.NewHostModuleBuilder(jd.name)
	for _, imp := range imports {
		fn, params, results, err := jd.bind(jd.defs[imp.name], imp)
		if err != nil {
			return err
		}
		b.NewFunctionBuilder().WithGoModuleFunction(fn, params, results).WithName(imp.name).Export(imp.name)
		exports[imp.name] = true
	}
	for _, name := range jd.order {
		def := jd.defs[name]
		if exports[name] || def.host == nil || def.host.Generic {
			continue
		}
		b.NewFunctionBuilder().WithGoModuleFunction(def.host.Fn, def.host.Params, def.host.Results).WithName(name).Export(name)
		exports[name] = true
	}
	if len(exports) == 0 {
		return nil
	}

	link, err := b.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate link module %s: %w", jd.name, err)
	}
	jd.link, jd.linkExports = link, exports
	jd.host.logger.Debug("link module instantiated", zap.String("dylib", jd.name), zap.Int("exports", len(exports)))
	return nil
}

// bind returns the host function satisfying imp from def.
func (jd *Dylib) bind(def *definition, imp linkImport) (api.GoModuleFunction, []api.ValueType, []api.ValueType, error) {
	params, results := imp.def.ParamTypes(), imp.def.ResultTypes()
	if def.host != nil {
		if def.host.Generic {
			return def.host.Fn, params, results, nil
		}
		return def.host.Fn, def.host.Params, def.host.Results, nil
	}

	target := def.module
	export, ok := target.ExportedFunctions()[imp.name]
	if !ok || !sameTypes(export.ParamTypes(), params) || !sameTypes(export.ResultTypes(), results) {
		return nil, nil, nil, fmt.Errorf("%w: %s.%s does not match the export of %s", ErrEngineInvariant, jd.name, imp.name, target.name)
	}
	// The target may be the importing module itself, so resolve on call.
	name := imp.name
	fn := api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
		if target.instance == nil {
			panic(fmt.Errorf("%w: %s called before %s was instantiated", ErrEngineInvariant, name, target.name))
		}
		if err := target.instance.ExportedFunction(name).CallWithStack(ctx, stack); err != nil {
			panic(err)
		}
	})
	return fn, params, results, nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
