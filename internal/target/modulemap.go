package target

import "github.com/modbuild/modbuild/internal/errs"

// computeModuleMap recursively collects (name, output_path) pairs from
// deps' module-target deps, depth-first, parent-before-children, so
// that -fmodule-file= entries cover transitively re-exported modules
// and not just the direct ones. A target currently being visited that
// is reached again (module-graph cycle) raises CyclicModuleDependency
// naming the chain that closed the loop.
func computeModuleMap(ctx *Context, deps []ModuleTarget) (map[string]string, error) {
	result := make(map[string]string)
	visited := make(map[ModuleTarget]bool)
	inflight := make(map[ModuleTarget]bool)
	var chain []string

	var visit func(mt ModuleTarget) error
	visit = func(mt ModuleTarget) error {
		if visited[mt] {
			return nil
		}
		if inflight[mt] {
			return &errs.CyclicModuleDependency{Chain: append(append([]string{}, chain...), mt.ModuleName())}
		}

		inflight[mt] = true
		chain = append(chain, mt.ModuleName())
		result[mt.ModuleName()] = mt.Output(ctx)

		for _, child := range mt.ModuleDeps() {
			if err := visit(child); err != nil {
				return err
			}
		}

		chain = chain[:len(chain)-1]
		delete(inflight, mt)
		visited[mt] = true
		return nil
	}

	for _, d := range deps {
		if err := visit(d); err != nil {
			return nil, err
		}
	}
	return result, nil
}
