// Package index resolves a project's package references into a
// dependency tree of loaded project descriptions, fetching each
// package into the packages root on first use and detecting cycles in
// the resulting package graph.
package index

import (
	"path/filepath"

	"github.com/modbuild/modbuild/internal/config"
	"github.com/modbuild/modbuild/internal/errs"
	"github.com/modbuild/modbuild/internal/fetch"
)

// Node is one project in the resolved package dependency tree.
type Node struct {
	Project *config.Project
	Dir     string
	Deps    []*Node
}

// ResolveTree loads the project description at projectDir's
// "project.json" and recursively resolves every packages[] reference,
// fetching remote packages into packagesRoot as needed. A package that
// (transitively) depends on itself raises CyclicPackageDependency naming
// the chain of project directories that closed the loop.
func ResolveTree(projectDir, packagesRoot string) (*Node, error) {
	return resolve(projectDir, packagesRoot, nil, make(map[string]*Node))
}

func resolve(projectDir, packagesRoot string, chain []string, memo map[string]*Node) (*Node, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, &errs.ConfigError{Detail: "resolving project directory " + projectDir, Err: err}
	}

	for _, c := range chain {
		if c == abs {
			return nil, &errs.CyclicPackageDependency{Chain: append(append([]string{}, chain...), abs)}
		}
	}

	if n, ok := memo[abs]; ok {
		return n, nil
	}

	projectFile := filepath.Join(abs, "project.json")
	proj, err := config.Load(projectFile)
	if err != nil {
		return nil, err
	}

	node := &Node{Project: proj, Dir: abs}
	memo[abs] = node

	childChain := append(chain, abs)
	for _, ref := range proj.Packages {
		depDir, err := fetch.Resolve(ref, packagesRoot, abs)
		if err != nil {
			return nil, err
		}
		child, err := resolve(depDir, packagesRoot, childChain, memo)
		if err != nil {
			return nil, err
		}
		node.Deps = append(node.Deps, child)
	}

	return node, nil
}

// Flatten returns every node in the tree exactly once, dependencies
// before dependents (a valid build order for their own project-local
// artifacts, ignoring module-level ordering which the target graph
// executor handles).
func Flatten(root *Node) []*Node {
	var order []*Node
	seen := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, d := range n.Deps {
			visit(d)
		}
		order = append(order, n)
	}
	visit(root)
	return order
}
