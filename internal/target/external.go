package target

import "github.com/modbuild/modbuild/internal/exec"

// ExternalBMI stands in for a BMI produced outside the current build
// plan — typically the proxied output of another package's own BMI
// target, reached at its already-resolved absolute path. It never
// itself schedules a node: Plan always returns nil, and it has no
// further module deps, so it terminates recursive module-map
// collection.
type ExternalBMI struct {
	Name           string
	AbsoluteOutput string
}

func NewExternalBMI(name, absoluteOutput string) *ExternalBMI {
	return &ExternalBMI{Name: name, AbsoluteOutput: absoluteOutput}
}

func (e *ExternalBMI) ModuleName() string         { return e.Name }
func (e *ExternalBMI) ModuleDeps() []ModuleTarget { return nil }

func (e *ExternalBMI) Output(ctx *Context) string { return e.AbsoluteOutput }

func (e *ExternalBMI) Plan(ctx *Context) (*exec.Handle, error) { return nil, nil }
