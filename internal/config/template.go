package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

// TemplateEnv is the evaluation environment exposed to a usage field's
// templated string: `{{ projectDir }}` and `{{ env.FOO }}`-style
// expressions may reference it.
type TemplateEnv struct {
	ProjectDir string
	Env        map[string]string
}

var templateExpr = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// EvalTemplate expands every `{{ expr }}` occurrence in s by compiling
// and running expr against env, substituting the stringified result.
// A usage field with no `{{ }}` markers is returned unchanged — most
// project files never need templating at all.
func EvalTemplate(s string, env TemplateEnv) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	envMap := map[string]any{
		"projectDir": env.ProjectDir,
		"env":        env.Env,
	}

	var evalErr error
	out := templateExpr.ReplaceAllStringFunc(s, func(match string) string {
		if evalErr != nil {
			return match
		}
		sub := templateExpr.FindStringSubmatch(match)
		program, err := expr.Compile(sub[1], expr.Env(envMap))
		if err != nil {
			evalErr = fmt.Errorf("compiling template expression %q: %w", sub[1], err)
			return match
		}
		result, err := expr.Run(program, envMap)
		if err != nil {
			evalErr = fmt.Errorf("evaluating template expression %q: %w", sub[1], err)
			return match
		}
		return fmt.Sprintf("%v", result)
	})
	if evalErr != nil {
		return "", evalErr
	}
	return out, nil
}

// EvalUsage expands every templated field of u, returning a copy with
// PCMPath/CompileOption/LinkOption resolved against env. Libs is never
// templated per spec §6.
func (u Usage) EvalUsage(env TemplateEnv) (Usage, error) {
	var err error
	if u.PCMPath, err = EvalTemplate(u.PCMPath, env); err != nil {
		return Usage{}, err
	}
	if u.CompileOption, err = EvalTemplate(u.CompileOption, env); err != nil {
		return Usage{}, err
	}
	if u.LinkOption, err = EvalTemplate(u.LinkOption, env); err != nil {
		return Usage{}, err
	}
	return u, nil
}
