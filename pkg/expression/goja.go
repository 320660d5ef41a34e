package expression

import (
	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/dotpath"
)

// Goja evaluates expressions and scripts on a fresh goja VM per call, so a
// single instance is safe for concurrent use across reconciliation workers.
type Goja struct{}

func NewGoja() *Goja {
	return &Goja{}
}

// Evaluate runs a single expression with the object's fields in scope. A
// ReferenceError (missing variable) evaluates to nil instead of failing.
func (g *Goja) Evaluate(expr string, context map[string]interface{}) (interface{}, error) {
	if expr == "" {
		return nil, nil
	}

	vm := goja.New()
	if context == nil {
		context = map[string]interface{}{}
	}
	if err := vm.Set("source", context); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := vm.Set("context", context); err != nil {
		return nil, errors.WithStack(err)
	}

	wrapped := `(function() {
		with (source) {
			try {
				return (` + expr + `);
			} catch (err) {
				if (err instanceof ReferenceError) {
					return null;
				}
				throw err;
			}
		}
	})()`

	val, err := vm.RunString(wrapped)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to evaluate expression %q", expr)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// Run executes a script against a deep copy of the context. The script can
// mutate `context` in place or return a replacement object; either way the
// caller's map is untouched.
func (g *Goja) Run(script string, context map[string]interface{}) (map[string]interface{}, error) {
	vm := goja.New()
	working := dotpath.DeepCopy(context)
	if working == nil {
		working = map[string]interface{}{}
	}
	if err := vm.Set("context", working); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := vm.Set("source", working); err != nil {
		return nil, errors.WithStack(err)
	}

	val, err := vm.RunString(script)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run script")
	}

	// A script that evaluates to an object replaces the context wholesale.
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		if replaced, ok := val.Export().(map[string]interface{}); ok {
			return replaced, nil
		}
	}
	return working, nil
}
