// Package expression evaluates the small JavaScript expressions that drive
// field mappings and rule conditions, plus whole scripts for script-type
// rules. The in-flight object is exposed to expressions as both `source` and
// `context`, and its fields are also reachable bare (e.g. `age >= 18`).
package expression

// Evaluator resolves a single expression against an object. A reference to
// a variable that doesn't exist yields nil, not an error, mirroring
// JsonLogic's missing-variable default.
type Evaluator interface {
	Evaluate(expr string, context map[string]interface{}) (interface{}, error)
}

// ScriptRunner executes a script against a copy of the context and returns
// the resulting context. Scripts never see or mutate the caller's maps.
type ScriptRunner interface {
	Run(script string, context map[string]interface{}) (map[string]interface{}, error)
}

// Truthy reports JavaScript-style truthiness for an exported value. Used to
// decide whether a condition expression passes.
func Truthy(v interface{}) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case bool:
		return tv
	case string:
		return tv != ""
	case int:
		return tv != 0
	case int64:
		return tv != 0
	case float64:
		return tv != 0
	case map[string]interface{}:
		return true
	case []interface{}:
		return true
	default:
		return true
	}
}
