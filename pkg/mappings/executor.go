// Package mappings applies a declarative field mapping to one object:
// pass-through seeding, ordered source→target pairs, type casts, unsets, and
// finally a content hash of the result for change detection.
package mappings

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/dotpath"
	"github.com/syncbridge/syncbridge/pkg/expression"
	"github.com/syncbridge/syncbridge/pkg/models"
	"github.com/syncbridge/syncbridge/pkg/objecthash"
)

// CastError reports a value that couldn't be converted to the requested
// type. It's recoverable at the object level: the object fails, the run
// continues.
type CastError struct {
	Path  string
	Type  string
	Value interface{}
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast of %q to %s failed for value %v", e.Path, e.Type, e.Value)
}

// ElementError records a single failed element in list mode.
type ElementError struct {
	Index int
	Err   error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Index, e.Err.Error())
}

type Executor struct {
	eval expression.Evaluator
}

func NewExecutor(eval expression.Evaluator) *Executor {
	return &Executor{eval: eval}
}

// Apply transforms input through the mapping and returns the output plus its
// content hash. The hash is of the mapped result, not the raw input, so
// source changes outside the mapped fields never produce a spurious write.
func (ex *Executor) Apply(mapping *models.Mapping, input map[string]interface{}) (map[string]interface{}, string, error) {
	var output map[string]interface{}
	if mapping.PassThrough {
		output = dotpath.DeepCopy(input)
		if output == nil {
			output = map[string]interface{}{}
		}
	} else {
		output = map[string]interface{}{}
	}

	for _, pair := range mapping.PairsParsed {
		value, err := ex.eval.Evaluate(pair.Source, input)
		if err != nil {
			return nil, "", errors.Wrapf(err, "mapping pair %q -> %q", pair.Source, pair.Target)
		}
		// A missing source field maps to nothing rather than an explicit
		// null on the target.
		if value == nil {
			continue
		}
		dotpath.Set(output, pair.Target, value)
	}

	for _, cast := range mapping.CastParsed {
		current, ok := dotpath.Get(output, cast.Path)
		if !ok {
			continue
		}
		converted, err := castValue(current, cast.Type)
		if err != nil {
			return nil, "", &CastError{Path: cast.Path, Type: cast.Type, Value: current}
		}
		dotpath.Set(output, cast.Path, converted)
	}

	// Unset is applied last so it always wins over pass-through and pairs.
	for _, path := range mapping.UnsetParsed {
		dotpath.Delete(output, path)
	}

	hash, err := objecthash.Hash(output)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to hash mapped output")
	}

	return output, hash, nil
}

// ApplyList maps each element of a list independently, preserving input
// order. A failure on one element doesn't abort the rest: outputs holds nil
// at failed positions and errs records them by index.
func (ex *Executor) ApplyList(mapping *models.Mapping, inputs []map[string]interface{}) ([]map[string]interface{}, []*ElementError) {
	outputs := make([]map[string]interface{}, len(inputs))
	var errs []*ElementError

	for i, input := range inputs {
		output, _, err := ex.Apply(mapping, input)
		if err != nil {
			errs = append(errs, &ElementError{Index: i, Err: err})
			continue
		}
		outputs[i] = output
	}

	return outputs, errs
}

func castValue(v interface{}, castType string) (interface{}, error) {
	switch castType {
	case models.CastTypeString:
		return castString(v)
	case models.CastTypeInteger:
		return castInteger(v)
	case models.CastTypeFloat:
		return castFloat(v)
	case models.CastTypeBoolean:
		return castBoolean(v)
	case models.CastTypeArray:
		return castArray(v)
	}
	return nil, errors.Errorf("unknown cast type %q", castType)
}

func castString(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case bool:
		return strconv.FormatBool(tv), nil
	case int:
		return strconv.Itoa(tv), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	}
	return nil, errors.Errorf("can't cast %T to string", v)
}

func castInteger(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case int:
		return int64(tv), nil
	case int64:
		return tv, nil
	case float64:
		return int64(tv), nil
	case bool:
		if tv {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		n, err := strconv.ParseInt(tv, 10, 64)
		if err != nil {
			return nil, errors.Errorf("%q is not an integer", tv)
		}
		return n, nil
	}
	return nil, errors.Errorf("can't cast %T to integer", v)
}

func castFloat(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case int:
		return float64(tv), nil
	case int64:
		return float64(tv), nil
	case float64:
		return tv, nil
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		if err != nil {
			return nil, errors.Errorf("%q is not a float", tv)
		}
		return f, nil
	}
	return nil, errors.Errorf("can't cast %T to float", v)
}

func castBoolean(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case bool:
		return tv, nil
	case int:
		return tv != 0, nil
	case int64:
		return tv != 0, nil
	case float64:
		return tv != 0, nil
	case string:
		b, err := strconv.ParseBool(tv)
		if err != nil {
			return nil, errors.Errorf("%q is not a boolean", tv)
		}
		return b, nil
	}
	return nil, errors.Errorf("can't cast %T to boolean", v)
}

func castArray(v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case []interface{}:
		return tv, nil
	case nil:
		return []interface{}{}, nil
	default:
		return []interface{}{tv}, nil
	}
}
