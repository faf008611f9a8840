package workflow

import (
	"context"
	"reflect"
)

// ConditionMaxIterations fires while the jump has evaluated true fewer than n
// times, producing exactly n extra passes over the jump's path.
func ConditionMaxIterations(n int) Condition {
	return func(_ context.Context, eval JumpEvaluation) (bool, error) {
		return eval.Iteration < n, nil
	}
}

// ConditionOutputTruthy fires while the source item's named output is truthy:
// boolean true, a non-zero number, or a non-empty string.
func ConditionOutputTruthy(key string) Condition {
	return func(_ context.Context, eval JumpEvaluation) (bool, error) {
		return truthy(eval.Outputs[key]), nil
	}
}

// ConditionOutputEquals fires while the source item's named output equals the
// given value. Numbers compare by value regardless of concrete type, so JSON
// float64s match Go ints.
func ConditionOutputEquals(key string, value any) Condition {
	return func(_ context.Context, eval JumpEvaluation) (bool, error) {
		return looseEqual(eval.Outputs[key], value), nil
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := asFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func looseEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
