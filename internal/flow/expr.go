package flow

import (
	"encoding/json"
	"fmt"

	"github.com/casbin/govaluate"
)

// EvalContext flattens a StepContext into the parameter set an
// input_transform/skip_if/stop_after_if expression can reference:
// flow_input, previous_result, result, resume, resumes, iter, and
// previous_id_<module_id>.
//
// Expressions are evaluated with govaluate rather than a real JS engine,
// which covers the comparison/arithmetic/boolean expressions flows actually
// exercise ("result < 0", "n == 2", etc) but not arbitrary JS.
func EvalContext(ctx StepContext) map[string]interface{} {
	params := map[string]interface{}{
		"flow_input":      decode(ctx.FlowInput),
		"previous_result": decode(ctx.PreviousResult),
		"result":          decode(ctx.Result),
		"resume":          decode(ctx.Resume),
	}

	resumes := make([]interface{}, 0, len(ctx.Resumes))
	for _, r := range ctx.Resumes {
		resumes = append(resumes, decode(r))
	}
	params["resumes"] = resumes

	if ctx.Iter != nil {
		params["iter"] = map[string]interface{}{
			"value": decode(ctx.Iter.Value),
			"index": ctx.Iter.Index,
		}
	}

	for id, raw := range ctx.PreviousIDs {
		params["previous_id_"+id] = decode(raw)
	}

	if m, ok := params["result"].(map[string]interface{}); ok {
		for k, v := range m {
			if _, exists := params[k]; !exists {
				params[k] = v
			}
		}
	}

	return params
}

func decode(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// EvalBool evaluates expr (e.g. a stop_after_if or skip_if expression)
// against params and coerces the result to a bool.
func EvalBool(expr string, params map[string]interface{}) (bool, error) {
	if expr == "" {
		return false, nil
	}
	result, err := evalExpr(expr, params)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean: got %v", expr, result)
	}
	return b, nil
}

// EvalValue evaluates an arbitrary input_transform expression and returns
// its raw result for JSON re-encoding.
func EvalValue(expr string, params map[string]interface{}) (interface{}, error) {
	return evalExpr(expr, params)
}

func evalExpr(expr string, params map[string]interface{}) (interface{}, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	result, err := compiled.Evaluate(params)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expr, err)
	}
	return result, nil
}
