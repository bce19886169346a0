package actions

import (
	"context"
	"math"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// MathOp is the MATH_OP handler: binary arithmetic over two resolved
// operands, exposing the result to downstream formulas.
type MathOp struct{}

// NewMathOp creates a MATH_OP handler.
func NewMathOp() *MathOp { return &MathOp{} }

func (m *MathOp) Type() schema.ActionType { return schema.ActionMathOp }

func (m *MathOp) Validate(config map[string]any) error {
	switch op := stringParam(config, "operation", ""); op {
	case "add", "subtract", "multiply", "divide", "power", "mod":
	case "":
		return schema.NewError(schema.ErrCodeValidation, "MATH_OP: missing required config 'operation'")
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "MATH_OP: unknown operation %q", op)
	}
	if _, ok := numberParam(config, "left"); !ok {
		return schema.NewError(schema.ErrCodeValidation, "MATH_OP: config 'left' must be a number")
	}
	if _, ok := numberParam(config, "right"); !ok {
		return schema.NewError(schema.ErrCodeValidation, "MATH_OP: config 'right' must be a number")
	}
	return nil
}

func (m *MathOp) Execute(ctx context.Context, input Input) (map[string]any, error) {
	config := input.Config
	if err := m.Validate(config); err != nil {
		return nil, err
	}

	left, _ := numberParam(config, "left")
	right, _ := numberParam(config, "right")

	var result float64
	switch stringParam(config, "operation", "") {
	case "add":
		result = left + right
	case "subtract":
		result = left - right
	case "multiply":
		result = left * right
	case "divide":
		if right == 0 {
			return nil, schema.NewError(schema.ErrCodeExternalAction, "MATH_OP: division by zero")
		}
		result = left / right
	case "power":
		result = math.Pow(left, right)
	case "mod":
		if right == 0 {
			return nil, schema.NewError(schema.ErrCodeExternalAction, "MATH_OP: modulo by zero")
		}
		result = math.Mod(left, right)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, schema.NewErrorf(schema.ErrCodeExternalAction, "MATH_OP: result is not a finite number")
	}

	return map[string]any{"result": result}, nil
}
