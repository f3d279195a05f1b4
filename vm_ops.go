package hammer

import (
	"math"
	"strings"
)

// arith implements the binary arithmetic opcodes with int/float
// promotion.  String concatenation rides on OpAdd: when either side
// is a string, both sides are formatted and joined.
func (ctx *Context) arith(op Opcode, left, right Value) (Value, *RuntimeError) {
	tl, tr := ctx.heap.TypeOf(left), ctx.heap.TypeOf(right)

	if op == OpAdd && (isStringLike(tl) || isStringLike(tr)) {
		var s strings.Builder
		s.WriteString(ctx.FormatValue(left))
		s.WriteString(ctx.FormatValue(right))
		return ctx.NewString(s.String()), nil
	}

	if !isNumeric(tl) || !isNumeric(tr) {
		return InvalidValue, newRuntimeError(RuntimeError_TypeMismatch,
			"cannot apply %s to %s and %s", op, tl, tr)
	}

	if tl == Tag_Float || tr == Tag_Float {
		a, b := ctx.numberAsFloat(left), ctx.numberAsFloat(right)
		switch op {
		case OpAdd:
			return ctx.NewFloat(a + b), nil
		case OpSub:
			return ctx.NewFloat(a - b), nil
		case OpMul:
			return ctx.NewFloat(a * b), nil
		case OpDiv:
			if b == 0 {
				return InvalidValue, newRuntimeError(RuntimeError_DivideByZero, "float division by zero")
			}
			return ctx.NewFloat(a / b), nil
		case OpMod:
			if b == 0 {
				return InvalidValue, newRuntimeError(RuntimeError_DivideByZero, "float modulo by zero")
			}
			return ctx.NewFloat(math.Mod(a, b)), nil
		case OpPow:
			return ctx.NewFloat(math.Pow(a, b)), nil
		}
	}

	a, b := ctx.IntValue(left), ctx.IntValue(right)
	switch op {
	case OpAdd:
		return ctx.NewInteger(a + b), nil
	case OpSub:
		return ctx.NewInteger(a - b), nil
	case OpMul:
		return ctx.NewInteger(a * b), nil
	case OpDiv:
		if b == 0 {
			return InvalidValue, newRuntimeError(RuntimeError_DivideByZero, "integer division by zero")
		}
		return ctx.NewInteger(a / b), nil
	case OpMod:
		if b == 0 {
			return InvalidValue, newRuntimeError(RuntimeError_DivideByZero, "integer modulo by zero")
		}
		return ctx.NewInteger(a % b), nil
	case OpPow:
		return ctx.intPow(a, b), nil
	}
	panic("arith: not an arithmetic opcode")
}

// intPow computes integer exponentiation, falling back to floats for
// negative exponents.
func (ctx *Context) intPow(base, exp int64) Value {
	if exp < 0 {
		return ctx.NewFloat(math.Pow(float64(base), float64(exp)))
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return ctx.NewInteger(result)
}

func (ctx *Context) unary(op Opcode, v Value) (Value, *RuntimeError) {
	switch op {
	case OpLNot:
		return ctx.Bool(!ctx.Truthy(v)), nil

	case OpUPos:
		if !isNumeric(ctx.heap.TypeOf(v)) {
			return InvalidValue, newRuntimeError(RuntimeError_TypeMismatch,
				"unary '+' needs a number, got %s", ctx.TypeName(v))
		}
		return v, nil

	case OpUNeg:
		switch ctx.heap.TypeOf(v) {
		case Tag_Integer:
			return ctx.NewInteger(-ctx.IntValue(v)), nil
		case Tag_Float:
			return ctx.NewFloat(-ctx.FloatValue(v)), nil
		}
		return InvalidValue, newRuntimeError(RuntimeError_TypeMismatch,
			"unary '-' needs a number, got %s", ctx.TypeName(v))
	}
	panic("unary: not a unary opcode")
}

// compare orders two values: numbers numerically, strings
// lexicographically.  Mixed or unordered types trap.
func (ctx *Context) compare(left, right Value) (int, *RuntimeError) {
	tl, tr := ctx.heap.TypeOf(left), ctx.heap.TypeOf(right)

	if isNumeric(tl) && isNumeric(tr) {
		if tl == Tag_Float || tr == Tag_Float {
			a, b := ctx.numberAsFloat(left), ctx.numberAsFloat(right)
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
		a, b := ctx.IntValue(left), ctx.IntValue(right)
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		}
		return 0, nil
	}

	if isStringLike(tl) && isStringLike(tr) {
		return strings.Compare(ctx.StringValue(left), ctx.StringValue(right)), nil
	}

	return 0, newRuntimeError(RuntimeError_TypeMismatch,
		"cannot order %s and %s", tl, tr)
}

func isNumeric(t TypeTag) bool { return t == Tag_Integer || t == Tag_Float }

func (ctx *Context) numberAsFloat(v Value) float64 {
	if ctx.heap.TypeOf(v) == Tag_Float {
		return ctx.FloatValue(v)
	}
	return float64(ctx.IntValue(v))
}
