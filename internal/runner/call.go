package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// ErrSignatureMismatch is returned when a function does not have the
// signature a binding requires.
var ErrSignatureMismatch = errors.New("signature mismatch")

// BinaryI32 is a typed (i32, i32) -> i32 function.
type BinaryI32 func(ctx context.Context, a, b int32) (int32, error)

// BindBinaryI32 returns fn as a BinaryI32 after checking its signature. This
// is the only conversion from an untyped function to a typed one.
func BindBinaryI32(fn api.Function) (BinaryI32, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil function", ErrSignatureMismatch)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 2 || params[0] != api.ValueTypeI32 || params[1] != api.ValueTypeI32 ||
		len(results) != 1 || results[0] != api.ValueTypeI32 {
		return nil, fmt.Errorf("%w: %s is %s, not (i32,i32)->i32", ErrSignatureMismatch, def.DebugName(), signature(params, results))
	}
	return func(ctx context.Context, a, b int32) (int32, error) {
		stack := []uint64{api.EncodeI32(a), api.EncodeI32(b)}
		if err := fn.CallWithStack(ctx, stack); err != nil {
			return 0, err
		}
		return api.DecodeI32(stack[0]), nil
	}, nil
}

func signature(params, results []api.ValueType) string {
	return fmt.Sprintf("(%s)->(%s)", typeNames(params), typeNames(results))
}

func typeNames(types []api.ValueType) (ret string) {
	for i, t := range types {
		if i > 0 {
			ret += ","
		}
		ret += api.ValueTypeName(t)
	}
	return
}
