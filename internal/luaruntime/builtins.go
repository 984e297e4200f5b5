// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package luaruntime

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// objectMarkerKey flags a table as an ML object (as opposed to an
// array): mlpy_object sets this field so typeTagOf and the runtime's
// iteration helpers can tell the two table shapes apart without a
// separate Go-side value wrapper.
const objectMarkerKey = "__mlpy_object"

// builtinFunc is a whitelisted builtin's Go implementation. Unlike a raw
// lua.LGFunction, args are passed explicitly rather than read off the
// interpreter's call stack, since safe_call invokes these directly from
// Go rather than through Lua's own call protocol.
type builtinFunc func(L *lua.LState, args []lua.LValue) ([]lua.LValue, error)

func arg(args []lua.LValue, i int) lua.LValue {
	if i < len(args) {
		return args[i]
	}
	return lua.LNil
}

// defaultBuiltins implements every name in registry's whitelistedBuiltins
// list (spec.md §3): typeof, len, print, int, float, str, bool, abs, min,
// max, sum, round, keys, values, range, sorted, input, help, getattr,
// setattr, hasattr. eval/exec/compile/globals/locals/vars/dir/open/exit/
// quit are deliberately absent — they are ForbiddenNames and can never
// reach the registry in the first place.
func defaultBuiltins() map[string]builtinFunc {
	return map[string]builtinFunc{
		"typeof":  biTypeof,
		"len":     biLen,
		"print":   biPrint,
		"int":     biInt,
		"float":   biFloat,
		"str":     biStr,
		"bool":    biBool,
		"abs":     biAbs,
		"min":     biMinMax(false),
		"max":     biMinMax(true),
		"sum":     biSum,
		"round":   biRound,
		"keys":    biKeys,
		"values":  biValues,
		"range":   biRange,
		"sorted":  biSorted,
		"input":   biInput,
		"help":    biHelp,
		"getattr": biGetattr,
		"setattr": biSetattr,
		"hasattr": biHasattr,
	}
}

func biTypeof(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	return []lua.LValue{lua.LString(typeTagOf(arg(args, 0)))}, nil
}

func biLen(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	v := arg(args, 0)
	switch t := v.(type) {
	case lua.LString:
		return []lua.LValue{lua.LNumber(len(string(t)))}, nil
	case *lua.LTable:
		return []lua.LValue{lua.LNumber(t.Len())}, nil
	default:
		return nil, fmt.Errorf("len() requires a string or array/object, got %s", typeTagOf(v))
	}
}

func biPrint(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = lua.LVAsString(a)
	}
	fmt.Println(strings.Join(parts, " "))
	return nil, nil
}

// biInt implements the fail-fast int() conversion spec.md §4.5 point 5
// requires: an unparsable string raises rather than returning zero. The
// generator emits a one-argument int()/float() call as a direct
// mlpy_int/mlpy_float runtime call; a call with any other argument count
// is routed through safe_call and reaches this entry (which converts the
// first argument).
func biInt(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	v, err := mlpyIntValue(arg(args, 0))
	if err != nil {
		return nil, err
	}
	return []lua.LValue{v}, nil
}

func biFloat(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	v, err := mlpyFloatValue(arg(args, 0))
	if err != nil {
		return nil, err
	}
	return []lua.LValue{v}, nil
}

func biStr(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	return []lua.LValue{lua.LString(lua.LVAsString(arg(args, 0)))}, nil
}

func biBool(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	return []lua.LValue{lua.LBool(truthy(arg(args, 0)))}, nil
}

func biAbs(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	n, ok := arg(args, 0).(lua.LNumber)
	if !ok {
		return nil, fmt.Errorf("abs() requires a number")
	}
	return []lua.LValue{lua.LNumber(math.Abs(float64(n)))}, nil
}

func biMinMax(wantMax bool) builtinFunc {
	return func(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
		nums, err := numericOperands(args)
		if err != nil {
			return nil, err
		}
		if len(nums) == 0 {
			return nil, fmt.Errorf("min()/max() requires at least one value")
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if (wantMax && n > best) || (!wantMax && n < best) {
				best = n
			}
		}
		return []lua.LValue{lua.LNumber(best)}, nil
	}
}

// numericOperands flattens either a single array argument or a variadic
// list of numbers into one slice, matching the ergonomic overload
// min(xs) / min(a, b, c) spec.md §3 describes for these builtins.
func numericOperands(args []lua.LValue) ([]float64, error) {
	if len(args) == 1 {
		if t, ok := args[0].(*lua.LTable); ok {
			var out []float64
			var rangeErr error
			t.ForEach(func(_, v lua.LValue) {
				n, ok := v.(lua.LNumber)
				if !ok {
					rangeErr = fmt.Errorf("expected a numeric array element, got %s", typeTagOf(v))
					return
				}
				out = append(out, float64(n))
			})
			return out, rangeErr
		}
	}
	out := make([]float64, 0, len(args))
	for _, a := range args {
		n, ok := a.(lua.LNumber)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %s", typeTagOf(a))
		}
		out = append(out, float64(n))
	}
	return out, nil
}

func biSum(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	nums, err := numericOperands(args)
	if err != nil {
		return nil, err
	}
	var total float64
	for _, n := range nums {
		total += n
	}
	return []lua.LValue{lua.LNumber(total)}, nil
}

func biRound(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	n, ok := arg(args, 0).(lua.LNumber)
	if !ok {
		return nil, fmt.Errorf("round() requires a number")
	}
	return []lua.LValue{lua.LNumber(math.Round(float64(n)))}, nil
}

func biKeys(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	t, ok := arg(args, 0).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("keys() requires an object")
	}
	out := newArrayTable(L)
	idx := 1
	t.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && string(ks) != objectMarkerKey {
			out.RawSetInt(idx, ks)
			idx++
		}
	})
	return []lua.LValue{out}, nil
}

func biValues(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	t, ok := arg(args, 0).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("values() requires an object")
	}
	out := newArrayTable(L)
	idx := 1
	t.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok && string(ks) == objectMarkerKey {
			return
		}
		out.RawSetInt(idx, v)
		idx++
	})
	return []lua.LValue{out}, nil
}

func biRange(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	var start, stop, step int
	switch len(args) {
	case 1:
		start, stop, step = 0, asInt(args[0]), 1
	case 2:
		start, stop, step = asInt(args[0]), asInt(args[1]), 1
	default:
		start, stop, step = asInt(args[0]), asInt(args[1]), asInt(args[2])
	}
	if step == 0 {
		return nil, fmt.Errorf("range() step must not be zero")
	}
	out := newArrayTable(L)
	idx := 1
	if step > 0 {
		for i := start; i < stop; i += step {
			out.RawSetInt(idx, lua.LNumber(i))
			idx++
		}
	} else {
		for i := start; i > stop; i += step {
			out.RawSetInt(idx, lua.LNumber(i))
			idx++
		}
	}
	return []lua.LValue{out}, nil
}

func asInt(v lua.LValue) int {
	if n, ok := v.(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

func biSorted(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	t, ok := arg(args, 0).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("sorted() requires an array")
	}
	n := t.Len()
	items := make([]lua.LValue, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, t.RawGetInt(i))
	}
	sort.SliceStable(items, func(i, j int) bool { return lessValue(items[i], items[j]) })
	out := newArrayTable(L)
	for i, v := range items {
		out.RawSetInt(i+1, v)
	}
	return []lua.LValue{out}, nil
}

func lessValue(a, b lua.LValue) bool {
	if an, ok := a.(lua.LNumber); ok {
		if bn, ok := b.(lua.LNumber); ok {
			return an < bn
		}
	}
	return lua.LVAsString(a) < lua.LVAsString(b)
}

// biInput reads one line from the sandbox's stdin. A sandboxed run's
// stdin is whatever the executor wired up (spec.md §4.9); there is no
// capability gate here since input() is explicitly whitelisted as a
// taint *source* rather than a capability-gated sink (see
// internal/security/deep.go's whitelistedIOReturns).
var stdinReader = bufio.NewReader(os.Stdin)

func biInput(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return []lua.LValue{lua.LString("")}, nil
	}
	return []lua.LValue{lua.LString(strings.TrimRight(line, "\r\n"))}, nil
}

func biHelp(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	return []lua.LValue{lua.LString("mlpy: see the language reference for available builtins")}, nil
}

func biGetattr(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	name, ok := arg(args, 1).(lua.LString)
	if !ok {
		return nil, fmt.Errorf("getattr() requires a string attribute name")
	}
	if strings.HasPrefix(string(name), "__") {
		return nil, fmt.Errorf("getattr(): refusing dangerous attribute name %q", string(name))
	}
	return []lua.LValue{indexValue(arg(args, 0), name)}, nil
}

func biSetattr(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	name, ok := arg(args, 1).(lua.LString)
	if !ok {
		return nil, fmt.Errorf("setattr() requires a string attribute name")
	}
	if strings.HasPrefix(string(name), "__") {
		return nil, fmt.Errorf("setattr(): refusing dangerous attribute name %q", string(name))
	}
	t, ok := arg(args, 0).(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("setattr() requires an object target")
	}
	t.RawSet(name, arg(args, 2))
	return nil, nil
}

func biHasattr(L *lua.LState, args []lua.LValue) ([]lua.LValue, error) {
	name, ok := arg(args, 1).(lua.LString)
	if !ok {
		return nil, fmt.Errorf("hasattr() requires a string attribute name")
	}
	v := indexValue(arg(args, 0), name)
	return []lua.LValue{lua.LBool(v != lua.LNil)}, nil
}

func newArrayTable(L *lua.LState) *lua.LTable { return L.NewTable() }

func truthy(v lua.LValue) bool {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t) != 0
	case lua.LString:
		return string(t) != ""
	default:
		return v.Type() != lua.LTNil
	}
}

func mlpyIntValue(v lua.LValue) (lua.LValue, error) {
	switch t := v.(type) {
	case lua.LNumber:
		return lua.LNumber(math.Trunc(float64(t))), nil
	case lua.LString:
		n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int(): cannot convert %q to an integer", string(t))
		}
		return lua.LNumber(n), nil
	case lua.LBool:
		if bool(t) {
			return lua.LNumber(1), nil
		}
		return lua.LNumber(0), nil
	default:
		return nil, fmt.Errorf("int(): cannot convert a value of type %q", typeTagOf(v))
	}
}

func mlpyFloatValue(v lua.LValue) (lua.LValue, error) {
	switch t := v.(type) {
	case lua.LNumber:
		return t, nil
	case lua.LString:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		if err != nil {
			return nil, fmt.Errorf("float(): cannot convert %q to a float", string(t))
		}
		return lua.LNumber(n), nil
	case lua.LBool:
		if bool(t) {
			return lua.LNumber(1), nil
		}
		return lua.LNumber(0), nil
	default:
		return nil, fmt.Errorf("float(): cannot convert a value of type %q", typeTagOf(v))
	}
}
