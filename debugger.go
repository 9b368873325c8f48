package hookable

import (
	"reflect"
	"strings"

	"github.com/poltergeist-framework/hookable/debug"
)

// DebuggerOptions is the typed form of Options.DebuggerOptions. Maps decoded
// from YAML or JSON with the keys tag, inspect, group and filter are
// accepted as well.
type DebuggerOptions struct {
	// Tag labels every log line
	Tag string
	// Inspect logs the dispatch arguments
	Inspect bool
	// Group nests the log attributes under the tag
	Group bool
	// Filter is a name prefix (string) or a func taking at most one argument
	// (usually func(name string) bool)
	Filter any
}

// IsDebuggerOptions reports whether v has the shape of debugger options: a
// non-nil map with string keys, struct, or pointer to either, whose tag is a
// string, inspect and group are bools, and filter is a string or a func with
// at most one parameter. Missing fields are fine; unknown fields are ignored.
// Map keys that differ only by case make the value ambiguous and invalid.
func IsDebuggerOptions(v any) bool {
	_, ok := validDebuggerFields(v)
	return ok
}

func validDebuggerFields(v any) (map[string]reflect.Value, bool) {
	fields, ok := debuggerFields(v)
	if !ok || !validFields(fields) {
		return nil, false
	}
	return fields, true
}

func validFields(fields map[string]reflect.Value) bool {
	if f, ok := fields["tag"]; ok && !isKind(f, reflect.String) {
		return false
	}
	if f, ok := fields["inspect"]; ok && !isKind(f, reflect.Bool) {
		return false
	}
	if f, ok := fields["group"]; ok && !isKind(f, reflect.Bool) {
		return false
	}
	if f, ok := fields["filter"]; ok && !isKind(f, reflect.String) && !isFilterFunc(f) {
		return false
	}
	return true
}

// debuggerFields flattens v into the known fields, keyed by lower-case
// name. Field values are unwrapped from interfaces so their kind is the
// dynamic kind.
func debuggerFields(v any) (map[string]reflect.Value, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	fields := make(map[string]reflect.Value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		if rv.IsNil() {
			return nil, false
		}
		iter := rv.MapRange()
		for iter.Next() {
			name := strings.ToLower(iter.Key().String())
			if !isDebuggerField(name) {
				continue
			}
			if _, dup := fields[name]; dup {
				return nil, false
			}
			fields[name] = unwrap(iter.Value())
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := strings.ToLower(sf.Name)
			if !isDebuggerField(name) {
				continue
			}
			fv := unwrap(rv.Field(i))
			// an unset interface field counts as absent
			if !fv.IsValid() {
				continue
			}
			if _, dup := fields[name]; dup {
				return nil, false
			}
			fields[name] = fv
		}
	default:
		return nil, false
	}
	return fields, true
}

func isDebuggerField(name string) bool {
	switch name {
	case "tag", "inspect", "group", "filter":
		return true
	}
	return false
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isKind(v reflect.Value, kind reflect.Kind) bool {
	return v.IsValid() && v.Kind() == kind
}

func isFilterFunc(v reflect.Value) bool {
	return isKind(v, reflect.Func) && !v.IsNil() && v.Type().NumIn() <= 1
}

// debuggerOptionsPresent reports whether the caller asked for a debugger.
// nil, typed-nil pointers and maps, and empty maps mean no.
func debuggerOptionsPresent(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		return !rv.IsNil()
	case reflect.Map:
		return !rv.IsNil() && rv.Len() > 0
	}
	return true
}

// decodeDebuggerOptions validates v and converts it into debug.Options.
func decodeDebuggerOptions(v any) (debug.Options, bool) {
	fields, ok := validDebuggerFields(v)
	if !ok {
		return debug.Options{}, false
	}

	var opts debug.Options
	if f, ok := fields["tag"]; ok {
		opts.Tag = f.String()
	}
	if f, ok := fields["inspect"]; ok {
		opts.Inspect = f.Bool()
	}
	if f, ok := fields["group"]; ok {
		opts.Group = f.Bool()
	}
	if f, ok := fields["filter"]; ok {
		opts.Filter = filterFunc(f)
	}
	return opts, true
}

// filterFunc turns a validated filter value into a name predicate. Funcs
// other than func(string) bool are called through reflection; a result
// that is not a true bool filters the name out.
func filterFunc(f reflect.Value) func(string) bool {
	if f.Kind() == reflect.String {
		if f.String() == "" {
			return nil
		}
		return debug.PrefixFilter(f.String())
	}
	if fn, ok := f.Interface().(func(string) bool); ok {
		return fn
	}

	t := f.Type()
	return func(name string) bool {
		var in []reflect.Value
		if t.NumIn() == 1 {
			param := t.In(0)
			if t.IsVariadic() {
				param = param.Elem()
			}
			if arg, ok := filterArg(name, param); ok {
				in = []reflect.Value{arg}
			} else if !t.IsVariadic() {
				in = []reflect.Value{reflect.Zero(param)}
			}
		}
		out := f.Call(in)
		if len(out) == 0 {
			return false
		}
		res := unwrap(out[0])
		return isKind(res, reflect.Bool) && res.Bool()
	}
}

func filterArg(name string, param reflect.Type) (reflect.Value, bool) {
	arg := reflect.ValueOf(name)
	switch {
	case arg.Type().AssignableTo(param):
		return arg, true
	case param.Kind() == reflect.String:
		return arg.Convert(param), true
	}
	return reflect.Value{}, false
}
