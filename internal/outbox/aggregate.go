package outbox

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ExtractAggregateID resolves an aggregate-id expression against a call's
// arguments and return value. Supported roots are "result" and "args[i]",
// optionally followed by dotted field lookups, e.g. "result.orderId" or
// "args[0].customer.id". Lookups work over struct fields (matched by name or
// JSON tag, case-insensitively) and string-keyed maps.
func ExtractAggregateID(expr string, args []any, result any) (string, error) {
	if expr == "" {
		return "", fmt.Errorf("outbox: empty aggregate-id expression")
	}

	parts := strings.Split(expr, ".")
	root, err := resolveRoot(parts[0], args, result)
	if err != nil {
		return "", err
	}

	v := reflect.ValueOf(root)
	for _, field := range parts[1:] {
		v, err = lookupField(v, field)
		if err != nil {
			return "", fmt.Errorf("outbox: aggregate expression %q: %w", expr, err)
		}
	}

	v = indirect(v)
	if !v.IsValid() {
		return "", fmt.Errorf("outbox: aggregate expression %q resolved to nil", expr)
	}
	switch v.Kind() {
	case reflect.String:
		s := v.String()
		if s == "" {
			return "", fmt.Errorf("outbox: aggregate expression %q resolved to empty string", expr)
		}
		return s, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	default:
		return fmt.Sprint(v.Interface()), nil
	}
}

func resolveRoot(root string, args []any, result any) (any, error) {
	if root == "result" {
		if result == nil {
			return nil, fmt.Errorf("outbox: aggregate expression refers to result, but result is nil")
		}
		return result, nil
	}
	if strings.HasPrefix(root, "args[") && strings.HasSuffix(root, "]") {
		idx, err := strconv.Atoi(root[len("args[") : len(root)-1])
		if err != nil {
			return nil, fmt.Errorf("outbox: bad argument index in %q", root)
		}
		if idx < 0 || idx >= len(args) {
			return nil, fmt.Errorf("outbox: argument index %d out of range (%d args)", idx, len(args))
		}
		return args[idx], nil
	}
	return nil, fmt.Errorf("outbox: unknown expression root %q (want result or args[i])", root)
}

func lookupField(v reflect.Value, name string) (reflect.Value, error) {
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("nil value before field %q", name)
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("map with non-string keys before field %q", name)
		}
		for _, key := range v.MapKeys() {
			if strings.EqualFold(key.String(), name) {
				elem := v.MapIndex(key)
				if elem.Kind() == reflect.Interface {
					elem = elem.Elem()
				}
				return elem, nil
			}
		}
		return reflect.Value{}, fmt.Errorf("map has no key %q", name)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag := strings.Split(f.Tag.Get("json"), ",")[0]
			if strings.EqualFold(f.Name, name) || (tag != "" && strings.EqualFold(tag, name)) {
				return v.Field(i), nil
			}
		}
		return reflect.Value{}, fmt.Errorf("type %s has no field %q", t, name)
	default:
		return reflect.Value{}, fmt.Errorf("cannot look up field %q on %s", name, v.Kind())
	}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
