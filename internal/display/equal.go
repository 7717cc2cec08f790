package display

import "reflect"

// ShallowEqual compares a and b one level deep: struct fields, slice or
// array elements and map entries are compared with ==, while pointers,
// maps, slices, channels and funcs nested below the top level are compared
// by identity. It never panics on non-comparable types.
func ShallowEqual(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)

	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}

	if va.Type() != vb.Type() {
		return false
	}

	return shallow(va, vb)
}

func shallow(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Pointer:
		if a.Pointer() == b.Pointer() {
			return true
		}

		if a.IsNil() || b.IsNil() {
			return false
		}

		return shallow(a.Elem(), b.Elem())

	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !same(a.Field(i), b.Field(i)) {
				return false
			}
		}

		return true

	case reflect.Slice:
		if a.IsNil() != b.IsNil() {
			return false
		}

		fallthrough

	case reflect.Array:
		if a.Len() != b.Len() {
			return false
		}

		for i := 0; i < a.Len(); i++ {
			if !same(a.Index(i), b.Index(i)) {
				return false
			}
		}

		return true

	case reflect.Map:
		if a.IsNil() != b.IsNil() || a.Len() != b.Len() {
			return false
		}

		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !same(iter.Value(), other) {
				return false
			}
		}

		return true
	}

	return same(a, b)
}

// same is == for comparable values and identity for reference values. It
// avoids Interface() so that unexported fields can be compared.
func same(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()

	case reflect.Float32, reflect.Float64:
		return a.Float() == b.Float()

	case reflect.Complex64, reflect.Complex128:
		return a.Complex() == b.Complex()

	case reflect.String:
		return a.String() == b.String()

	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()

	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()

	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}

		if a.Elem().Type() != b.Elem().Type() {
			return false
		}

		return same(a.Elem(), b.Elem())

	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !same(a.Field(i), b.Field(i)) {
				return false
			}
		}

		return true

	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !same(a.Index(i), b.Index(i)) {
				return false
			}
		}

		return true
	}

	return false
}
