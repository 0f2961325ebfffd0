package drift

import (
	"fmt"
	"math"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// flatten converts the nested slices go-native-netcdf returns for a
// variable, e.g. [][][]float32, into row-major float64 values and their
// shape. Scalars have an empty shape.
func flatten(v any) ([]float64, []int, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("no values")
	}
	var shape []int
	for t := rv; t.Kind() == reflect.Slice; t = t.Index(0) {
		shape = append(shape, t.Len())
		if t.Len() == 0 {
			break
		}
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	vals := make([]float64, 0, n)

	var walk func(reflect.Value) error
	walk = func(x reflect.Value) error {
		switch x.Kind() {
		case reflect.Slice:
			for i := 0; i < x.Len(); i++ {
				if err := walk(x.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			vals = append(vals, x.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			vals = append(vals, float64(x.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			vals = append(vals, float64(x.Uint()))
		default:
			return fmt.Errorf("unsupported value type %s", x.Type())
		}
		return nil
	}
	if err := walk(rv); err != nil {
		return nil, nil, err
	}
	if len(vals) != n {
		return nil, nil, fmt.Errorf("ragged array: %d values for shape %v", len(vals), shape)
	}
	return vals, shape, nil
}

// squeeze drops leading singleton dimensions, such as the single time step
// of a drift product, until at most want dimensions remain.
func squeeze(shape []int, want int) []int {
	for len(shape) > want && shape[0] == 1 {
		shape = shape[1:]
	}
	return shape
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	vals, _, err := flatten(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// attributeSnapshot copies an attribute map so it outlives the file handle.
func attributeSnapshot(attrs api.AttributeMap) map[string]any {
	out := make(map[string]any)
	if attrs == nil {
		return out
	}
	for _, k := range attrs.Keys() {
		if v, ok := attrs.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// unpack applies the CF packing and missing value conventions in place:
// fill and missing values become NaN, then scale_factor and add_offset are
// applied.
func unpack(vals []float64, attrs api.AttributeMap) {
	var missing []float64
	for _, key := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(attrs, key); ok {
			missing = append(missing, f)
		}
	}
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, hasOffset := attrFloat(attrs, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}

	for k, v := range vals {
		for _, m := range missing {
			if v == m {
				v = math.NaN()
				break
			}
		}
		vals[k] = v*scale + offset
	}
}
