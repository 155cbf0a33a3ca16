package cfg

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// SetDefaults 按 def tag 为零值字段设置默认值
// 递归处理嵌套结构体、非空的结构体指针以及元素为结构体的切片和 map，空指针保持为空
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("object must be a non-nil pointer, got %T", object)
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := setDefaults(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if rv.Type().Elem().Kind() != reflect.Ptr {
			return nil
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := setDefaults(iter.Value()); err != nil {
				return errors.WithMessagef(err, "key %v", iter.Key().Interface())
			}
		}
		return nil
	case reflect.Struct:
	default:
		return nil
	}

	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := rv.Field(i)
		if !f.IsExported() || !fv.CanSet() {
			continue
		}
		if err := setDefaults(fv); err != nil {
			return errors.WithMessagef(err, "field %s", f.Name)
		}

		def, ok := f.Tag.Lookup("def")
		if !ok || !fv.IsZero() {
			continue
		}
		if err := setDefault(fv, def); err != nil {
			return errors.WithMessagef(err, "default of field %s", f.Name)
		}
	}
	return nil
}

func setDefault(fv reflect.Value, def string) error {
	if fv.Kind() == reflect.Ptr {
		fv.Set(reflect.New(fv.Type().Elem()))
		fv = fv.Elem()
	}
	if fv.Kind() != reflect.Slice {
		return parseScalar(def, fv)
	}
	parts := strings.Split(def, ",")
	out := reflect.MakeSlice(fv.Type(), len(parts), len(parts))
	for i, p := range parts {
		if err := parseScalar(p, out.Index(i)); err != nil {
			return errors.WithMessagef(err, "element %d", i)
		}
	}
	fv.Set(out)
	return nil
}
