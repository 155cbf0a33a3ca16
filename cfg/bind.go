package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	valueType    = reflect.TypeOf((*Value)(nil))
)

// Bind 把解码得到的配置树绑定到 object 指向的对象
// 结构体字段按 cfg tag 匹配键名，没有 tag 时使用字段名，键名匹配忽略大小写
func Bind(src any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("bind target must be a non-nil pointer, got %T", object)
	}
	if v, ok := src.(*Value); ok {
		src = v.Data()
	}
	return bind(src, rv.Elem(), "")
}

func bind(src any, dst reflect.Value, path string) error {
	sv := reflect.ValueOf(src)
	for sv.Kind() == reflect.Ptr || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return nil
		}
		sv = sv.Elem()
	}
	if !sv.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.Type() == valueType {
			dst.Set(reflect.ValueOf(NewValue(sv.Interface())))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return bind(sv.Interface(), dst.Elem(), path)
	}

	if dst.Type() == durationType {
		return bindDuration(sv, dst, path)
	}

	switch dst.Kind() {
	case reflect.Interface:
		if dst.Type().NumMethod() != 0 {
			break
		}
		// 子树延迟到使用方按自己的类型转换
		if sv.Kind() == reflect.Map {
			dst.Set(reflect.ValueOf(NewValue(sv.Interface())))
		} else {
			dst.Set(sv)
		}
		return nil
	case reflect.Struct:
		if sv.Kind() == reflect.Map {
			return bindStruct(sv, dst, path)
		}
	case reflect.Map:
		if sv.Kind() == reflect.Map {
			return bindMap(sv, dst, path)
		}
	case reflect.Slice:
		switch sv.Kind() {
		case reflect.Slice, reflect.Array:
			return bindSlice(sv, dst, path)
		case reflect.String:
			// 逗号分隔的字符串
			if dst.Type().Elem().Kind() != reflect.Uint8 {
				parts := strings.Split(sv.String(), ",")
				items := make([]any, len(parts))
				for i, p := range parts {
					items[i] = strings.TrimSpace(p)
				}
				return bindSlice(reflect.ValueOf(items), dst, path)
			}
		}
	case reflect.String:
		switch sv.Kind() {
		case reflect.String:
			dst.SetString(sv.String())
		default:
			dst.SetString(fmt.Sprint(sv.Interface()))
		}
		return nil
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			return errors.WithMessagef(parseScalar(sv.String(), dst), "bind %s", name(path))
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("bind %s: cannot convert %s to %s", name(path), sv.Type(), dst.Type())
}

func name(path string) string {
	if path == "" {
		return "root"
	}
	return path
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func lookup(m reflect.Value, key string) (reflect.Value, bool) {
	var folded reflect.Value
	for _, k := range m.MapKeys() {
		ks := keyString(k)
		if ks == key {
			return m.MapIndex(k), true
		}
		if !folded.IsValid() && strings.EqualFold(ks, key) {
			folded = m.MapIndex(k)
		}
	}
	return folded, folded.IsValid()
}

func fieldKey(f reflect.StructField) string {
	tag := strings.Split(f.Tag.Get("cfg"), ",")[0]
	if tag == "-" {
		return ""
	}
	if tag != "" {
		return tag
	}
	return f.Name
}

func bindStruct(sv reflect.Value, dst reflect.Value, path string) error {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Tag.Get("cfg") == "" {
			if err := bind(sv.Interface(), dst.Field(i), path); err != nil {
				return err
			}
			continue
		}
		key := fieldKey(f)
		if key == "" {
			continue
		}
		v, ok := lookup(sv, key)
		if !ok {
			continue
		}
		if err := bind(v.Interface(), dst.Field(i), join(path, key)); err != nil {
			return err
		}
	}
	return nil
}

func bindMap(sv reflect.Value, dst reflect.Value, path string) error {
	t := dst.Type()
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(t, sv.Len()))
	}
	for _, k := range sv.MapKeys() {
		ks := keyString(k)
		key := reflect.New(t.Key()).Elem()
		if err := bind(ks, key, join(path, ks)); err != nil {
			return err
		}
		val := reflect.New(t.Elem()).Elem()
		if err := bind(sv.MapIndex(k).Interface(), val, join(path, ks)); err != nil {
			return err
		}
		dst.SetMapIndex(key, val)
	}
	return nil
}

func bindSlice(sv reflect.Value, dst reflect.Value, path string) error {
	out := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := bind(sv.Index(i).Interface(), out.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

// bindDuration 字符串按 time.ParseDuration 解析，整数为纳秒，浮点数为秒
func bindDuration(sv reflect.Value, dst reflect.Value, path string) error {
	switch sv.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(sv.String())
		if err != nil {
			return errors.Wrapf(err, "bind %s", name(path))
		}
		dst.SetInt(int64(d))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(sv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(sv.Uint()))
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(sv.Float() * float64(time.Second)))
	default:
		return errors.Errorf("bind %s: cannot convert %s to duration", name(path), sv.Type())
	}
	return nil
}

// parseScalar 把字符串解析为基本类型，默认值和字符串形式的配置都走这里
func parseScalar(s string, dst reflect.Value) error {
	s = strings.TrimSpace(s)
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.Wrapf(err, "invalid bool %q", s)
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if dst.Type() == durationType {
			d, err := time.ParseDuration(s)
			if err != nil {
				return errors.Wrapf(err, "invalid duration %q", s)
			}
			dst.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(s, 0, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int %q", s)
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 0, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint %q", s)
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float %q", s)
		}
		dst.SetFloat(f)
	default:
		return errors.Errorf("unsupported type %s", dst.Type())
	}
	return nil
}
