package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Convertable 可以把自身转换为构造函数参数的配置数据
type Convertable interface {
	// ConvertTo object 是指向目标对象的指针
	ConvertTo(object any) error
}

// TypeOptions 通过名称描述一个待构造的对象
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type constructor struct {
	fn           reflect.Value
	optionsType  reflect.Type // 无参构造函数为 nil
	returnsError bool
}

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}
	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must return 1 or 2 values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value of constructor must be error")
	}

	c := &constructor{fn: fv, returnsError: ft.NumOut() == 2}
	if ft.NumIn() == 1 {
		c.optionsType = ft.In(0)
	}
	return c, nil
}

// options 把传入的配置转换为构造函数的参数
func (c *constructor) options(options any) (reflect.Value, error) {
	if options == nil {
		return reflect.Value{}, errors.New("constructor requires options but got nil")
	}

	convertable, ok := options.(Convertable)
	if !ok {
		rv := reflect.ValueOf(options)
		if !rv.Type().AssignableTo(c.optionsType) {
			return reflect.Value{}, errors.Errorf("options %T is not assignable to %s", options, c.optionsType)
		}
		return rv, nil
	}

	if c.optionsType.Kind() == reflect.Ptr {
		target := reflect.New(c.optionsType.Elem())
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %s failed", c.optionsType)
		}
		return target, nil
	}
	target := reflect.New(c.optionsType)
	if err := convertable.ConvertTo(target.Interface()); err != nil {
		return reflect.Value{}, errors.WithMessagef(err, "convert options to %s failed", c.optionsType)
	}
	return target.Elem(), nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value
	if c.optionsType != nil {
		arg, err := c.options(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

var constructors sync.Map

func key(namespace, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，同一函数重复注册会被忽略
func Register(namespace string, typ string, fn any) error {
	k := key(namespace, typ)
	if v, ok := constructors.Load(k); ok {
		if v.(*constructor).fn.Pointer() == reflect.ValueOf(fn).Pointer() {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with different function", k)
	}

	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s failed", k)
	}
	constructors.Store(k, c)
	return nil
}

// RegisterT 以类型的包路径和类型名作为 namespace 和 type 注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name of %s", t)
	}
	return t.PkgPath(), t.Name(), nil
}

// New 按名称构造对象
func New(namespace string, typ string, options any) (any, error) {
	v, ok := constructors.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", key(namespace, typ))
	}
	return v.(*constructor).new(options)
}

// NewT 按类型构造对象
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return zero, err
	}
	obj, err := New(namespace, typ, options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object %T is not %T", obj, zero)
	}
	return t, nil
}

// Build 按 TypeOptions 构造对象并断言为接口 I
func Build[I any](options *TypeOptions) (I, error) {
	var zero I
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	obj, err := New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return zero, errors.WithMessage(err, "ref.New failed")
	}
	i, ok := obj.(I)
	if !ok {
		return zero, errors.Errorf("%T does not implement %s", obj, reflect.TypeOf((*I)(nil)).Elem())
	}
	return i, nil
}
