package meta

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Registry 实体注册表，按名称和 Go 类型索引
// 注册完成后只读，可以并发查询
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Entity
	byType map[reflect.Type]*Entity
}

func NewRegistry() *Registry {
	return &Registry{
		byName: map[string]*Entity{},
		byType: map[reflect.Type]*Entity{},
	}
}

// Register 从结构体标签注册实体，关联字段的目标类型会被一并注册
func (r *Registry) Register(v any) (*Entity, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, errors.New("cannot register nil")
	}
	if rt, ok := v.(reflect.Type); ok {
		t = rt
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("%s is not a struct", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerType(t)
}

// MustRegister 注册失败时 panic
func (r *Registry) MustRegister(v any) *Entity {
	e, err := r.Register(v)
	if err != nil {
		panic(err)
	}
	return e
}

func (r *Registry) registerType(t reflect.Type) (*Entity, error) {
	if e, ok := r.byType[t]; ok {
		return e, nil
	}

	e, err := parseStruct(t)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse %s failed", t)
	}
	if err := r.add(e); err != nil {
		return nil, err
	}
	r.byType[t] = e

	for _, j := range e.Joins {
		if _, ok := r.byName[j.Target]; ok {
			continue
		}
		if _, err := r.registerType(j.Elem); err != nil {
			return nil, errors.WithMessagef(err, "register join target of %s.%s failed", e.Name, j.Field)
		}
	}
	return e, nil
}

// RegisterOptions 注册声明式实体
func (r *Registry) RegisterOptions(options *EntityOptions) (*Entity, error) {
	e, err := buildEntity(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "build entity %s failed", options.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.add(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Registry) add(e *Entity) error {
	if old, ok := r.byName[e.Name]; ok && old.Type != e.Type {
		return errors.Errorf("entity %s already registered", e.Name)
	}
	e.registry = r
	e.index()
	for _, j := range e.Joins {
		for _, p := range j.On {
			if e.Column(p.Local) == nil {
				return errors.Errorf("join %s.%s: unknown local field %s", e.Name, j.Field, p.Local)
			}
		}
	}
	r.byName[e.Name] = e
	return nil
}

// Entity 按名称查找实体
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrEntityNotFound, "%s", name)
	}
	return e, nil
}

// EntityOf 按 Go 类型查找实体
func (r *Registry) EntityOf(t reflect.Type) (*Entity, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	if !ok {
		return nil, errors.Wrapf(ErrEntityNotFound, "%s", t)
	}
	return e, nil
}

// Entities 返回所有已注册实体名
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

var defaultRegistry = NewRegistry()

// Default 返回默认注册表
func Default() *Registry {
	return defaultRegistry
}
