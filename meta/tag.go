package meta

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

// Table 嵌入到结构体中声明表信息
//
//	type Employee struct {
//	    meta.Table `rdb:"EMPLOYEE,alias=e,schema=hr" sec:"everyone=00,admin=11"`
//	    ID     int64  `rdb:"ID,id,seq=EMP_SEQ"`
//	    Name   string `rdb:"NAME" sec:"everyone=111"`
//	    DeptId int64  `rdb:"DEPT_ID"`
//	    Dept   *Department `rdb:"join,on=DeptId:ID"`
//	}
type Table struct{}

var tableType = reflect.TypeOf(Table{})

type tagOptions struct {
	name    string
	flags   map[string]bool
	options map[string]string
}

func parseTag(tag string) tagOptions {
	parts := strings.Split(tag, ",")
	opts := tagOptions{
		name:    strings.TrimSpace(parts[0]),
		flags:   map[string]bool{},
		options: map[string]string{},
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if kv := strings.SplitN(part, "=", 2); len(kv) == 2 {
			opts.options[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
		} else {
			opts.flags[strings.ToLower(part)] = true
		}
	}
	return opts
}

func parseStruct(t reflect.Type) (*Entity, error) {
	e := &Entity{
		Name:  t.Name(),
		Alias: t.Name(),
		Table: upperSnake(t.Name()),
		Type:  t,
	}

	for _, field := range reflect.VisibleFields(t) {
		if field.Type == tableType {
			if err := parseTable(e, field); err != nil {
				return nil, err
			}
			continue
		}
		if field.Anonymous || !field.IsExported() {
			continue
		}

		tag, ok := field.Tag.Lookup("rdb")
		if !ok || tag == "-" {
			continue
		}
		opts := parseTag(tag)

		if opts.name == "join" {
			j, err := parseJoin(field, opts)
			if err != nil {
				return nil, errors.WithMessagef(err, "field %s", field.Name)
			}
			e.Joins = append(e.Joins, j)
			continue
		}

		c, err := parseColumn(field, opts)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", field.Name)
		}
		e.Columns = append(e.Columns, c)
	}

	if len(e.Columns) == 0 {
		return nil, errors.New("no rdb columns declared")
	}
	return e, nil
}

func parseTable(e *Entity, field reflect.StructField) error {
	opts := parseTag(field.Tag.Get("rdb"))
	if opts.name != "" {
		e.Table = opts.name
	}
	if alias := opts.options["alias"]; alias != "" {
		e.Alias = alias
	}
	if name := opts.options["name"]; name != "" {
		e.Name = name
	}
	e.Schema = opts.options["schema"]

	if sec, ok := field.Tag.Lookup("sec"); ok {
		rule, err := security.ParseRule(sec)
		if err != nil {
			return errors.WithMessage(err, "table security")
		}
		e.Security = rule
	}
	return nil
}

func parseColumn(field reflect.StructField, opts tagOptions) (*Column, error) {
	c := &Column{
		Field:    lowerCamel(field.Name),
		GoName:   field.Name,
		Name:     opts.name,
		Identity: opts.flags["id"] || opts.flags["identity"],
		Sequence: opts.options["seq"],
		Kind:     convert.KindFor(field.Type),
		Type:     field.Type,
		Index:    field.Index,
	}
	if c.Name == "" {
		c.Name = upperSnake(field.Name)
	}
	if name := opts.options["field"]; name != "" {
		c.Field = name
	}
	if c.Sequence != "" {
		c.Identity = true
	}
	if c.Kind == convert.Invalid {
		return nil, errors.Errorf("unsupported column type %s", field.Type)
	}

	if sec, ok := field.Tag.Lookup("sec"); ok {
		rule, err := security.ParseRule(sec)
		if err != nil {
			return nil, err
		}
		c.Security = rule
	}
	return c, nil
}

func parseJoin(field reflect.StructField, opts tagOptions) (*Join, error) {
	j := &Join{
		Field:  lowerCamel(field.Name),
		GoName: field.Name,
		Link:   opts.options["link"],
		Type:   field.Type,
		Index:  field.Index,
	}
	if name := opts.options["field"]; name != "" {
		j.Field = name
	}

	t := field.Type
	switch t.Kind() {
	case reflect.Slice:
		j.Cardinality = List
		if opts.flags["set"] {
			j.Cardinality = Set
		}
		t = t.Elem()
	case reflect.Map:
		j.Cardinality = Map
		t = t.Elem()
	default:
		j.Cardinality = One
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("join target %s is not a struct", t)
	}
	j.Elem = t
	j.Target = t.Name()
	if target := opts.options["target"]; target != "" {
		j.Target = target
	}

	var err error
	if j.On, err = parsePairs(opts.options["on"]); err != nil {
		return nil, err
	}
	if len(j.On) == 0 {
		return nil, errors.New("join requires on=local:foreign")
	}
	if j.Linked() {
		if j.LinkOn, err = parsePairs(opts.options["via"]); err != nil {
			return nil, err
		}
		if len(j.LinkOn) == 0 {
			return nil, errors.New("linked join requires via=link:foreign")
		}
	}
	return j, nil
}

// parsePairs 解析 "A:B;C:D"
func parsePairs(s string) ([]Pair, error) {
	var pairs []Pair
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" || strings.TrimSpace(kv[1]) == "" {
			return nil, errors.Errorf("invalid field pair %q", part)
		}
		pairs = append(pairs, Pair{Local: strings.TrimSpace(kv[0]), Foreign: strings.TrimSpace(kv[1])})
	}
	return pairs, nil
}

// lowerCamel DeptID -> deptID, ID -> id, HTTPServer -> httpServer
func lowerCamel(s string) string {
	r := []rune(s)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	if n > 1 && n < len(r) {
		n--
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// upperSnake DeptId -> DEPT_ID, HTTPServer -> HTTP_SERVER
func upperSnake(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if i > 0 && unicode.IsUpper(c) {
			prev := r[i-1]
			nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(c))
	}
	return b.String()
}
