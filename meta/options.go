package meta

import (
	"strings"

	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
)

// EntityOptions 声明式实体配置，没有对应的 Go 类型
type EntityOptions struct {
	Name     string          `cfg:"name" validate:"required"`
	Table    string          `cfg:"table" validate:"required"`
	Alias    string          `cfg:"alias"`
	Schema   string          `cfg:"schema"`
	Security string          `cfg:"security"`
	Columns  []ColumnOptions `cfg:"columns" validate:"required,dive"`
	Joins    []JoinOptions   `cfg:"joins" validate:"dive"`
}

type ColumnOptions struct {
	Field    string `cfg:"field" validate:"required"`
	Column   string `cfg:"column"`
	Type     string `cfg:"type" def:"string"`
	Identity bool   `cfg:"identity"`
	Sequence string `cfg:"sequence"`
	Security string `cfg:"security"`
}

type JoinOptions struct {
	Field       string   `cfg:"field" validate:"required"`
	Target      string   `cfg:"target" validate:"required"`
	Link        string   `cfg:"link"`
	On          []string `cfg:"on" validate:"required"`
	Via         []string `cfg:"via"`
	Cardinality string   `cfg:"cardinality" def:"one" validate:"omitempty,oneof=one list set map"`
}

func buildEntity(options *EntityOptions) (*Entity, error) {
	if options == nil || options.Name == "" || options.Table == "" {
		return nil, errors.New("entity requires name and table")
	}
	e := &Entity{
		Name:   options.Name,
		Table:  options.Table,
		Alias:  options.Alias,
		Schema: options.Schema,
	}
	if e.Alias == "" {
		e.Alias = e.Name
	}
	if options.Security != "" {
		rule, err := security.ParseRule(options.Security)
		if err != nil {
			return nil, errors.WithMessage(err, "table security")
		}
		e.Security = rule
	}

	for _, co := range options.Columns {
		c := &Column{
			Field:    co.Field,
			Name:     co.Column,
			Identity: co.Identity || co.Sequence != "",
			Sequence: co.Sequence,
			Kind:     convert.String,
		}
		if c.Name == "" {
			c.Name = upperSnake(co.Field)
		}
		if co.Type != "" {
			kind, ok := convert.ParseKind(co.Type)
			if !ok {
				return nil, errors.Errorf("column %s: unknown type %s", co.Field, co.Type)
			}
			c.Kind = kind
		}
		if co.Security != "" {
			rule, err := security.ParseRule(co.Security)
			if err != nil {
				return nil, errors.WithMessagef(err, "column %s security", co.Field)
			}
			c.Security = rule
		}
		e.Columns = append(e.Columns, c)
	}
	if len(e.Columns) == 0 {
		return nil, errors.New("no columns declared")
	}

	for _, jo := range options.Joins {
		j := &Join{
			Field:  jo.Field,
			Target: jo.Target,
			Link:   jo.Link,
		}
		switch strings.ToLower(jo.Cardinality) {
		case "", "one":
			j.Cardinality = One
		case "list":
			j.Cardinality = List
		case "set":
			j.Cardinality = Set
		case "map":
			j.Cardinality = Map
		default:
			return nil, errors.Errorf("join %s: unknown cardinality %s", jo.Field, jo.Cardinality)
		}
		var err error
		if j.On, err = parsePairs(strings.Join(jo.On, ";")); err != nil {
			return nil, err
		}
		if len(j.On) == 0 {
			return nil, errors.Errorf("join %s requires on", jo.Field)
		}
		if j.Linked() {
			if j.LinkOn, err = parsePairs(strings.Join(jo.Via, ";")); err != nil {
				return nil, err
			}
			if len(j.LinkOn) == 0 {
				return nil, errors.Errorf("join %s requires via", jo.Field)
			}
		}
		e.Joins = append(e.Joins, j)
	}
	return e, nil
}
