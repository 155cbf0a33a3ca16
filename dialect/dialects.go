package dialect

import "strings"

type Oracle struct{ base }

func NewOracle() *Oracle {
	return &Oracle{base{name: "oracle", placeholder: PlaceholderColonNum}}
}

func (d *Oracle) Paginate(query string) string {
	return "SELECT pq_outer.* FROM (SELECT ROWNUM rn, pq_inner.* FROM (" + query +
		") pq_inner) pq_outer WHERE pq_outer.rn >= ? AND pq_outer.rn <= ?"
}

func (d *Oracle) NextValue(sequence string) (string, bool) {
	return sequence + ".nextval", true
}

func (d *Oracle) CurrentValue(sequence string) (string, bool) {
	return "select " + sequence + ".currval from dual", true
}

func (d *Oracle) Returning(columns []string) (string, bool) {
	return "", false
}

type Postgres struct{ base }

func NewPostgres() *Postgres {
	return &Postgres{base{name: "postgres", placeholder: PlaceholderDollar}}
}

func (d *Postgres) Paginate(query string) string {
	return rowNumberWindow(query)
}

func (d *Postgres) NextValue(sequence string) (string, bool) {
	return "nextval('" + sequence + "')", true
}

func (d *Postgres) CurrentValue(sequence string) (string, bool) {
	return "select currval('" + sequence + "')", true
}

func (d *Postgres) Returning(columns []string) (string, bool) {
	if len(columns) == 0 {
		return "", false
	}
	return "returning " + strings.Join(columns, ","), true
}

type MySQL struct{ base }

func NewMySQL() *MySQL {
	return &MySQL{base{name: "mysql", placeholder: PlaceholderQuestion}}
}

func (d *MySQL) Paginate(query string) string {
	return rowNumberWindow(query)
}

func (d *MySQL) NextValue(sequence string) (string, bool) {
	return "", false
}

func (d *MySQL) CurrentValue(sequence string) (string, bool) {
	return "", false
}

func (d *MySQL) Returning(columns []string) (string, bool) {
	return "", false
}

type SQLite struct{ base }

func NewSQLite() *SQLite {
	return &SQLite{base{name: "sqlite3", placeholder: PlaceholderQuestion}}
}

func (d *SQLite) Paginate(query string) string {
	return rowNumberWindow(query)
}

func (d *SQLite) NextValue(sequence string) (string, bool) {
	return "", false
}

func (d *SQLite) CurrentValue(sequence string) (string, bool) {
	return "", false
}

// Returning SQLite 3.35 之后支持 RETURNING
func (d *SQLite) Returning(columns []string) (string, bool) {
	if len(columns) == 0 {
		return "", false
	}
	return "returning " + strings.Join(columns, ","), true
}
