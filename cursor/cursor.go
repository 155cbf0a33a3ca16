package cursor

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hatlonely/dbq/convert"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrNoRow         = errors.New("no current row")
)

// Row 一行结果，键为大写列名
type Row map[string]any

// Cursor 缓冲游标，构造时读完全部结果，之后与连接无关
// 只能向前移动，遍历结束后不会再返回任何行
type Cursor struct {
	columns []string
	rows    []Row
	current Row
	started bool
}

// New 从已读取的行构造游标，列名统一转为大写
func New(rows []Row) *Cursor {
	c := &Cursor{rows: make([]Row, 0, len(rows))}
	for _, r := range rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[strings.ToUpper(k)] = v
		}
		c.rows = append(c.rows, row)
	}
	if len(c.rows) > 0 {
		for k := range c.rows[0] {
			c.columns = append(c.columns, k)
		}
	}
	return c
}

// Drain 读取全部结果后关闭 rows
func Drain(rows *sql.Rows) (*Cursor, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "rows.Columns failed")
	}
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = strings.ToUpper(col)
	}

	c := &Cursor{columns: names}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}

		row := make(Row, len(columns))
		for i, name := range names {
			row[name] = values[i]
		}
		c.rows = append(c.rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Err")
	}
	return c, nil
}

// Next 第一次调用定位到第一行，之后丢弃当前行并定位到下一行
func (c *Cursor) Next() bool {
	if c.started && len(c.rows) > 0 {
		c.rows[0] = nil
		c.rows = c.rows[1:]
	}
	c.started = true
	if len(c.rows) == 0 {
		c.current = nil
		return false
	}
	c.current = c.rows[0]
	return true
}

// Row 返回当前行，没有时返回 nil
func (c *Cursor) Row() Row {
	return c.current
}

// Len 剩余的行数，包括当前行
func (c *Cursor) Len() int {
	return len(c.rows)
}

// Columns 结果集的列名
func (c *Cursor) Columns() []string {
	return c.columns
}

// Value 返回当前行中列的原始值，列名大小写不敏感
func (c *Cursor) Value(column string) (any, error) {
	if c.current == nil {
		return nil, ErrNoRow
	}
	v, ok := c.current[strings.ToUpper(column)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownColumn, "%s", column)
	}
	return v, nil
}

// Get 读取当前行的列值并转换为指定类型
func (c *Cursor) Get(column string, kind convert.Kind) (any, error) {
	v, err := c.Value(column)
	if err != nil {
		return nil, err
	}
	return convert.Convert(v, kind)
}

func (c *Cursor) GetString(column string) (string, error) {
	v, err := c.Get(column, convert.String)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cursor) GetInt(column string) (int, error) {
	v, err := c.Get(column, convert.Int)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Cursor) GetInt64(column string) (int64, error) {
	v, err := c.Get(column, convert.Int64)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int64), nil
}

func (c *Cursor) GetFloat64(column string) (float64, error) {
	v, err := c.Get(column, convert.Float64)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Cursor) GetBool(column string) (bool, error) {
	v, err := c.Get(column, convert.Bool)
	if err != nil || v == nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Cursor) GetBytes(column string) ([]byte, error) {
	v, err := c.Get(column, convert.Bytes)
	if err != nil || v == nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cursor) GetDecimal(column string) (decimal.Decimal, error) {
	v, err := c.Get(column, convert.Decimal)
	if err != nil || v == nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (c *Cursor) GetTime(column string) (time.Time, error) {
	v, err := c.Get(column, convert.Time)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}
