package convert

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var integerKinds = []Kind{Int8, Int16, Int32, Int64, Int}

var floatKinds = []Kind{Float32, Float64}

// 数据库返回的文本时间格式
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func init() {
	for _, from := range integerKinds {
		registerInteger(from)
	}
	for _, from := range floatKinds {
		registerFloat(from)
	}

	register(Float32, Float64, func(v any) (any, error) { return float64(v.(float32)), nil })
	register(Float64, Float32, func(v any) (any, error) { return float32(v.(float64)), nil })

	// 布尔值与字符串的转换不对称：布尔转字符串为 "true"/"false"，字符串只有 "y" 为真
	register(Bool, String, func(v any) (any, error) { return strconv.FormatBool(v.(bool)), nil })
	register(String, Bool, func(v any) (any, error) { return strings.EqualFold(v.(string), "y"), nil })
	register(Bytes, Bool, func(v any) (any, error) { return strings.EqualFold(string(v.([]byte)), "y"), nil })

	register(Decimal, String, func(v any) (any, error) { return v.(decimal.Decimal).String(), nil })
	register(String, Decimal, func(v any) (any, error) { return decimal.NewFromString(strings.TrimSpace(v.(string))) })
	register(Bytes, Decimal, func(v any) (any, error) { return decimal.NewFromString(strings.TrimSpace(string(v.([]byte)))) })

	register(String, Bytes, func(v any) (any, error) { return []byte(v.(string)), nil })
	register(Bytes, String, func(v any) (any, error) { return string(v.([]byte)), nil })

	register(String, Time, func(v any) (any, error) { return parseTime(v.(string)) })
	register(Bytes, Time, func(v any) (any, error) { return parseTime(string(v.([]byte))) })
	register(Time, String, func(v any) (any, error) { return v.(time.Time).Format(time.RFC3339Nano), nil })

	register(Blob, Bytes, func(v any) (any, error) { return v.(*LOB).ReadAll() })
	register(Clob, String, func(v any) (any, error) {
		data, err := v.(*LOB).ReadAll()
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
	register(Clob, Bytes, func(v any) (any, error) { return v.(*LOB).ReadAll() })
	register(Bytes, Blob, func(v any) (any, error) { return NewBlob(bytes.NewReader(v.([]byte)), nil), nil })
	register(String, Clob, func(v any) (any, error) { return NewClob(strings.NewReader(v.(string)), nil), nil })
}

func registerInteger(from Kind) {
	register(from, Bool, func(v any) (any, error) { return toInt64(v) != 0, nil })
	register(Bool, from, func(v any) (any, error) {
		if v.(bool) {
			return fromInt64(1, from)
		}
		return fromInt64(0, from)
	})

	for _, to := range integerKinds {
		if to == from {
			continue
		}
		to := to
		register(from, to, func(v any) (any, error) { return fromInt64(toInt64(v), to) })
	}

	register(from, Float64, func(v any) (any, error) { return float64(toInt64(v)), nil })
	register(from, Float32, func(v any) (any, error) { return float32(toInt64(v)), nil })
	register(from, Decimal, func(v any) (any, error) { return decimal.NewFromInt(toInt64(v)), nil })
	register(Decimal, from, func(v any) (any, error) {
		d := v.(decimal.Decimal)
		if !d.Equal(d.Truncate(0)) {
			return nil, errors.Errorf("decimal %s is not an integer", d)
		}
		return fromInt64(d.IntPart(), from)
	})

	register(from, String, func(v any) (any, error) { return strconv.FormatInt(toInt64(v), 10), nil })
	register(String, from, func(v any) (any, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(v.(string)), 10, 64)
		if err != nil {
			return nil, err
		}
		return fromInt64(n, from)
	})
	register(Bytes, from, func(v any) (any, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(string(v.([]byte))), 10, 64)
		if err != nil {
			return nil, err
		}
		return fromInt64(n, from)
	})
}

func registerFloat(from Kind) {
	register(from, Decimal, func(v any) (any, error) { return decimal.NewFromFloat(toFloat64(v)), nil })
	register(Decimal, from, func(v any) (any, error) {
		f, _ := v.(decimal.Decimal).Float64()
		if from == Float32 {
			return float32(f), nil
		}
		return f, nil
	})
	register(from, String, func(v any) (any, error) { return strconv.FormatFloat(toFloat64(v), 'f', -1, 64), nil })
	register(String, from, func(v any) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.(string)), 64)
		if err != nil {
			return nil, err
		}
		if from == Float32 {
			return float32(f), nil
		}
		return f, nil
	})
	register(Bytes, from, func(v any) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v.([]byte))), 64)
		if err != nil {
			return nil, err
		}
		if from == Float32 {
			return float32(f), nil
		}
		return f, nil
	})

	// 部分驱动把整数列按浮点返回，只接受没有小数部分的值
	for _, to := range integerKinds {
		to := to
		register(from, to, func(v any) (any, error) {
			f := toFloat64(v)
			if f != math.Trunc(f) {
				return nil, errors.Errorf("float %v is not an integer", f)
			}
			return fromInt64(int64(f), to)
		})
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func fromInt64(n int64, to Kind) (any, error) {
	switch to {
	case Int8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, errors.Errorf("value %d overflows int8", n)
		}
		return int8(n), nil
	case Int16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, errors.Errorf("value %d overflows int16", n)
		}
		return int16(n), nil
	case Int32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, errors.Errorf("value %d overflows int32", n)
		}
		return int32(n), nil
	case Int64:
		return n, nil
	case Int:
		if n < math.MinInt || n > math.MaxInt {
			return nil, errors.Errorf("value %d overflows int", n)
		}
		return int(n), nil
	}
	return nil, errors.Errorf("%s is not an integer kind", to)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("cannot parse %q as time", s)
}
