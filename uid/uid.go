package uid

import (
	"context"

	"github.com/hatlonely/dbq/ref"
	"github.com/hatlonely/dbq/uid/intgen"
	"github.com/hatlonely/dbq/uid/strgen"
	"github.com/pkg/errors"
)

// Generator 在插入前为带序列的标识列生成值
// sequence 为列上声明的序列名，同一生成器可以服务多个序列
type Generator interface {
	Next(ctx context.Context, sequence string) (any, error)
}

var (
	_ Generator = (*intgen.RedisSequence)(nil)
	_ Generator = (*intgen.LocalSequence)(nil)
	_ Generator = (*intgen.Snowflake)(nil)
	_ Generator = (*strgen.UUID)(nil)
)

// NewGeneratorWithOptions 通过 ref 按名称创建生成器
func NewGeneratorWithOptions(options *ref.TypeOptions) (Generator, error) {
	g, err := ref.Build[Generator](options)
	if err != nil {
		return nil, errors.WithMessage(err, "build generator failed")
	}
	return g, nil
}

// NewLocalSequence 进程内的递增序列，主要用于测试和单机场景
func NewLocalSequence() Generator {
	return intgen.NewLocalSequence(nil)
}

// NewUUID 不带连字符的 v7 UUID
func NewUUID() Generator {
	return strgen.NewUUIDWithOptions(&strgen.UUIDOptions{Version: "v7"})
}
