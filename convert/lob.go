package convert

import (
	"io"

	"github.com/pkg/errors"
)

var ErrLOBConsumed = errors.New("large object already consumed")

// LOB 大对象句柄，只能被读取一次
// 读取完成后如果句柄持有服务端资源，会调用 free 释放
type LOB struct {
	r        io.Reader
	free     func() error
	binary   bool
	consumed bool
}

// NewBlob 创建二进制大对象
func NewBlob(r io.Reader, free func() error) *LOB {
	return &LOB{r: r, free: free, binary: true}
}

// NewClob 创建字符大对象
func NewClob(r io.Reader, free func() error) *LOB {
	return &LOB{r: r, free: free}
}

// Binary 是否为二进制大对象
func (l *LOB) Binary() bool {
	return l.binary
}

// ReadAll 完整读取大对象内容并释放句柄
func (l *LOB) ReadAll() ([]byte, error) {
	if l.consumed {
		return nil, ErrLOBConsumed
	}
	l.consumed = true

	data, err := io.ReadAll(l.r)
	if l.free != nil {
		if ferr := l.free(); ferr != nil && err == nil {
			err = errors.Wrap(ferr, "free large object failed")
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "read large object failed")
	}
	return data, nil
}
