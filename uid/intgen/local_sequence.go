package intgen

import (
	"context"
	"sync"
)

type LocalSequenceOptions struct {
	// Start 每个序列生成的第一个值
	Start int64 `cfg:"start" def:"1"`
}

// LocalSequence 进程内按序列名独立递增
type LocalSequence struct {
	mu     sync.Mutex
	start  int64
	values map[string]int64
}

func NewLocalSequence(options *LocalSequenceOptions) *LocalSequence {
	start := int64(1)
	if options != nil && options.Start != 0 {
		start = options.Start
	}
	return &LocalSequence{start: start, values: map[string]int64{}}
}

func (g *LocalSequence) Next(ctx context.Context, sequence string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.values[sequence]
	if !ok {
		v = g.start
	} else {
		v++
	}
	g.values[sequence] = v
	return v, nil
}
