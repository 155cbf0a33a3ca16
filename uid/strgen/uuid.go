package strgen

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type UUIDOptions struct {
	Version     string `cfg:"version" def:"v4" validate:"oneof=v1 v4 v6 v7"`
	WithHyphens bool   `cfg:"withHyphens"`
}

// UUID 为字符串标识列生成 UUID，默认不带连字符
type UUID struct {
	version     string
	withHyphens bool
}

func NewUUIDWithOptions(options *UUIDOptions) *UUID {
	if options == nil {
		options = &UUIDOptions{}
	}
	version := options.Version
	if version == "" {
		version = "v4"
	}
	return &UUID{version: version, withHyphens: options.WithHyphens}
}

func (g *UUID) Next(ctx context.Context, sequence string) (any, error) {
	return g.Generate()
}

func (g *UUID) Generate() (string, error) {
	var u uuid.UUID
	var err error
	switch g.version {
	case "v1":
		u, err = uuid.NewUUID()
	case "v6":
		u, err = uuid.NewV6()
	case "v7":
		u, err = uuid.NewV7()
	default:
		u, err = uuid.NewRandom()
	}
	if err != nil {
		return "", errors.Wrapf(err, "generate uuid %s failed", g.version)
	}

	if g.withHyphens {
		return u.String(), nil
	}
	return hex.EncodeToString(u[:]), nil
}
