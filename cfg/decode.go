package cfg

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Decode 按格式解码为配置树，支持 yaml、json、toml 和 ini
func Decode(format string, buf []byte) (*Value, error) {
	var data any
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(buf, &data); err != nil {
			return nil, errors.Wrap(err, "yaml.Unmarshal failed")
		}
	case "json":
		if err := json.Unmarshal(buf, &data); err != nil {
			return nil, errors.Wrap(err, "json.Unmarshal failed")
		}
	case "toml":
		var m map[string]any
		if err := toml.Unmarshal(buf, &m); err != nil {
			return nil, errors.Wrap(err, "toml.Unmarshal failed")
		}
		data = m
	case "ini":
		m, err := decodeIni(buf)
		if err != nil {
			return nil, err
		}
		data = m
	default:
		return nil, errors.Errorf("unsupported config format %q", format)
	}
	return NewValue(data), nil
}

// decodeIni section 名中的 . 表示嵌套，重复的键合并为数组
func decodeIni(buf []byte) (map[string]any, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:             true,
		SpaceBeforeInlineComment: true,
	}, buf)
	if err != nil {
		return nil, errors.Wrap(err, "ini.LoadSources failed")
	}

	result := map[string]any{}
	for _, section := range f.Sections() {
		node := result
		if section.Name() != ini.DefaultSection {
			for _, k := range strings.Split(section.Name(), ".") {
				child, ok := node[k].(map[string]any)
				if !ok {
					child = map[string]any{}
					node[k] = child
				}
				node = child
			}
		}
		for _, key := range section.Keys() {
			vals := key.ValueWithShadows()
			if len(vals) > 1 {
				items := make([]any, len(vals))
				for i, s := range vals {
					items[i] = iniScalar(s)
				}
				node[key.Name()] = items
				continue
			}
			node[key.Name()] = iniScalar(key.String())
		}
	}
	return result, nil
}

func iniScalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
