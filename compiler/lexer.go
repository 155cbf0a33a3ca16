package compiler

import (
	"strings"

	"github.com/hatlonely/dbq/dialect"
)

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokPath            // 标识符，可能带点，如 name、e.name、dept.name、e.*
	tokString          // 单引号字符串
	tokQuoted          // 双引号或反引号标识符、注释
	tokNumber
	tokParam // ?
	tokNamed // :name
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

func (t token) is(keyword string) bool {
	return t.kind == tokPath && strings.EqualFold(t.text, keyword)
}

func isLetter(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// lex 把片段切分为记号，拼接所有记号的文本可以还原输入
func lex(s string) []token {
	var tokens []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpace(c):
			j := i
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			tokens = append(tokens, token{tokSpace, s[i:j]})
			i = j
		case c == '\'':
			j, _ := dialect.SkipQuoted(s, i)
			tokens = append(tokens, token{tokString, s[i:j]})
			i = j
		case c == '"' || c == '`' || strings.HasPrefix(s[i:], "--") || strings.HasPrefix(s[i:], "/*"):
			j, _ := dialect.SkipQuoted(s, i)
			tokens = append(tokens, token{tokQuoted, s[i:j]})
			i = j
		case isLetter(c):
			j := i
			for j < len(s) {
				if isLetter(s[j]) || isDigit(s[j]) {
					j++
					continue
				}
				// 点之后必须是标识符或 *
				if s[j] == '.' && j+1 < len(s) && (isLetter(s[j+1]) || s[j+1] == '*') {
					j++
					if s[j] == '*' {
						j++
						break
					}
					continue
				}
				break
			}
			tokens = append(tokens, token{tokPath, s[i:j]})
			i = j
		case isDigit(c):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, s[i:j]})
			i = j
		case c == '?':
			tokens = append(tokens, token{tokParam, "?"})
			i++
		case c == ':' && i+1 < len(s) && isLetter(s[i+1]):
			j := i + 1
			for j < len(s) && (isLetter(s[j]) || isDigit(s[j])) {
				j++
			}
			tokens = append(tokens, token{tokNamed, s[i:j]})
			i = j
		default:
			tokens = append(tokens, token{tokPunct, s[i : i+1]})
			i++
		}
	}
	return tokens
}

func join(tokens []token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.text)
	}
	return b.String()
}

// trim 去掉首尾空白记号
func trim(tokens []token) []token {
	for len(tokens) > 0 && tokens[0].kind == tokSpace {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == tokSpace {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// next 返回 i 之后第一个非空白记号的位置
func next(tokens []token, i int) int {
	for i++; i < len(tokens); i++ {
		if tokens[i].kind != tokSpace {
			return i
		}
	}
	return -1
}

// splitTop 在括号外的逗号处切分
func splitTop(tokens []token) [][]token {
	var items [][]token
	depth, start := 0, 0
	for i, t := range tokens {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(":
			depth++
		case ")":
			depth--
		case ",":
			if depth == 0 {
				items = append(items, tokens[start:i])
				start = i + 1
			}
		}
	}
	return append(items, tokens[start:])
}
