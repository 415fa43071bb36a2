package authz

import (
	"fmt"
	"strings"
)

// token 是一次词法切分的产物
// Op 为 true 时 Text 是控制操作符 (| & && || ;)
type token struct {
	Text string
	Op   bool
}

// tokenize 按 POSIX shell 词法规则切分单行命令串:
// 单引号内原样保留，双引号内支持 \" 和 \\ 转义，
// 引号外的反斜杠转义下一个字符，未加引号的 | & ; 以及换行
// 作为操作符单独成词
// 引号不配对时返回错误，由调用方降级处理
func tokenize(input string) ([]token, error) {
	var tokens []token
	var word strings.Builder
	inWord := false

	flush := func() {
		if inWord {
			tokens = append(tokens, token{Text: word.String()})
			word.Reset()
			inWord = false
		}
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\'':
			// 单引号：到下一个单引号为止不做任何解释
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				word.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated single quote at offset %d", i)
			}
			inWord = true
			i = j
		case ch == '"':
			// 双引号：\" 和 \\ 转义，其余字符原样
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' && j+1 < len(runes) && (runes[j+1] == '"' || runes[j+1] == '\\') {
					j++
				}
				word.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated double quote at offset %d", i)
			}
			inWord = true
			i = j
		case ch == '\\':
			if i+1 < len(runes) {
				word.WriteRune(runes[i+1])
				inWord = true
				i++
			}
		case ch == ' ' || ch == '\t':
			flush()
		case ch == '\n' || ch == ';':
			flush()
			tokens = append(tokens, token{Text: ";", Op: true})
		case ch == '|':
			flush()
			if i+1 < len(runes) && runes[i+1] == '|' {
				tokens = append(tokens, token{Text: "||", Op: true})
				i++
			} else {
				tokens = append(tokens, token{Text: "|", Op: true})
			}
		case ch == '&':
			flush()
			if i+1 < len(runes) && runes[i+1] == '&' {
				tokens = append(tokens, token{Text: "&&", Op: true})
				i++
			} else {
				tokens = append(tokens, token{Text: "&", Op: true})
			}
		default:
			word.WriteRune(ch)
			inWord = true
		}
	}
	flush()
	return tokens, nil
}
