// Package authz 从任意单行 shell 命令串中提取出会实际执行的
// 程序名，供白名单判定使用。提取宁可多不可少：多提取只会让
// 判定更严格，漏提取则会放过危险命令
package authz

import (
	"fmt"
	"strings"
)

// placeholderPrefix 替换 $(...) 片段的占位符前缀
// 选用普通单词字符，保证不会被词法器再次切开
const placeholderPrefix = "__SGSUBST_"

// ExtractBaseCommands 返回输入中每个会执行的程序名，
// 按 "嵌套替换先执行" 的顺序排列并按首次出现去重
//
// 处理顺序:
//  1. 先摘出反引号替换 (通用词法器不处理一级反引号)，递归提取其内容
//  2. 用括号配对摘出 $(...) 替换为占位符，递归提取其内容
//  3. 对处理后的串做 POSIX 词法切分，沿操作符遍历取命令名
//
// 词法失败 (引号不配对等) 时退化为取原始串的第一个空白分隔
// 字段作为唯一结果，绝不返回空集放行
func ExtractBaseCommands(input string) []string {
	var nested []string

	cleaned := extractBackticks(input, &nested)
	cleaned, contents := replaceSubstitutions(cleaned)
	for _, c := range contents {
		nested = append(nested, ExtractBaseCommands(c)...)
	}

	var outer []string
	tokens, err := tokenize(cleaned)
	if err != nil {
		// 结构无法确定时保守地取第一个字段，避免空结果绕过白名单
		if fields := strings.Fields(input); len(fields) > 0 {
			outer = []string{fields[0]}
		}
	} else {
		outer = walkTokens(tokens)
	}

	return dedupe(append(nested, outer...))
}

// HasShellMetacharacters 判断命令串是否带有 shell 控制结构:
// 反引号、管道/逻辑/顺序操作符，或词法无法解析 (结构不明按危险处理)
func HasShellMetacharacters(input string) bool {
	if strings.Contains(input, "`") {
		return true
	}
	tokens, err := tokenize(input)
	if err != nil {
		return true
	}
	for _, tok := range tokens {
		if tok.Op {
			return true
		}
	}
	return false
}

// IsAllowed 判定整条命令串: 提取出的每个程序名都在白名单内才放行
func IsAllowed(command string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return false
	}
	allowed := make(map[string]struct{}, len(allowlist))
	for _, c := range allowlist {
		allowed[c] = struct{}{}
	}
	names := ExtractBaseCommands(command)
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		if _, ok := allowed[name]; !ok {
			return false
		}
	}
	return true
}

// extractBackticks 摘出所有成对反引号包裹的内容并从串中剥离，
// 内容递归提取后追加进 nested。反引号不配对时把剩余部分整体
// 当作替换内容，同样走保守路径
func extractBackticks(input string, nested *[]string) string {
	if !strings.Contains(input, "`") {
		return input
	}
	var out strings.Builder
	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) && runes[i+1] == '`' {
			out.WriteRune('`')
			i++
			continue
		}
		if runes[i] != '`' {
			out.WriteRune(runes[i])
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] != '`' {
			j++
		}
		content := string(runes[i+1 : min(j, len(runes))])
		if strings.TrimSpace(content) != "" {
			*nested = append(*nested, ExtractBaseCommands(content)...)
		}
		i = j
	}
	return out.String()
}

// replaceSubstitutions 用括号配对找出每个 $(...) 片段，
// 替换为占位符并返回各片段内容。简单的正则在嵌套
// $(echo $(whoami)) 场景下会提前截断，必须逐字符配对
func replaceSubstitutions(input string) (string, []string) {
	var contents []string
	var out strings.Builder
	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '$' || i+1 >= len(runes) || runes[i+1] != '(' {
			out.WriteRune(runes[i])
			continue
		}
		depth := 1
		j := i + 2
		for j < len(runes) && depth > 0 {
			switch runes[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			j++
		}
		end := j
		if depth == 0 {
			end = j - 1 // 去掉收尾的右括号
		}
		contents = append(contents, string(runes[i+2:end]))
		out.WriteString(fmt.Sprintf("%s%d__", placeholderPrefix, len(contents)-1))
		i = j - 1
	}
	return out.String(), contents
}

// walkTokens 沿词法流取命令名:
// 串首和每个操作符之后的第一个非选项词是命令名；
// "--" 之后的词也是命令名 (run-through 形式，如 sudo -- cmd)；
// 占位符之后的词也是命令名，因为替换结果经常充当下一个命令
func walkTokens(tokens []token) []string {
	var names []string
	expect := true
	for _, tok := range tokens {
		if tok.Op {
			expect = true
			continue
		}
		if tok.Text == "--" {
			expect = true
			continue
		}
		if strings.Contains(tok.Text, placeholderPrefix) {
			expect = true
			continue
		}
		if !expect {
			continue
		}
		if strings.HasPrefix(tok.Text, "-") || tok.Text == "" {
			// 选项永远不是命令名，继续找这一段里的第一个普通词
			continue
		}
		names = append(names, tok.Text)
		expect = false
	}
	return names
}

// dedupe 保持首次出现顺序去重
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
