// Package tsquery file: internal/tsquery/compiler.go
//
// 把用户输入的布尔检索串编译为 PostgreSQL tsquery 表达式。
// 支持空格 / + / & 表示与，| 表示或，! 或 - 表示非，括号分组，双引号短语。
// 生成的表达式与旧版服务逐字节一致，便于迁移时对比验证。
package tsquery

import (
	"regexp"
	"strings"
)

// Phrase 是需要做大小写不敏感精确匹配校验的短语
type Phrase struct {
	Text    string
	Hashtag bool
}

// Expression 是编译结果。Query 为空表示输入没有产生任何检索词。
type Expression struct {
	Query   string
	Include []Phrase
	Exclude []Phrase
}

// Empty 报告表达式是否不会产生任何 SQL 条件
func (e *Expression) Empty() bool {
	return e.Query == "" && len(e.Include) == 0 && len(e.Exclude) == 0
}

const (
	quoteMark   = "\x01"
	quoteOffset = 256
	delimiters  = "|()!- "
	wrapChars   = "&|!()"
)

var phraseSplit = regexp.MustCompile(`- !()|&+:`)

// group 是一个已归约的括号子表达式
type group struct {
	expr    string
	include []string
	exclude []string
}

// token 要么是原始文本，要么是归约后的括号组
type token struct {
	text string
	sub  *group
}

// Compile 编译检索串。该函数没有副作用，可安全并发调用。
func Compile(query string) *Expression {
	quotes := make(map[string]string)
	pieces := strings.Split(strings.TrimSpace(strings.ReplaceAll(query, quoteMark, " ")), `"`)
	for i := 1; i < len(pieces); i += 2 {
		if pieces[i] == "" {
			continue
		}
		key := quoteMark + string(rune(len(quotes)+quoteOffset))
		quotes[key] = pieces[i]
		pieces[i] = key
	}

	processed := strings.NewReplacer("+", " ", "&", " ", ":", " ", "-", "!").Replace(strings.Join(pieces, ""))
	processed = strings.TrimSpace(processed)

	expr, _, include, exclude := parse(tokenize(processed), quotes)
	for key, phrase := range quotes {
		expr = strings.ReplaceAll(expr, key, wrap(strings.Join(strings.Fields(strings.Join(phraseSplit.Split(phrase, -1), " ")), "&")))
	}

	return &Expression{
		Query:   expr,
		Include: exactPhrases(include, quotes),
		Exclude: exactPhrases(exclude, quotes),
	}
}

// tokenize 按分隔符切分并保留分隔符本身，每个片段去除首尾空白
func tokenize(s string) []token {
	var out []token
	var cur strings.Builder
	for _, r := range s {
		if strings.ContainsRune(delimiters, r) {
			out = append(out, token{text: strings.TrimSpace(cur.String())}, token{text: strings.TrimSpace(string(r))})
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	return append(out, token{text: strings.TrimSpace(cur.String())})
}

func indexOf(parts []token, text string) int {
	for i, p := range parts {
		if p.sub == nil && p.text == text {
			return i
		}
	}
	return -1
}

// parse 递归地解析一个 token 序列。返回表达式、消耗的 token 数
// （包含结束的右括号）以及待精确包含、排除的词。
func parse(in []token, quotes map[string]string) (string, int, []string, []string) {
	parts := make([]token, len(in))
	copy(parts, in)

	reduced := 0
	for {
		open, closing := indexOf(parts, "("), indexOf(parts, ")")
		if open < 0 || (closing >= 0 && closing < open) {
			break
		}
		expr, consume, inc, exc := parse(parts[open+1:], quotes)
		end := open + consume + 1
		if end > len(parts) {
			end = len(parts)
		}
		reduced += len(parts)
		rest := append([]token{{sub: &group{expr: expr, include: inc, exclude: exc}}}, parts[end:]...)
		parts = append(parts[:open], rest...)
		reduced -= len(parts)
	}

	consume := len(parts)
	open, closing := indexOf(parts, "("), indexOf(parts, ")")
	if closing >= 0 && (open < 0 || closing < open) {
		parts = parts[:closing]
		consume = len(parts) + 1
	}

	var include, exclude, orlist, current []string
	negate := false
	for pos, p := range parts {
		switch {
		case p.sub == nil && p.text == "|":
			orlist = addToList(orlist, current)
			current = nil
			negate = false
		case p.sub == nil && p.text == "!":
			if pos+1 < len(parts) {
				negate = !negate
			}
		case p.sub != nil || p.text != "":
			var addval string
			if p.sub == nil {
				words := strings.Fields(p.text)
				addval = strings.Join(words, "&")
				if negate {
					exclude = append(exclude, words...)
				} else {
					include = append(include, words...)
				}
			} else {
				addval = p.sub.expr
				if negate {
					include = append(include, p.sub.exclude...)
					exclude = append(exclude, p.sub.include...)
				} else {
					include = append(include, p.sub.include...)
					exclude = append(exclude, p.sub.exclude...)
				}
			}
			// 空括号组不进入表达式；被否定的引号短语只做精确排除
			if _, quoted := quotes[addval]; addval != "" && (!negate || !quoted) {
				prefix := ""
				if negate {
					prefix = "!"
				}
				current = append(current, prefix+wrap(addval))
			}
			negate = false
		}
	}
	orlist = addToList(orlist, current)

	switch len(orlist) {
	case 0:
		return "", consume + reduced, include, exclude
	case 1:
		return orlist[0], consume + reduced, include, exclude
	}
	return strings.Join(orlist, "|"), consume + reduced, nil, nil
}

func addToList(list, and []string) []string {
	v := strings.Join(and, "&")
	if v == "" {
		return list
	}
	return append(list, wrap(v))
}

// wrap 在值包含运算符时加上括号
func wrap(v string) string {
	if strings.ContainsAny(v, wrapChars) {
		return "(" + v + ")"
	}
	return v
}

// exactPhrases 挑出需要精确校验的词：引号短语与长度大于 1 的 #话题。保持首次出现的顺序并去重。
func exactPhrases(words []string, quotes map[string]string) []Phrase {
	var out []Phrase
	seen := make(map[Phrase]bool, len(words))
	for _, w := range words {
		var p Phrase
		if phrase, ok := quotes[w]; ok {
			p = Phrase{Text: phrase}
		} else if strings.HasPrefix(w, "#") && len(w) > 1 {
			p = Phrase{Text: w, Hashtag: true}
		} else {
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
