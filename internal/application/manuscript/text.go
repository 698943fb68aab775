package manuscript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const charsPerToken = 4

var (
	sceneBreakPattern     = regexp.MustCompile(`^\s*(?:\*{3,}|#{3,}|-{3,}|_{3,})\s*$`)
	chapterHeadingPattern = regexp.MustCompile(`(?i)^\s*chapter\s+\d+`)
	definiteNounPattern   = regexp.MustCompile(`(?i)\bthe\s+([a-z][a-z'-]+)`)
)

// 句点后的这些词不视为句子结束（避免把 "Mr. Darcy" 这类具名元素拆开）
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "st": {}, "jr": {}, "sr": {}, "prof": {}, "capt": {}, "lt": {},
}

// estimateTokens 以每 4 个字符 1 个 token 估算（向上取整）
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

func isSceneBreak(line string) bool {
	return sceneBreakPattern.MatchString(line)
}

func isChapterHeading(line string) bool {
	return chapterHeadingPattern.MatchString(line)
}

// paragraph 源文本中一个非空行，[start, end) 为去除首尾空白后的字节范围
type paragraph struct {
	text  string
	start int
	end   int
}

func splitParagraphs(text string) []paragraph {
	out := make([]paragraph, 0, strings.Count(text, "\n")+1)
	offset := 0
	for offset <= len(text) {
		lineEnd := len(text)
		nl := strings.IndexByte(text[offset:], '\n')
		if nl >= 0 {
			lineEnd = offset + nl
		}
		line := text[offset:lineEnd]
		lead := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
		body := strings.TrimSpace(line)
		if body != "" {
			start := offset + lead
			out = append(out, paragraph{text: body, start: start, end: start + len(body)})
		}
		if nl < 0 {
			break
		}
		offset = lineEnd + 1
	}
	return out
}

// sentenceSpan 句子在所属文本中的字节范围
type sentenceSpan struct {
	text  string
	start int
	end   int
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isCJKTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '」', '』':
		return true
	}
	return false
}

// sentenceEnds 返回每个句子结束位置（终止符及其后的引号/括号之后的字节偏移）
func sentenceEnds(s string) []int {
	var ends []int
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isTerminator(r) {
			i += size
			continue
		}
		termStart := i
		j := i + size
		// 连续终止符（"?!"、"..."）视为一个
		for j < len(s) {
			r2, sz := utf8.DecodeRuneInString(s[j:])
			if !isTerminator(r2) {
				break
			}
			j += sz
		}
		for j < len(s) {
			r2, sz := utf8.DecodeRuneInString(s[j:])
			if !isCloser(r2) {
				break
			}
			j += sz
		}
		i = j

		if r == '.' && j-termStart == 1 && isAbbreviation(s[:termStart]) {
			continue
		}
		if j < len(s) && !isCJKTerminator(r) {
			next, _ := utf8.DecodeRuneInString(s[j:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		ends = append(ends, j)
	}
	return ends
}

// isAbbreviation 判断句点前的词是否为称谓缩写或单字母首字母
func isAbbreviation(before string) bool {
	word := before
	if idx := strings.LastIndexFunc(before, func(r rune) bool { return !unicode.IsLetter(r) }); idx >= 0 {
		// idx 指向该符文的首字节，需跳过整个符文
		_, size := utf8.DecodeRuneInString(before[idx:])
		word = before[idx+size:]
	}
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

// lastSentenceEnd 返回最后一个句子边界，找不到时返回 -1
func lastSentenceEnd(s string) int {
	ends := sentenceEnds(s)
	if len(ends) == 0 {
		return -1
	}
	return ends[len(ends)-1]
}

// splitSentences 按句子边界切分，未以终止符结尾的尾部作为最后一句
func splitSentences(s string) []sentenceSpan {
	var out []sentenceSpan
	prev := 0
	emit := func(end int) {
		seg := s[prev:end]
		lead := len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
		body := strings.TrimSpace(seg)
		// 场景分隔行、章节标题不属于句子
		for {
			nl := strings.IndexByte(body, '\n')
			if nl < 0 || !(isSceneBreak(body[:nl]) || isChapterHeading(body[:nl])) {
				break
			}
			rest := strings.TrimLeftFunc(body[nl+1:], unicode.IsSpace)
			lead += len(body) - len(rest)
			body = rest
		}
		if isSceneBreak(body) {
			body = ""
		}
		if body != "" {
			out = append(out, sentenceSpan{text: body, start: prev + lead, end: prev + lead + len(body)})
		}
		prev = end
	}
	for _, end := range sentenceEnds(s) {
		emit(end)
	}
	if prev < len(s) {
		emit(len(s))
	}
	return out
}

// skipSpace 返回 from 之后第一个非空白字符的位置（不超过 limit）
func skipSpace(s string, from, limit int) int {
	for from < limit {
		r, size := utf8.DecodeRuneInString(s[from:])
		if !unicode.IsSpace(r) {
			break
		}
		from += size
	}
	return from
}

// wordSet 返回小写词集合
func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// hasCue 单词线索按词匹配，短语线索按子串匹配
func hasCue(lower string, words map[string]struct{}, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(cue, " ") {
			if strings.Contains(lower, cue) {
				return true
			}
			continue
		}
		if _, ok := words[cue]; ok {
			return true
		}
	}
	return false
}

// dedupe 去除空白项与重复项（保留首次出现顺序）
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
