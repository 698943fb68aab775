// Package extraction 提供不依赖外部模型的实体抽取实现
//
// 结果只是近似值：人名、地名按大写词组与介词线索判断，日期按年份/月份/星期匹配，
// 情感分按极小的词表计算。需要准确结果时应替换为真正的 NER 服务。
package extraction

import (
	"context"
	"regexp"
	"strings"

	"z-novel-context/internal/domain/entity"
)

var (
	properNounPattern = regexp.MustCompile(`\b(?:(?:Mr|Mrs|Ms|Dr|Prof|Capt|Lt|Sir|Lady|Lord)\.?\s+)?[A-Z][a-z'’]+(?:[ \t]+[A-Z][a-z'’]+)*`)
	yearPattern       = regexp.MustCompile(`\b(?:1[0-9]{3}|20[0-9]{2})\b`)
	monthDatePattern  = regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)(?:\s+\d{1,2}(?:st|nd|rd|th)?)?(?:,?\s+\d{4})?\b`)
	weekdayPattern    = regexp.MustCompile(`\b(?:Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`)
	wordPattern       = regexp.MustCompile(`[A-Za-z']+`)
)

// placePrepositions 紧跟其后的专有名词视为地名
var placePrepositions = map[string]struct{}{
	"in": {}, "at": {}, "to": {}, "from": {}, "near": {}, "towards": {}, "toward": {},
	"through": {}, "across": {}, "into": {}, "outside": {}, "inside": {}, "beyond": {},
}

// nonNames 句首常见的大写词，不是专有名词
var nonNames = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "he": {}, "she": {}, "it": {}, "they": {}, "we": {}, "i": {},
	"you": {}, "his": {}, "her": {}, "their": {}, "our": {}, "my": {}, "your": {}, "its": {},
	"but": {}, "and": {}, "or": {}, "so": {}, "then": {}, "when": {}, "while": {}, "after": {},
	"before": {}, "if": {}, "as": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "there": {}, "here": {}, "what": {}, "why": {},
	"how": {}, "where": {}, "who": {}, "yes": {}, "no": {}, "not": {}, "suddenly": {}, "now": {},
	"later": {}, "once": {}, "still": {}, "even": {}, "perhaps": {}, "maybe": {}, "chapter": {},
	"oh": {}, "well": {}, "all": {}, "every": {}, "some": {}, "one": {}, "two": {}, "three": {},
	"from": {}, "to": {}, "into": {}, "through": {}, "across": {}, "near": {}, "outside": {},
	"inside": {}, "beyond": {}, "towards": {}, "toward": {}, "of": {}, "prologue": {}, "epilogue": {},
}

var (
	positiveWords = toSet("love", "loved", "joy", "happy", "hope", "smiled", "laughed", "warm", "bright",
		"kind", "gentle", "peace", "safe", "beautiful", "glad", "delight", "triumph", "won", "embraced")
	negativeWords = toSet("fear", "afraid", "sad", "grief", "cried", "wept", "dark", "cold", "angry",
		"hate", "hated", "pain", "dead", "died", "killed", "blood", "lost", "alone", "scream", "screamed", "storm")
)

// Option 抽取器选项
type Option func(*HeuristicExtractor)

// WithKnownPeople 已知人名，命中后总是归为人物
func WithKnownPeople(names ...string) Option {
	return func(e *HeuristicExtractor) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				e.knownPeople[strings.ToLower(n)] = n
			}
		}
	}
}

// WithKnownPlaces 已知地名，命中后总是归为地点
func WithKnownPlaces(names ...string) Option {
	return func(e *HeuristicExtractor) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				e.knownPlaces[strings.ToLower(n)] = n
			}
		}
	}
}

// HeuristicExtractor 基于规则的实体抽取器，无状态，可并发使用
type HeuristicExtractor struct {
	knownPeople map[string]string
	knownPlaces map[string]string
}

// NewHeuristicExtractor 创建规则抽取器
func NewHeuristicExtractor(opts ...Option) *HeuristicExtractor {
	e := &HeuristicExtractor{
		knownPeople: make(map[string]string),
		knownPlaces: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 实现 repository.EntityExtractor
func (e *HeuristicExtractor) Extract(ctx context.Context, text string) (*entity.ExtractedEntities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &entity.ExtractedEntities{
		People: []string{},
		Places: []string{},
		Dates:  e.dates(text),
	}
	dateWords := make(map[string]struct{})
	for _, d := range out.Dates {
		for _, w := range strings.Fields(d) {
			dateWords[strings.ToLower(strings.Trim(w, ","))] = struct{}{}
		}
	}

	seenPeople := make(map[string]struct{})
	seenPlaces := make(map[string]struct{})
	for _, loc := range properNounPattern.FindAllStringIndex(text, -1) {
		name, skipped := trimLeadingNonNames(text[loc[0]:loc[1]])
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, isDate := dateWords[key]; isDate {
			continue
		}

		switch {
		case e.knownPlaces[key] != "":
			addOnce(&out.Places, seenPlaces, e.knownPlaces[key])
		case e.knownPeople[key] != "":
			addOnce(&out.People, seenPeople, e.knownPeople[key])
		case precededByPlacePreposition(text[:loc[0]], skipped):
			if _, already := seenPeople[key]; !already {
				addOnce(&out.Places, seenPlaces, name)
			}
		default:
			if _, already := seenPlaces[key]; !already {
				addOnce(&out.People, seenPeople, name)
			}
		}
	}

	out.SentimentScore = sentiment(text)
	return out, nil
}

func (e *HeuristicExtractor) dates(text string) []string {
	var found []string
	seen := make(map[string]struct{})
	covered := make([][2]int, 0)
	for _, pattern := range []*regexp.Regexp{monthDatePattern, weekdayPattern, yearPattern} {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			if overlaps(covered, loc) {
				continue
			}
			covered = append(covered, [2]int{loc[0], loc[1]})
			addOnce(&found, seen, text[loc[0]:loc[1]])
		}
	}
	return found
}

func overlaps(spans [][2]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

// trimLeadingNonNames 去掉词组开头的非专有名词（句首的 "The"、"In" 等），返回剩余部分与被去掉的词
func trimLeadingNonNames(phrase string) (string, []string) {
	words := strings.Fields(phrase)
	i := 0
	for i < len(words) {
		if _, skip := nonNames[strings.ToLower(words[i])]; !skip {
			break
		}
		i++
	}
	return strings.Join(words[i:], " "), words[:i]
}

func precededByPlacePreposition(before string, skipped []string) bool {
	words := append(wordPattern.FindAllString(before, -1), skipped...)
	if len(words) == 0 {
		return false
	}
	last := strings.ToLower(words[len(words)-1])
	if last == "the" && len(words) > 1 {
		last = strings.ToLower(words[len(words)-2])
	}
	_, ok := placePrepositions[last]
	return ok
}

// sentiment 返回 [-1, 1] 的情感分；没有命中词时为 0
func sentiment(text string) float64 {
	var pos, neg int
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func addOnce(dst *[]string, seen map[string]struct{}, value string) {
	key := strings.ToLower(value)
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}
	*dst = append(*dst, value)
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
