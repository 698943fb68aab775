package manuscript

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"z-novel-context/internal/domain/entity"
)

// 启发式线索词，仅用于给句子打标签
var (
	eventCues = []string{
		"suddenly", "killed", "died", "dies", "discovered", "discovers", "arrived", "arrives", "escaped",
		"attacked", "revealed", "reveals", "married", "betrayed", "fled", "vanished", "exploded", "fought",
		"murdered", "confessed", "returned", "collapsed", "kidnapped", "stole", "burned", "crashed",
	}
	pastCues = []string{
		"remembered", "recalled", "had been", "years ago", "long ago", "used to", "once", "memory", "memories",
	}
	futureCues = []string{
		"would", "someday", "promised", "vowed", "soon", "tomorrow", "one day", "will", "planned", "intended",
	}
	arcCues = []string{
		"realized", "decided", "changed", "learned", "understood", "became", "forgave", "accepted", "refused",
	}
	objectStopwords = map[string]struct{}{
		"same": {}, "other": {}, "first": {}, "last": {}, "next": {}, "way": {}, "end": {}, "one": {},
		"time": {}, "moment": {}, "rest": {}, "only": {}, "most": {}, "day": {}, "night": {},
	}
)

// 元素重要度基线
const (
	importanceCharacterBase = 0.5
	importanceLocationBase  = 0.4
	importanceObjectBase    = 0.3
	importanceTime          = 0.5
	importanceKeyEvent      = 0.7
	importanceCallback      = 0.6
	importanceSetup         = 0.65
	importancePerMention    = 0.1
)

// analyzeChunk 用抽取结果填充分片并计算派生元数据
func analyzeChunk(chunk *entity.TextChunk, ents *entity.ExtractedEntities) *entity.ChunkAnalysis {
	if ents == nil {
		ents = &entity.ExtractedEntities{}
	}
	sentences := splitSentences(chunk.Content)

	chunk.Characters = dedupe(ents.People)
	chunk.Locations = dedupe(ents.Places)
	chunk.Timeframe = ""
	if dates := dedupe(ents.Dates); len(dates) > 0 {
		chunk.Timeframe = dates[0]
	}
	chunk.KeyEvents = keyEvents(sentences)

	refs := contextualReferences(sentences, chunk.Characters)
	objects := repeatedObjects(chunk.Content, chunk.Characters, chunk.Locations)

	analysis := &entity.ChunkAnalysis{
		Chunk: chunk,
		Metadata: entity.ChunkMetadata{
			WordCount:  len(strings.Fields(chunk.Content)),
			TokenCount: estimateTokens(chunk.Content),
			Sentiment:  ents.SentimentScore,
			SignificantElements: entity.SignificantElements{
				Characters: append([]string(nil), chunk.Characters...),
				Locations:  append([]string(nil), chunk.Locations...),
				Objects:    objects,
				Events:     append([]string(nil), chunk.KeyEvents...),
			},
			ContextualReferences: refs,
		},
		RelatedChunks: []string{},
	}
	analysis.ContextualElements = deriveElements(chunk, refs, objects, sentences)
	return analysis
}

func keyEvents(sentences []sentenceSpan) []string {
	events := make([]string, 0, 4)
	for _, s := range sentences {
		lower := strings.ToLower(s.text)
		if strings.HasSuffix(strings.TrimRight(s.text, "\"'”’)"), "!") || hasCue(lower, wordSet(s.text), eventCues) {
			events = append(events, s.text)
		}
	}
	return events
}

func contextualReferences(sentences []sentenceSpan, characters []string) entity.ContextualReferences {
	refs := entity.ContextualReferences{
		PastEvents:    []string{},
		FutureSetups:  []string{},
		CharacterArcs: []string{},
	}
	for _, s := range sentences {
		lower := strings.ToLower(s.text)
		words := wordSet(s.text)
		if hasCue(lower, words, pastCues) {
			refs.PastEvents = append(refs.PastEvents, s.text)
		}
		if hasCue(lower, words, futureCues) {
			refs.FutureSetups = append(refs.FutureSetups, s.text)
		}
		if !hasCue(lower, words, arcCues) {
			continue
		}
		for _, name := range characters {
			if strings.Contains(s.text, name) {
				refs.CharacterArcs = append(refs.CharacterArcs, name+": "+s.text)
			}
		}
	}
	return refs
}

// repeatedObjects 返回在分片内以定冠词出现至少两次的名词（排除人名/地名）
func repeatedObjects(content string, characters, locations []string) []string {
	exclude := make(map[string]struct{}, len(characters)+len(locations))
	for _, n := range append(append([]string(nil), characters...), locations...) {
		for _, w := range strings.Fields(strings.ToLower(n)) {
			exclude[w] = struct{}{}
		}
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, m := range definiteNounPattern.FindAllStringSubmatch(content, -1) {
		w := strings.ToLower(m[1])
		if _, skip := objectStopwords[w]; skip {
			continue
		}
		if _, skip := exclude[w]; skip {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	out := make([]string, 0, len(order))
	for _, w := range order {
		if counts[w] >= 2 {
			out = append(out, w)
		}
	}
	return out
}

// mentions 返回 needle 在 content 中的首末出现位置和次数；大小写不敏感，位置是原文的字节偏移
func mentions(content, needle string) (first, last, count int) {
	if needle == "" {
		return 0, 0, 0
	}
	first, last = -1, -1
	for i := 0; i < len(content); {
		if n, ok := foldPrefix(content[i:], needle); ok {
			if first < 0 {
				first = i
			}
			last = i
			count++
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(content[i:])
		i += size
	}
	if first < 0 {
		return 0, 0, 0
	}
	return first, last, count
}

// foldPrefix 判断 s 是否以 prefix 开头（按 Unicode 简单大小写折叠比较），返回在 s 中匹配的字节数
func foldPrefix(s, prefix string) (int, bool) {
	n := 0
	for _, pr := range prefix {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if sr != pr && !equalFoldRune(sr, pr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func equalFoldRune(a, b rune) bool {
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

func scaled(base float64, count int) float64 {
	return math.Min(1, base+importancePerMention*float64(count))
}

func deriveElements(chunk *entity.TextChunk, refs entity.ContextualReferences, objects []string, sentences []sentenceSpan) []entity.ContextualElement {
	elements := make([]entity.ContextualElement, 0, len(chunk.Characters)+len(chunk.Locations)+len(chunk.KeyEvents)+4)
	add := func(t entity.ElementType, content string, importance float64, rel entity.Relation, first, last int) {
		elements = append(elements, entity.ContextualElement{
			ID:              fmt.Sprintf("%s/%s/%d", chunk.ID, t, len(elements)),
			Type:            t,
			Content:         content,
			Importance:      importance,
			RelationToFocus: rel,
			FirstMention:    first,
			LastMention:     last,
		})
	}
	sentenceAt := func(text string) int {
		for _, s := range sentences {
			if s.text == text {
				return s.start
			}
		}
		return 0
	}

	for _, name := range chunk.Characters {
		first, last, n := mentions(chunk.Content, name)
		add(entity.ElementCharacter, name, scaled(importanceCharacterBase, n), entity.RelationDevelopment, first, last)
	}
	for _, place := range chunk.Locations {
		first, last, n := mentions(chunk.Content, place)
		add(entity.ElementLocation, place, scaled(importanceLocationBase, n), entity.RelationDevelopment, first, last)
	}
	if chunk.Timeframe != "" {
		first, last, _ := mentions(chunk.Content, chunk.Timeframe)
		add(entity.ElementTime, chunk.Timeframe, importanceTime, entity.RelationDevelopment, first, last)
	}
	for _, ev := range chunk.KeyEvents {
		pos := sentenceAt(ev)
		add(entity.ElementEvent, ev, importanceKeyEvent, entity.RelationDevelopment, pos, pos)
	}
	for _, past := range refs.PastEvents {
		pos := sentenceAt(past)
		add(entity.ElementEvent, past, importanceCallback, entity.RelationCallback, pos, pos)
	}
	for _, setup := range refs.FutureSetups {
		pos := sentenceAt(setup)
		add(entity.ElementPlot, setup, importanceSetup, entity.RelationSetup, pos, pos)
	}
	for _, obj := range objects {
		first, last, n := mentions(chunk.Content, "the "+obj)
		add(entity.ElementSymbol, obj, math.Min(0.9, scaled(importanceObjectBase, n)), entity.RelationDevelopment, first, last)
	}
	return elements
}
