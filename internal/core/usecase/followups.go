package usecase

import (
	"strings"
	"unicode"
)

const maxFollowUps = 4

// SplitFollowUps separates a generated answer from its "Suggested Follow-up
// Questions" trailer. Only list-like lines containing a question mark are
// kept as questions.
func SplitFollowUps(raw string) (string, []string) {
	lines := strings.Split(raw, "\n")
	heading := -1
	for i, line := range lines {
		if isFollowUpHeading(line) {
			heading = i
			break
		}
	}
	if heading < 0 {
		return strings.TrimSpace(raw), nil
	}

	answer := strings.TrimSpace(strings.Join(lines[:heading], "\n"))
	var questions []string
	for _, line := range lines[heading+1:] {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "?") || !isListLine(line) {
			continue
		}
		q := strings.TrimSpace(strings.TrimLeft(line, "[]-*•0123456789.) "))
		q = strings.TrimSpace(strings.TrimRight(q, "]"))
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == maxFollowUps {
			break
		}
	}
	return answer, questions
}

func isFollowUpHeading(line string) bool {
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(line), "*#: "))
	return strings.HasPrefix(normalized, "suggested follow-up questions") ||
		strings.HasPrefix(normalized, "suggested follow up questions")
}

func isListLine(line string) bool {
	first := []rune(line)[0]
	return first == '[' || first == '-' || first == '*' || first == '•' || unicode.IsDigit(first)
}

type followUpTemplate struct {
	keywords  []string
	questions []string
}

var followUpTemplates = []followUpTemplate{
	{
		keywords:  []string{"algorithm", "method", "technique", "approach"},
		questions: []string{"How does this method work in detail?", "What are the trade-offs of this approach?"},
	},
	{
		keywords:  []string{"data", "dataset", "training", "model"},
		questions: []string{"What data is this based on?", "How is the model built or trained?"},
	},
	{
		keywords:  []string{"application", "use", "implement", "practice"},
		questions: []string{"Where is this applied in practice?", "What does an implementation look like?"},
	},
	{
		keywords:  []string{"performance", "accuracy", "result", "outcome"},
		questions: []string{"Which results or metrics are reported?", "How reliable are these results?"},
	},
	{
		keywords:  []string{"problem", "challenge", "issue", "limitation"},
		questions: []string{"What are the main challenges?", "What limitations are mentioned?"},
	},
	{
		keywords:  []string{"future", "development", "improvement", "enhancement"},
		questions: []string{"What future work is suggested?", "How could this be improved?"},
	},
}

var genericFollowUps = []string{
	"Can you explain this in more detail?",
	"What are the key points of this section?",
	"How does this compare to other parts of the document?",
	"What are the practical implications?",
}

// SuggestFollowUps derives up to four questions from keywords in answer when
// the generator did not provide any.
func SuggestFollowUps(answer string) []string {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}

	var out []string
	for _, tpl := range followUpTemplates {
		for _, kw := range tpl.keywords {
			if _, ok := words[kw]; ok {
				out = append(out, tpl.questions...)
				break
			}
		}
		if len(out) >= maxFollowUps {
			return out[:maxFollowUps]
		}
	}
	if len(out) == 0 {
		return append([]string(nil), genericFollowUps...)
	}
	return out
}

// DedupeSentences drops repeated sentences, keeping the first occurrence.
// Line breaks are preserved; a line left empty by the removal is dropped.
func DedupeSentences(text string) string {
	seen := make(map[string]struct{})
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			lines = append(lines, line)
			continue
		}
		var kept []string
		for _, sentence := range splitAnswerSentences(line) {
			key := strings.ToLower(strings.Join(strings.Fields(sentence), " "))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, sentence)
		}
		if len(kept) > 0 {
			lines = append(lines, strings.Join(kept, " "))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func splitAnswerSentences(line string) []string {
	var out []string
	runes := []rune(line)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
