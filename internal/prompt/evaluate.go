// Package prompt scores prompt text and suggests prompting frameworks
// using keyword heuristics.
package prompt

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dimension names in report order
const (
	Clarity      = "clarity"
	Specificity  = "specificity"
	Context      = "context"
	Completeness = "completeness"
	Structure    = "structure"
)

// Dimensions lists every scored dimension in report order
var Dimensions = []string{Clarity, Specificity, Context, Completeness, Structure}

// suggestThreshold is the score below which a dimension gets suggestions
const suggestThreshold = 7

// Score is the result for one dimension
type Score struct {
	Score     float64  `json:"score" yaml:"score"`
	Issues    []string `json:"issues" yaml:"issues"`
	Strengths []string `json:"strengths" yaml:"strengths"`
}

// Evaluation scores a prompt on every dimension
type Evaluation struct {
	Prompt      string           `json:"prompt" yaml:"prompt"`
	Scores      map[string]Score `json:"scores" yaml:"scores"`
	Overall     float64          `json:"overall" yaml:"overall"`
	Suggestions []string         `json:"suggestions" yaml:"suggestions"`
}

// scorer accumulates one dimension
type scorer struct {
	score     float64
	issues    []string
	strengths []string
}

func newScorer() *scorer {
	return &scorer{score: 5, issues: []string{}, strengths: []string{}}
}

func (s *scorer) issue(format string, args ...any) {
	s.issues = append(s.issues, fmt.Sprintf(format, args...))
}

func (s *scorer) strength(format string, args ...any) {
	s.strengths = append(s.strengths, fmt.Sprintf(format, args...))
}

func (s *scorer) result() Score {
	return Score{Score: max(0, min(10, s.score)), Issues: s.issues, Strengths: s.strengths}
}

// Evaluate scores text on clarity, specificity, context, completeness and
// structure. Each dimension starts at 5 and is clamped to [0, 10]; Overall is
// their mean.
func Evaluate(text string) Evaluation {
	ev := Evaluation{
		Prompt: text,
		Scores: map[string]Score{
			Clarity:      evaluateClarity(text),
			Specificity:  evaluateSpecificity(text),
			Context:      evaluateContext(text),
			Completeness: evaluateCompleteness(text),
			Structure:    evaluateStructure(text),
		},
	}

	var total float64
	for _, name := range Dimensions {
		total += ev.Scores[name].Score
	}
	ev.Overall = total / float64(len(Dimensions))
	ev.Suggestions = Suggestions(ev)
	return ev
}

func evaluateClarity(text string) Score {
	s := newScorer()
	lower := strings.ToLower(text)

	vague := countContained(lower, "thing", "stuff", "something", "anything", "maybe", "kind of", "sort of")
	if vague > 0 {
		s.score -= min(float64(vague)*0.5, 3)
		s.issue("Contains %d vague term(s)", vague)
	} else {
		s.strength("No vague language detected")
	}

	if containsAny(lower, "what", "how", "why", "when", "where", "who") {
		s.score += 2
		s.strength("Clear goal indicated")
	} else {
		s.issue("Goal could be more explicit")
	}

	words := strings.Fields(text)
	if len(words) > 0 {
		switch strings.ToLower(words[0]) {
		case "it", "this", "that", "they":
			s.score -= 2
			s.issue("Starts with ambiguous pronoun")
		}
	}
	return s.result()
}

func evaluateSpecificity(text string) Score {
	s := newScorer()
	lower := strings.ToLower(text)
	words := strings.Fields(text)

	switch n := len(words); {
	case n < 5:
		s.score -= 3
		s.issue("Very brief (%d words) - likely missing details", n)
	case n < 10:
		s.score--
		s.issue("Quite brief - could benefit from more specifics")
	case n > 15:
		s.score++
		s.strength("Good level of detail provided")
	}

	if strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		s.score++
		s.strength("Includes quantitative details")
	}

	entities := 0
	for _, w := range words {
		if w == "I" || w == "A" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(w); unicode.IsUpper(r) {
			entities++
		}
	}
	if entities > 0 {
		s.score++
		s.strength("Mentions specific entities (%d found)", entities)
	}

	specs := countContained(lower, "format", "length", "style", "words", "paragraphs", "sections", "points")
	if specs > 0 {
		s.score += float64(min(specs, 2))
		s.strength("Includes %d specification(s)", specs)
	} else {
		s.issue("No format/length specifications")
	}
	return s.result()
}

func evaluateContext(text string) Score {
	s := newScorer()
	lower := strings.ToLower(text)

	indicators := countContained(lower,
		"for", "because", "since", "background", "context", "situation",
		"currently", "previously", "in order to", "so that")
	switch {
	case indicators == 0:
		s.score -= 3
		s.issue("No contextual information provided")
	case indicators >= 2:
		s.score += 2
		s.strength("Good contextual framing (%d indicators)", indicators)
	default:
		s.score++
		s.strength("Some context provided")
	}

	if containsAny(lower, "must", "should", "cannot", "don't", "avoid", "limit", "maximum",
		"minimum", "required", "constraint", "restriction") {
		s.score++
		s.strength("Constraints or requirements specified")
	} else {
		s.issue("No constraints or limitations specified")
	}
	return s.result()
}

func evaluateCompleteness(text string) Score {
	s := newScorer()
	lower := strings.ToLower(text)

	if containsAny(lower, "create", "write", "analyze", "generate", "make", "develop", "build") {
		s.score += 2
		s.strength("Task/action clearly stated")
	} else {
		s.score -= 2
		s.issue("What to do is unclear")
	}

	if containsAny(lower, "because", "for", "to", "so that", "in order to", "goal", "purpose") {
		s.score++
		s.strength("Purpose/motivation included")
	} else {
		s.issue("Missing purpose or goal")
	}

	if containsAny(lower, "using", "with", "through", "by", "via", "format", "style", "approach") {
		s.score++
		s.strength("Approach or method indicated")
	} else {
		s.issue("Missing guidance on approach")
	}

	if containsAny(lower, "format", "structure", "as a", "in the form of", "list", "table", "paragraph", "json", "markdown") {
		s.score++
		s.strength("Output format specified")
	} else {
		s.issue("Output format not specified")
	}
	return s.result()
}

func evaluateStructure(text string) Score {
	s := newScorer()

	sentences := []string{}
	for _, part := range strings.Split(text, ".") {
		if p := strings.TrimSpace(part); p != "" {
			sentences = append(sentences, p)
		}
	}
	if len(sentences) > 1 {
		s.score++
		s.strength("Multi-sentence structure (%d sentences)", len(sentences))
	} else {
		s.issue("Single sentence - could benefit from more structure")
	}

	hasBullets := strings.ContainsAny(text, "-•*\n")
	if hasBullets {
		s.score++
		s.strength("Uses lists or structure markers")
	}

	hasSections := containsAny(text, ":", "\n\n", "1.", "2.", "First", "Second")
	if hasSections {
		s.score++
		s.strength("Organized into sections")
	}

	for _, sentence := range sentences {
		if len(strings.Fields(sentence)) > 40 {
			s.score--
			s.issue("Contains very long sentence(s) - could be split")
			break
		}
	}

	if len(strings.Fields(text)) > 30 {
		if hasSections || hasBullets {
			s.score++
			s.strength("Well-organized for its length")
		} else {
			s.score--
			s.issue("Longer prompt would benefit from more structure")
		}
	}
	return s.result()
}

// suggestionRule maps an issue keyword to advice
type suggestionRule struct {
	keywords []string
	advice   string
}

var suggestionRules = []struct {
	dimension string
	heading   string
	rules     []suggestionRule
}{
	{Clarity, "Improve clarity by:", []suggestionRule{
		{[]string{"vague"}, "Replace vague terms with specific descriptions"},
		{[]string{"goal"}, "Clearly state what you want to achieve"},
		{[]string{"pronoun"}, "Replace ambiguous pronouns with specific nouns"},
	}},
	{Specificity, "Increase specificity by:", []suggestionRule{
		{[]string{"brief"}, "Add more details about requirements"},
		{[]string{"specification"}, "Specify desired format, length, or structure"},
	}},
	{Context, "Add more context:", []suggestionRule{
		{[]string{"contextual"}, "Explain the background or situation"},
		{[]string{"constraint"}, "Mention any limitations or requirements"},
	}},
	{Completeness, "Make it more complete:", []suggestionRule{
		{[]string{"what"}, "Clearly state what action to take"},
		{[]string{"why", "purpose"}, "Explain the purpose or goal"},
		{[]string{"how", "approach"}, "Indicate preferred approach or method"},
		{[]string{"format"}, "Specify how output should be formatted"},
	}},
	{Structure, "Improve structure:", []suggestionRule{
		{[]string{"single sentence"}, "Break into multiple sentences"},
		{[]string{"long sentence"}, "Split long sentences for clarity"},
		{[]string{"more structure"}, "Use bullet points or numbered lists"},
	}},
}

// Suggestions turns the issues of weak dimensions into advice lines.
// Each weak dimension contributes a heading followed by indented items.
func Suggestions(ev Evaluation) []string {
	out := []string{}
	for _, group := range suggestionRules {
		score, ok := ev.Scores[group.dimension]
		if !ok || score.Score >= suggestThreshold {
			continue
		}
		out = append(out, group.heading)
		for _, issue := range score.Issues {
			lower := strings.ToLower(issue)
			for _, rule := range group.rules {
				if containsAny(lower, rule.keywords...) {
					out = append(out, "  - "+rule.advice)
				}
			}
		}
	}
	return out
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// countContained counts how many needles occur in text at least once
func countContained(text string, needles ...string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			n++
		}
	}
	return n
}
