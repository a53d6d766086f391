package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// Framework is a prompting framework and the signals that suggest it
type Framework struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Components []string `json:"components" yaml:"components"`
	BestFor    []string `json:"bestFor" yaml:"bestFor"`
	Questions  []string `json:"-" yaml:"-"`

	keywords []string
	signals  []signal
}

// signal adds points when any of its words occurs in the prompt
type signal struct {
	words  []string
	points int
	label  string
}

// shortPrompt marks the signal that fires on prompts under 15 words
const shortPrompt = "simple/short prompt"

// Frameworks in tie-break order
var Frameworks = []Framework{
	{
		ID:         "co-star",
		Name:       "CO-STAR",
		Components: []string{"Context", "Objective", "Style", "Tone", "Audience", "Response"},
		BestFor:    []string{"content_creation", "writing_tasks", "audience_matters", "tone_critical", "rich_context_needed"},
		keywords:   []string{"write", "create", "article", "post", "content", "email", "message"},
		signals: []signal{
			{[]string{"audience", "tone", "style", "write", "create"}, 3, "content creation indicators"},
		},
		Questions: []string{
			"What's the background context or situation?",
			"Who is your target audience? (expertise level, role, characteristics)",
			"What specific objective do you want to achieve?",
			"What tone is appropriate? (professional, casual, urgent, friendly, etc.)",
			"What style or format should the output follow?",
			"How should the response be structured? (length, sections, format)",
		},
	},
	{
		ID:         "risen",
		Name:       "RISEN",
		Components: []string{"Role", "Instructions", "Steps", "End goal", "Narrowing"},
		BestFor:    []string{"multi_step_process", "complex_procedure", "methodology_matters", "constraints_important", "sequential_tasks"},
		keywords:   []string{"process", "procedure", "workflow", "steps", "guide", "methodology"},
		signals: []signal{
			{[]string{"step", "process", "procedure", "workflow"}, 3, "process indicators"},
		},
		Questions: []string{
			"What role or expertise level should be demonstrated?",
			"What principles or guidelines should guide the approach?",
			"What are the specific steps or sequence of actions needed?",
			"What defines success? What are the acceptance criteria?",
			"What should be avoided? What constraints or boundaries exist?",
		},
	},
	{
		ID:         "rise-ie",
		Name:       "RISE-IE (Input-Expectation)",
		Components: []string{"Role", "Input", "Steps", "Expectation"},
		BestFor:    []string{"data_transformation", "analysis_tasks", "input_output_clear", "processing_focused", "analytical_work", "technical_tasks"},
		keywords:   []string{"analyze", "process", "transform", "data", "input", "csv", "json", "file", "review", "extract"},
		signals: []signal{
			{[]string{"analyze", "data", "input", "csv", "json", "file"}, 3, "data transformation indicators"},
			{[]string{"process", "transform", "extract"}, 2, "processing focus"},
		},
		Questions: []string{
			"What role or perspective is needed for this analytical task?",
			"What input are you providing? (format: CSV, JSON, text, etc.)",
			"What are the characteristics of the input data? (structure, fields, quirks)",
			"What processing or transformation steps are needed?",
			"What should the output look like? (format, structure, required elements)",
		},
	},
	{
		ID:         "rise-ix",
		Name:       "RISE-IX (Instructions-Examples)",
		Components: []string{"Role", "Instructions", "Steps", "Examples"},
		BestFor:    []string{"content_creation", "instruction_based_tasks", "example_driven", "creative_work", "replication_tasks", "style_matching"},
		keywords:   []string{"create", "write", "draft", "compose", "example", "like", "similar", "style", "format"},
		signals: []signal{
			{[]string{"create", "write", "draft", "compose"}, 3, "content creation indicators"},
			{[]string{"example", "like", "similar", "style"}, 3, "example-based indicators"},
		},
		Questions: []string{
			"What role or persona is most appropriate for this creative task?",
			"What are the main instructions or task requirements?",
			"What workflow or steps should be followed?",
			"Can you provide 2-3 examples of desired output or style?",
			"What format or style should be replicated?",
		},
	},
	{
		ID:         "tidd-ec",
		Name:       "TIDD-EC",
		Components: []string{"Task type", "Instructions", "Do", "Don't", "Examples", "Context"},
		BestFor:    []string{"high_precision_tasks", "explicit_boundaries", "error_prevention", "customer_support", "technical_documentation", "constraint_heavy", "compliance_required"},
		keywords:   []string{"support", "response", "documentation", "must", "avoid", "should", "shouldn't", "don't", "requirement", "compliance"},
		signals: []signal{
			{[]string{"support", "response", "documentation", "compliance"}, 3, "precision task indicators"},
			{[]string{"must", "avoid", "don't", "shouldn't", "should not"}, 4, "explicit dos/don'ts indicators"},
			{[]string{"requirement", "boundary", "constraint", "guideline"}, 2, "constraint indicators"},
		},
		Questions: []string{
			"What type of task is this? (e.g., customer support, data analysis, documentation)",
			"What are the exact steps or instructions to follow?",
			"What MUST be included in the output? (dos)",
			"What must be AVOIDED? (don'ts - errors, inappropriate approaches)",
			"Can you provide examples of good output?",
			"What context or background information is relevant?",
		},
	},
	{
		ID:         "rtf",
		Name:       "RTF",
		Components: []string{"Role", "Task", "Format"},
		BestFor:    []string{"simple_tasks", "format_focused", "well_defined", "minimal_context", "one_off_tasks"},
		keywords:   []string{"format", "structure", "template", "simple", "quick"},
		signals: []signal{
			{nil, 2, shortPrompt},
		},
		Questions: []string{
			"What expertise or perspective is needed?",
			"What exactly needs to be done? (be specific)",
			"How should the output be formatted? (structure, length, style)",
		},
	},
	{
		ID:         "chain_of_thought",
		Name:       "Chain of Thought",
		Components: []string{"Step-by-step reasoning", "Logic display", "Verification"},
		BestFor:    []string{"reasoning_tasks", "problem_solving", "mathematical", "logical_analysis", "debugging"},
		keywords:   []string{"solve", "calculate", "reason", "debug", "analyze", "decide"},
		signals: []signal{
			{[]string{"solve", "calculate", "reason", "why", "how"}, 3, "reasoning indicators"},
		},
		Questions: []string{
			"What problem needs to be solved?",
			"What reasoning or logic steps should be shown?",
			"Should intermediate work be displayed?",
			"What verification or validation is needed?",
		},
	},
	{
		ID:         "chain_of_density",
		Name:       "Chain of Density",
		Components: []string{"Iterations", "Progressive refinement", "Optimization"},
		BestFor:    []string{"iterative_improvement", "summarization", "compression", "optimization_tasks", "refinement"},
		keywords:   []string{"summarize", "compress", "refine", "improve", "iterate", "optimize"},
		signals: []signal{
			{[]string{"summarize", "compress", "refine"}, 3, "refinement indicators"},
		},
		Questions: []string{
			"What content needs to be improved/refined?",
			"How many iterations of refinement?",
			"What should each iteration optimize for? (clarity, brevity, density, etc.)",
			"What constraints apply? (length limits, key information to preserve)",
		},
	},
}

// maxRecommendations caps how many frameworks Recommend returns
const maxRecommendations = 3

// Recommendation is a scored framework
type Recommendation struct {
	Framework `yaml:",inline"`

	Score     int      `json:"score" yaml:"score"`
	Matches   []string `json:"matches" yaml:"matches"`
	Questions []string `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// Recommend scores every framework against text and returns up to three
// with a positive score, best first. Ties keep the order of Frameworks.
func Recommend(text string) []Recommendation {
	lower := strings.ToLower(text)
	short := len(strings.Fields(text)) < 15

	scored := make([]Recommendation, 0, len(Frameworks))
	for _, fw := range Frameworks {
		rec := Recommendation{Framework: fw, Matches: []string{}}

		for _, kw := range fw.keywords {
			if strings.Contains(lower, kw) {
				rec.Score += 2
				rec.Matches = append(rec.Matches, fmt.Sprintf("keyword: '%s'", kw))
			}
		}
		for _, sig := range fw.signals {
			hit := containsAny(lower, sig.words...)
			if sig.label == shortPrompt {
				hit = short
			}
			if hit {
				rec.Score += sig.points
				rec.Matches = append(rec.Matches, sig.label)
			}
		}
		scored = append(scored, rec)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	out := []Recommendation{}
	for _, rec := range scored[:maxRecommendations] {
		if rec.Score > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// WithQuestions attaches each framework's clarifying questions
func WithQuestions(recs []Recommendation) []Recommendation {
	for i := range recs {
		recs[i].Questions = recs[i].Framework.Questions
	}
	return recs
}

// Lookup returns the framework with id
func Lookup(id string) (Framework, bool) {
	for _, fw := range Frameworks {
		if fw.ID == id {
			return fw, true
		}
	}
	return Framework{}, false
}

// Questions returns the clarifying questions for a framework id
func Questions(id string) []string {
	if fw, ok := Lookup(id); ok {
		return fw.Questions
	}
	return []string{}
}
