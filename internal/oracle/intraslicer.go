package oracle

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/reposlice/reposlice/internal/model"
)

//go:embed prompts/*.json
var promptFS embed.FS

// ErrInvalidSeeds is returned when a seed list matches none of the accepted
// equivalence classes.
var ErrInvalidSeeds = errors.New("oracle: invalid seed list")

// SliceInput is one intra-procedural slicing query: a function, one
// equivalence class of seed values, and a direction.
type SliceInput struct {
	Function *model.Function
	Seeds    []model.Value
	Backward bool
}

// NewSliceInput validates and normalizes the seed list. A list is valid
// when all seeds are return values, when all seeds share file, line and
// label, or when it holds a single seed.
func NewSliceInput(f *model.Function, seeds []model.Value, backward bool) (*SliceInput, error) {
	set := make(map[model.Value]struct{}, len(seeds))
	for _, s := range seeds {
		set[s] = struct{}{}
	}
	unique := make([]model.Value, 0, len(set))
	for s := range set {
		unique = append(unique, s)
	}
	sort.Slice(unique, func(i, j int) bool {
		if unique[i].Index != unique[j].Index {
			return unique[i].Index < unique[j].Index
		}
		return unique[i].Name < unique[j].Name
	})

	if !validSeedClass(unique) {
		return nil, ErrInvalidSeeds
	}
	return &SliceInput{Function: f, Seeds: unique, Backward: backward}, nil
}

func validSeedClass(seeds []model.Value) bool {
	if len(seeds) == 0 {
		return false
	}
	if len(seeds) == 1 {
		return true
	}

	allRet := true
	for _, s := range seeds {
		if s.Label != model.LabelRet {
			allRet = false
			break
		}
	}
	if allRet {
		return true
	}

	first := seeds[0]
	for _, s := range seeds[1:] {
		if s.File != first.File || s.Line != first.Line || s.Label != first.Label {
			return false
		}
	}
	return true
}

// Key implements Input. Two queries with the same seeds, function and
// direction are identical.
func (in *SliceInput) Key() string {
	var b strings.Builder
	for _, s := range in.Seeds {
		b.WriteString(s.String())
	}
	return fmt.Sprintf("%s|%d|%t", b.String(), in.Function.ID, in.Backward)
}

// SeedDescription renders the seed class for the prompt.
func (in *SliceInput) SeedDescription() string {
	return in.Seeds[0].Description()
}

// ExtKind is the kind of an external value descriptor.
type ExtKind string

const (
	ExtParameter   ExtKind = "Parameter"
	ExtArgument    ExtKind = "Argument"
	ExtReturnValue ExtKind = "Return Value"
	ExtOutputValue ExtKind = "Output Value"
)

// ExtValue describes where a per-function slice crosses the function
// boundary. Index and Line are -1 when not cited.
type ExtValue struct {
	Kind     ExtKind
	Callee   string
	Index    int
	Line     int
	Variable string
}

// SliceOutput is the oracle's answer for one query.
type SliceOutput struct {
	Slice     string
	Lines     []int // function-relative, in-slice line numbers
	ExtValues []ExtValue
}

type promptTemplate struct {
	Task             string   `json:"task"`
	AnalysisRules    []string `json:"analysis_rules"`
	AnalysisExamples []string `json:"analysis_examples"`
	MetaPrompts      []string `json:"meta_prompts"`
	QuestionTemplate string   `json:"question_template"`
	AnswerFormatCOT  []string `json:"answer_format_cot"`
}

func loadTemplate(name string) (promptTemplate, error) {
	var tmpl promptTemplate
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return tmpl, fmt.Errorf("reading prompt template: %w", err)
	}
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return tmpl, fmt.Errorf("parsing prompt template: %w", err)
	}
	return tmpl, nil
}

// IntraSlicer asks the inference service for one function's slice and its
// external values. It implements Spec and owns the caching tool.
type IntraSlicer struct {
	tool     *Tool[*SliceInput, *SliceOutput]
	backward promptTemplate
	forward  promptTemplate
}

// NewIntraSlicer loads the embedded prompt templates and wires the tool.
func NewIntraSlicer(completer Completer, maxRetries int) (*IntraSlicer, error) {
	backward, err := loadTemplate("backward.json")
	if err != nil {
		return nil, err
	}
	forward, err := loadTemplate("forward.json")
	if err != nil {
		return nil, err
	}
	s := &IntraSlicer{backward: backward, forward: forward}
	s.tool = NewTool[*SliceInput, *SliceOutput](s, completer, maxRetries)
	return s, nil
}

// Slice runs one query through the cache and retry budget.
func (s *IntraSlicer) Slice(ctx context.Context, in *SliceInput) (*SliceOutput, bool) {
	return s.tool.Invoke(ctx, in)
}

// BuildPrompt implements Spec.
func (s *IntraSlicer) BuildPrompt(in *SliceInput) (string, error) {
	tmpl := s.backward
	if !in.Backward {
		tmpl = s.forward
	}

	prompt := tmpl.Task
	prompt += "\n" + strings.Join(tmpl.AnalysisRules, "\n")
	prompt += "\n" + strings.Join(tmpl.AnalysisExamples, "\n")
	prompt += "\n" + strings.Join(tmpl.MetaPrompts, "\n")

	question := strings.ReplaceAll(tmpl.QuestionTemplate, "<SEED_DESCRIPTION>", in.SeedDescription())
	answer := strings.Join(tmpl.AnswerFormatCOT, "\n")

	prompt = strings.ReplaceAll(prompt, "<FUNCTION>", in.Function.LinedCode)
	prompt = strings.ReplaceAll(prompt, "<QUESTION>", question)
	prompt = strings.ReplaceAll(prompt, "<ANSWER>", answer)
	return prompt, nil
}

var (
	sliceRe = regexp.MustCompile(`(?s)Slice:\s*(.*?)\s*External Variables:`)
	extRe   = regexp.MustCompile(`(?s)External Variables:\s*((?:-.*(?:\n|$))+)`)
	linesRe = regexp.MustCompile(`(?s)Line numbers in the slice:\s*\[(.*?)\]\s*$`)
	varRe   = regexp.MustCompile(`^\s*-\s*Type:\s*(Output Value|Parameter|Argument|Return Value)\.` +
		`(?:\s+Callee:\s*(\S+)\.)?` +
		`(?:\s+Index:\s*(\d+)\.)?` +
		`(?:\s+Name:\s*(\S+)\.)?` +
		`(?:\s+Field Name:\s*[^\s.]+\.)?` +
		`(?:\s+Line:\s*(\d+)\.)?` +
		`\s*$`)
)

// ParseResponse implements Spec. It extracts the slice text, the in-slice
// line numbers and the external-value lines; descriptors missing a
// mandatory field for their kind are discarded.
func (s *IntraSlicer) ParseResponse(resp string, _ *SliceInput) (*SliceOutput, bool) {
	sliceMatch := sliceRe.FindStringSubmatch(resp)
	if sliceMatch == nil {
		return nil, false
	}

	linesMatch := linesRe.FindStringSubmatch(resp)
	if linesMatch == nil {
		return nil, false
	}
	var lines []int
	for _, part := range strings.Split(linesMatch[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		lines = append(lines, n)
	}

	var exts []ExtValue
	if extMatch := extRe.FindStringSubmatch(resp); extMatch != nil {
		for _, line := range strings.Split(extMatch[1], "\n") {
			m := varRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			ext := ExtValue{
				Kind:     ExtKind(m[1]),
				Callee:   m[2],
				Index:    atoiOr(m[3], -1),
				Variable: m[4],
				Line:     atoiOr(m[5], -1),
			}
			if !ext.complete() {
				continue
			}
			exts = append(exts, ext)
		}
	}

	return &SliceOutput{
		Slice:     strings.TrimSpace(sliceMatch[1]),
		Lines:     lines,
		ExtValues: exts,
	}, true
}

// complete checks the mandatory fields per descriptor kind.
func (e ExtValue) complete() bool {
	switch e.Kind {
	case ExtParameter:
		return e.Index != -1
	case ExtArgument:
		return e.Callee != "" && e.Index != -1 && e.Line != -1
	case ExtOutputValue:
		// Index is optional for output values.
		return e.Callee != "" && e.Line != -1
	case ExtReturnValue:
		return true
	}
	return false
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
