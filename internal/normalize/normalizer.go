// Package normalize flattens the test engine's nested output document into result records.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/tenantscan/internal/domain/model"
)

// ErrNoOutput is returned when the engine document is empty or cannot be parsed.
var ErrNoOutput = errors.New("engine produced no readable output")

const (
	exprBlocks        = "Containers[].Blocks[] || Blocks"
	exprSeverity      = "ResultDetail.Severity || Severity || Data.Severity"
	exprID            = "ResultDetail.TestId || Id || Data.Id"
	exprError         = "ErrorRecord[0].Exception.Message || ErrorRecord[0].Message || ErrorRecord[0]"
	exprName          = "ExpandedName || Name"
	exprTags          = "Tag || Tags"
	exprDescription   = "ResultDetail.TestDescription || Description || Data.Description"
	exprResultDetail  = "ResultDetail.TestResult"
	exprSkippedReason = "ResultDetail.SkippedReason || SkippedBecause"
	exprInvestigate   = "ResultDetail.Investigate"
	exprService       = "ResultDetail.Service || Data.Service"
)

// testIDTag matches dotted identifier tags such as "EIDSCA.AF01" or "CIS.M365.1".
var testIDTag = regexp.MustCompile(`^[A-Z][A-Z0-9]*(\.[A-Z0-9]+)+$`)

const severityTagPrefix = "severity:"

// Options controls a single normalization.
type Options struct {
	// Filter drops records whose severity it does not allow. Inactive filters keep everything.
	Filter model.SeverityFilter
}

// Result is the flat record list in document order and the counts derived from it.
type Result struct {
	Tests   []model.TestResultRecord
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

type searchFunc func(data any) (any, error)

// Normalizer holds the compiled field expressions. It is safe for concurrent use.
type Normalizer struct {
	blocks        searchFunc
	severity      searchFunc
	id            searchFunc
	errorRecord   searchFunc
	name          searchFunc
	tags          searchFunc
	description   searchFunc
	resultDetail  searchFunc
	skippedReason searchFunc
	investigate   searchFunc
	service       searchFunc
	logger        *slog.Logger
}

// New compiles the field expressions.
func New(logger *slog.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{logger: logger.With("component", "normalizer")}
	targets := []struct {
		dst  *searchFunc
		expr string
	}{
		{&n.blocks, exprBlocks},
		{&n.severity, exprSeverity},
		{&n.id, exprID},
		{&n.errorRecord, exprError},
		{&n.name, exprName},
		{&n.tags, exprTags},
		{&n.description, exprDescription},
		{&n.resultDetail, exprResultDetail},
		{&n.skippedReason, exprSkippedReason},
		{&n.investigate, exprInvestigate},
		{&n.service, exprService},
	}
	for _, t := range targets {
		compiled, err := jmespath.Compile(t.expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", t.expr, err)
		}
		*t.dst = compiled.Search
	}
	return n, nil
}

// Normalize parses raw and returns the flattened, filtered records.
func (n *Normalizer) Normalize(raw []byte, opts Options) (*Result, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrNoOutput
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	if doc == nil {
		return nil, ErrNoOutput
	}
	if list, ok := doc.([]any); ok {
		doc = map[string]any{"Blocks": list}
	}

	found, err := n.blocks(doc)
	if err != nil {
		return nil, fmt.Errorf("locate blocks: %w", err)
	}

	records := make([]model.TestResultRecord, 0)
	for _, b := range asList(found) {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		records = n.walk(block, nil, records)
	}

	if opts.Filter.Active() {
		kept := records[:0]
		for _, r := range records {
			if opts.Filter.Allows(r.Severity) {
				kept = append(kept, r)
			}
		}
		records = kept
	}

	return newResult(records), nil
}

func newResult(records []model.TestResultRecord) *Result {
	res := &Result{Tests: records, Total: len(records)}
	for _, r := range records {
		switch r.Result {
		case model.TestOutcomePassed:
			res.Passed++
		case model.TestOutcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res
}

// walk appends the block's own tests, then its nested blocks', preserving document order.
func (n *Normalizer) walk(block map[string]any, path []string, out []model.TestResultRecord) []model.TestResultRecord {
	if name := strings.TrimSpace(stringOf(block["Name"])); name != "" {
		path = append(path[:len(path):len(path)], name)
	}
	blockPath := strings.Join(path, ".")
	category := categoryOf(blockPath)

	for _, t := range asList(block["Tests"]) {
		test, ok := t.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, n.record(test, blockPath, category))
	}
	for _, child := range asList(block["Blocks"]) {
		if cb, ok := child.(map[string]any); ok {
			out = n.walk(cb, path, out)
		}
	}
	return out
}

func (n *Normalizer) record(test map[string]any, blockPath, category string) model.TestResultRecord {
	name := strings.TrimSpace(n.str(n.name, test))
	tags := stringList(n.value(n.tags, test))

	rec := model.TestResultRecord{
		ID:         n.testID(test, tags, name),
		Name:       name,
		Result:     outcomeOf(stringOf(test["Result"])),
		DurationMs: durationMs(test["Duration"]),
		Severity:   n.severityOf(test, tags),
		Category:   category,
		Block:      blockPath,
	}
	rec.ErrorRecord = optional(n.errorText(test))
	rec.Description = optional(n.str(n.description, test))
	rec.ResultDetail = optional(n.str(n.resultDetail, test))
	rec.SkippedReason = optional(n.str(n.skippedReason, test))
	rec.Service = optional(n.str(n.service, test))
	if v, ok := n.value(n.investigate, test).(bool); ok {
		rec.Investigate = &v
	}
	return rec
}

func (n *Normalizer) severityOf(test map[string]any, tags []string) model.Severity {
	if s, err := model.ParseSeverity(n.str(n.severity, test)); err == nil {
		return s
	}
	for _, tag := range tags {
		if len(tag) <= len(severityTagPrefix) || !strings.EqualFold(tag[:len(severityTagPrefix)], severityTagPrefix) {
			continue
		}
		if s, err := model.ParseSeverity(tag[len(severityTagPrefix):]); err == nil {
			return s
		}
	}
	return model.SeverityInfo
}

func (n *Normalizer) testID(test map[string]any, tags []string, name string) string {
	if id := strings.TrimSpace(n.str(n.id, test)); id != "" {
		return id
	}
	for _, tag := range tags {
		if testIDTag.MatchString(tag) {
			return tag
		}
	}
	return strings.Join(strings.Fields(name), "-")
}

func (n *Normalizer) errorText(test map[string]any) string {
	switch v := n.value(n.errorRecord, test).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func (n *Normalizer) value(search searchFunc, data any) any {
	v, err := search(data)
	if err != nil {
		n.logger.Debug("field lookup failed", "error", err)
		return nil
	}
	return v
}

func (n *Normalizer) str(search searchFunc, data any) string {
	return stringOf(n.value(search, data))
}

func outcomeOf(s string) model.TestOutcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed":
		return model.TestOutcomePassed
	case "failed":
		return model.TestOutcomeFailed
	case "skipped":
		return model.TestOutcomeSkipped
	default:
		return model.TestOutcomeNotRun
	}
}

// categoryOf returns the first '.' or space delimited segment of a block path.
func categoryOf(blockPath string) string {
	if i := strings.IndexAny(blockPath, ". "); i >= 0 {
		return blockPath[:i]
	}
	return blockPath
}

// durationMs accepts milliseconds, a "[d.]hh:mm:ss.fffffff" string or a {TotalMilliseconds} object.
func durationMs(v any) int64 {
	switch d := v.(type) {
	case float64:
		return int64(math.Round(math.Max(d, 0)))
	case string:
		return parseClockDuration(d)
	case map[string]any:
		if ms, ok := d["TotalMilliseconds"].(float64); ok {
			return int64(math.Round(math.Max(ms, 0)))
		}
	}
	return 0
}

func parseClockDuration(s string) int64 {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(math.Round(math.Max(ms, 0)))
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	var days float64
	hoursPart := parts[0]
	if i := strings.IndexByte(hoursPart, '.'); i >= 0 {
		d, err := strconv.ParseFloat(hoursPart[:i], 64)
		if err != nil {
			return 0
		}
		days, hoursPart = d, hoursPart[i+1:]
	}
	h, errH := strconv.ParseFloat(hoursPart, 64)
	m, errM := strconv.ParseFloat(parts[1], 64)
	sec, errS := strconv.ParseFloat(parts[2], 64)
	if errH != nil || errM != nil || errS != nil {
		return 0
	}
	total := ((days*24+h)*3600 + m*60 + sec) * 1000
	return int64(math.Round(math.Max(total, 0)))
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case map[string]any:
		return []any{l}
	default:
		return nil
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func stringList(v any) []string {
	switch l := v.(type) {
	case string:
		return []string{l}
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return nil
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
