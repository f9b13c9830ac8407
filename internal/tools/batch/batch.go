package batch

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Per-item status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one item of a batch.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates the results of a batch.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray accepts a single id, an array of ids, or a string
// holding a JSON array of ids. A string that merely starts with "[" but is
// not valid JSON is taken as a single id.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		if strings.HasPrefix(strings.TrimSpace(v), "[") {
			var items []any
			if err := json.Unmarshal([]byte(v), &items); err == nil {
				return fromSlice(items, paramName)
			}
		}
		return []string{v}, nil
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return fromSlice(items, paramName)
	case []any:
		return fromSlice(v, paramName)
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

func fromSlice(items []any, paramName string) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
		}
		if s == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// Summarize counts the successes and failures of results.
func Summarize(results []Result) BatchResult {
	br := BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// FormatResults renders results as indented JSON.
func FormatResults(results []Result) string {
	b, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(b)
}

// ProcessBatch runs fn for each id in order. Once ctx is done the remaining
// ids are reported as failed without calling fn.
func ProcessBatch(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (string, error)) []Result {
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		res, err := fn(ctx, id)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		results = append(results, NewSuccessResult(id, res))
	}
	return results
}

// NewSuccessResult creates a success result
func NewSuccessResult(id, message string) Result {
	return Result{ID: id, Status: StatusSuccess, Result: message}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error()}
}
