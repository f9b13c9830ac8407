package batch

import (
	"context"
	"errors"
	"slices"
	"testing"

	json "github.com/goccy/go-json"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "single id", input: "18c2f0a1b2", want: []string{"18c2f0a1b2"}},
		{name: "array of ids", input: []any{"a", "b", "c"}, want: []string{"a", "b", "c"}},
		{name: "string slice", input: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "nil input", input: nil, wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "empty array", input: []any{}, wantErr: true},
		{name: "array with non-string", input: []any{"a", 123}, wantErr: true},
		{name: "array with empty string", input: []any{"a", ""}, wantErr: true},
		{name: "invalid type", input: 123, wantErr: true},
		{name: "JSON string array", input: `["a", "b"]`, want: []string{"a", "b"}},
		{name: "JSON string array with padding", input: `  ["a"]`, want: []string{"a"}},
		{name: "JSON string empty array", input: `[]`, wantErr: true},
		{name: "invalid JSON string", input: `[invalid json`, want: []string{`[invalid json`}},
		{name: "IMAP-style id in brackets", input: `[42] inbox`, want: []string{`[42] inbox`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "message_ids")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStringOrArray() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !slices.Equal(got, tt.want) {
				t.Errorf("ParseStringOrArray() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		NewSuccessResult("id1", "restored"),
		NewSuccessResult("id2", "restored"),
		NewErrorResult("id3", errors.New("restore is not supported")),
	}

	var br BatchResult
	if err := json.Unmarshal([]byte(FormatResults(results)), &br); err != nil {
		t.Fatalf("failed to parse output JSON: %v", err)
	}

	if br.Total != 3 || br.Successful != 2 || br.Failed != 1 {
		t.Errorf("got total=%d successful=%d failed=%d, want 3/2/1", br.Total, br.Successful, br.Failed)
	}
	if br.Results[2].Error != "restore is not supported" {
		t.Errorf("Results[2].Error = %q", br.Results[2].Error)
	}
}

func TestProcessBatch(t *testing.T) {
	fn := func(_ context.Context, id string) (string, error) {
		if id == "id2" {
			return "", errors.New("failed to process id2")
		}
		return "processed " + id, nil
	}

	results := ProcessBatch(context.Background(), []string{"id1", "id2", "id3"}, fn)

	want := []Result{
		{ID: "id1", Status: StatusSuccess, Result: "processed id1"},
		{ID: "id2", Status: StatusError, Error: "failed to process id2"},
		{ID: "id3", Status: StatusSuccess, Result: "processed id3"},
	}
	if !slices.Equal(results, want) {
		t.Errorf("ProcessBatch() = %+v, want %+v", results, want)
	}
}

func TestProcessBatch_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	fn := func(_ context.Context, id string) (string, error) {
		calls = append(calls, id)
		cancel()
		return "ok", nil
	}

	results := ProcessBatch(ctx, []string{"a", "b", "c"}, fn)

	if !slices.Equal(calls, []string{"a"}) {
		t.Errorf("fn called for %v, want only a", calls)
	}
	if results[0].Status != StatusSuccess {
		t.Errorf("first result = %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.Status != StatusError || r.Error != context.Canceled.Error() {
			t.Errorf("result %+v should report cancellation", r)
		}
	}
}
