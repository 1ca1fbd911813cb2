package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/vector"
)

func TestWriteQueryResults_JSON(t *testing.T) {
	response := &models.QueryResponse{
		Results:   []models.QueryResult{{ID: "doc-1", Score: 0.9, Tokens: 12, Scope: "docs"}},
		Total:     1,
		QueryTime: 42,
		Scopes:    []string{"docs"},
	}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteQueryResults(json): %v", err)
	}
	var decoded models.QueryResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Total != 1 || decoded.Results[0].ID != "doc-1" || decoded.QueryTime != 42 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteQueryResults_Text(t *testing.T) {
	response := &models.QueryResponse{
		Results: []models.QueryResult{{ID: "doc-1", Score: 0.5, Tokens: 3, Scope: "docs"}, {ID: "doc-2", Score: 0.25}},
		Total:   2,
		Scopes:  []string{"docs", "notes"},
	}
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, response, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results", "across 2 scopes", "Rank: 1 | Score: 0.5000", "ID: doc-2", "Scope: docs"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteWindow_Text(t *testing.T) {
	win := &models.Window{
		Model:          "gpt-4o",
		ModelBudget:    128000,
		OverheadTokens: 50,
		HistoryBudget:  100,
		HistoryTokens:  30,
		Dropped:        2,
		Repaired:       1,
		Tools:          []models.ToolDefinition{{Type: "function", Function: models.FunctionSpec{Name: "search"}}},
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "Be brief."},
			{Role: models.RoleUser, Content: strings.Repeat("x", 300)},
		},
	}
	var buf bytes.Buffer
	if err := WriteWindow(&buf, win, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Model: gpt-4o (budget 128000)", "History: 30 of 100 tokens", "Dropped: 2", "Tools: search", "[system] Be brief.", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 201)) {
		t.Error("long message content should be truncated")
	}
}

func TestWriteStatus(t *testing.T) {
	s := &Status{
		Scopes:         []vector.ScopeStats{{Scope: "docs", Key: "indices/docs.jsonl", Loaded: true, Items: 7}},
		Conversations:  3,
		DiskUsageBytes: 2048,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "2.0 KiB") || !strings.Contains(buf.String(), "docs") {
		t.Errorf("status output:\n%s", buf.String())
	}
	buf.Reset()
	if err := WriteStatus(&buf, s, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("invalid JSON: %s", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 1536: "1.5 KiB", 1 << 20: "1.0 MiB"}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
