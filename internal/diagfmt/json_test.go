package diagfmt

import (
	"bytes"
	"encoding/json"
	"testing"

	"emlink/internal/diag"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{IncludeNotes: true}); err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var out struct {
		Diagnostics []struct {
			Severity string   `json:"severity"`
			Code     string   `json:"code"`
			Title    string   `json:"title"`
			Stage    string   `json:"stage"`
			Subject  string   `json:"subject"`
			Message  string   `json:"message"`
			Notes    []string `json:"notes"`
		} `json:"diagnostics"`
		Count  int `json:"count"`
		Errors int `json:"errors"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Count != 2 || out.Errors != 1 {
		t.Fatalf("count=%d errors=%d, want 2 and 1", out.Count, out.Errors)
	}
	first := out.Diagnostics[0]
	if first.Severity != "error" || first.Code != "RES2001" || first.Stage != "resolve" || first.Subject != "_puts" {
		t.Errorf("unexpected first diagnostic: %+v", first)
	}
	if first.Title != diag.ResUndefinedSymbol.Title() {
		t.Errorf("title = %q", first.Title)
	}
	if len(first.Notes) != 1 {
		t.Errorf("notes = %v", first.Notes)
	}
}

func TestJSONMaxAndNotes(t *testing.T) {
	out := BuildDiagnosticsOutput(sampleBag(), JSONOpts{Max: 1})
	if out.Count != 1 || !out.Truncated {
		t.Fatalf("count=%d truncated=%v", out.Count, out.Truncated)
	}
	if out.Diagnostics[0].Notes != nil {
		t.Errorf("notes included without IncludeNotes")
	}
}

func TestJSONNilBag(t *testing.T) {
	out := BuildDiagnosticsOutput(nil, JSONOpts{})
	if out.Count != 0 || out.Diagnostics == nil {
		t.Errorf("nil bag should give an empty list, got %+v", out)
	}
}

func TestSarif(t *testing.T) {
	var buf bytes.Buffer
	meta := SarifRunMeta{ToolName: "emlink", ToolVersion: "0.1.0", Artifact: "prog.js"}
	if err := Sarif(&buf, sampleBag(), meta); err != nil {
		t.Fatalf("Sarif: %v", err)
	}
	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Invocations []struct {
				ExecutionSuccessful bool `json:"executionSuccessful"`
			} `json:"invocations"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				Level     string `json:"level"`
				Locations []struct {
					LogicalLocations []struct {
						Name string `json:"name"`
					} `json:"logicalLocations"`
				} `json:"locations"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if doc.Version != "2.1.0" || len(doc.Runs) != 1 {
		t.Fatalf("unexpected log header: %+v", doc)
	}
	run := doc.Runs[0]
	if run.Tool.Driver.Name != "emlink" || len(run.Tool.Driver.Rules) != 2 {
		t.Errorf("driver = %+v", run.Tool.Driver)
	}
	if run.Invocations[0].ExecutionSuccessful {
		t.Errorf("run with errors reported as successful")
	}
	if len(run.Results) != 2 || run.Results[0].Level != "error" || run.Results[1].Level != "warning" {
		t.Fatalf("results = %+v", run.Results)
	}
	if got := run.Results[0].Locations[0].LogicalLocations[0].Name; got != "_puts" {
		t.Errorf("logical location = %q", got)
	}
}
