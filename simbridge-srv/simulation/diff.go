package simulation

import (
	"fmt"
	"strings"
)

// FieldDiff is a single mismatch between an expected and an actual
// response field.
type FieldDiff struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// DiffEntry collects the mismatches observed for one request.
type DiffEntry struct {
	Request Request     `json:"request"`
	Diffs   []FieldDiff `json:"diffs"`
}

// Report aggregates diff entries over a run.
type Report struct {
	Entries []DiffEntry `json:"entries"`
}

// Empty reports whether no diffs were recorded.
func (r *Report) Empty() bool {
	return len(r.Entries) == 0
}

// Summary renders a human-readable account of all recorded diffs.
func (r *Report) Summary() string {
	if r.Empty() {
		return "no diffs reported"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d request(s) with unexpected responses:\n", len(r.Entries))
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "  %s %s://%s%s\n", e.Request.Method, e.Request.Scheme, e.Request.Host, e.Request.Path)
		for _, d := range e.Diffs {
			fmt.Fprintf(&b, "    %s: expected %q, got %q\n", d.Field, d.Expected, d.Actual)
		}
	}
	return b.String()
}

// CompareResponses diffs an actual response against the expected one.
// Only headers present in the expected response are compared; the actual
// response may carry extra headers without producing a diff.
func CompareResponses(expected, actual Response) []FieldDiff {
	var diffs []FieldDiff

	if expected.Status != actual.Status {
		diffs = append(diffs, FieldDiff{
			Field:    "status",
			Expected: fmt.Sprintf("%d", expected.Status),
			Actual:   fmt.Sprintf("%d", actual.Status),
		})
	}

	for name, want := range expected.Headers {
		got, ok := actual.Headers[name]
		if !ok {
			diffs = append(diffs, FieldDiff{
				Field:    "header/" + name,
				Expected: strings.Join(want, ", "),
				Actual:   "<missing>",
			})
			continue
		}
		if strings.Join(want, ",") != strings.Join(got, ",") {
			diffs = append(diffs, FieldDiff{
				Field:    "header/" + name,
				Expected: strings.Join(want, ", "),
				Actual:   strings.Join(got, ", "),
			})
		}
	}

	if expected.Body != actual.Body || expected.EncodedBody != actual.EncodedBody {
		diffs = append(diffs, FieldDiff{
			Field:    "body",
			Expected: truncate(expected.Body, 200),
			Actual:   truncate(actual.Body, 200),
		})
	}

	return diffs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
