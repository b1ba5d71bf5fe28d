package table

import "strings"

// AnonSuffix marks the anonymized twin of a user-identity column
const AnonSuffix = "_anon"

// Result statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is what a fetch hands to its caller: a table, or an error message in
// place of one
type Result struct {
	Status string
	Error  string
	Table  *Table
}

// OK wraps a successfully built table
func OK(t *Table) Result {
	return Result{Status: StatusOK, Table: t}
}

// Failed wraps a fetch error message
func Failed(message string) Result {
	return Result{Status: StatusError, Error: message}
}

// IsError reports whether the result carries an error instead of a table
func (r Result) IsError() bool {
	return r.Status == StatusError
}

// Render resolves every {name, name_anon} column pair to exactly one column
// called name. With anonymize the placeholder values win, otherwise the real
// ones do. Error results and empty tables are returned unchanged; the input
// table is never modified.
func Render(result Result, anonymize bool) Result {
	if result.IsError() || result.Table.Empty() {
		return result
	}

	t := result.Table.Clone()
	for _, c := range result.Table.Columns {
		base, ok := strings.CutSuffix(c, AnonSuffix)
		if !ok || base == "" {
			continue
		}
		if anonymize {
			t.Replace(base, c)
		} else {
			t.Drop(c)
		}
	}

	return Result{Status: result.Status, Table: t}
}
