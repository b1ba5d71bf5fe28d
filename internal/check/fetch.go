package check

import (
	"context"
	"errors"

	"github.com/cyderes/check-export-service/internal/flatten"
	"github.com/cyderes/check-export-service/internal/table"
)

// Fetch queries the team and flattens it. A fetch failure becomes an error
// result carrying "<Kind>: <message>"; a document the flattener cannot read is
// returned as an error, with no partial table.
func Fetch(ctx context.Context, q Querier, params Params, opts flatten.Options) (table.Result, error) {
	doc, err := q.Query(ctx, params)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return table.Failed(fe.Error()), nil
		}
		return table.Result{}, err
	}

	t, err := flatten.Build(doc, opts)
	if err != nil {
		return table.Result{}, err
	}

	return table.OK(t), nil
}
