// Package flatten turns a Check team document into one table row per media
// item. It performs no I/O and keeps no state; concurrent calls on separate
// documents are safe.
package flatten

import (
	"errors"
	"fmt"

	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/table"
)

// ErrMalformedDocument is wrapped by every error caused by a document that
// breaks a structural assumption of the flattener
var ErrMalformedDocument = errors.New("malformed document")

// Build assembles one row per media item, projects first then media items,
// both in document order. The first failing item aborts the build.
func Build(doc *models.Document, opts Options) (*table.Table, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformedDocument)
	}

	var rows []*table.Row
	for _, project := range doc.Data.Team.Projects.Nodes() {
		for i, media := range project.ProjectMedias.Nodes() {
			row, err := AssembleRow(&project, &media, opts)
			if err != nil {
				return nil, fmt.Errorf("project %q, media %d: %w", project.Title, i, err)
			}
			rows = append(rows, row)
		}
	}

	return table.FromRows(rows), nil
}
