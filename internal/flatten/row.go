package flatten

import (
	"fmt"

	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/table"
)

// Fixed columns, in row order. Task columns follow them.
const (
	ColProject             = "project"
	ColTitle               = "title"
	ColAddedBy             = "added_by"
	ColDateAdded           = "date_added"
	ColStatus              = "status"
	ColContent             = "content"
	ColURL                 = "url"
	ColType                = "type"
	ColDatePublished       = "date_published"
	ColTags                = "tags"
	ColComments            = "comments"
	ColCountContributors   = "count_contributors"
	ColCountNotes          = "count_notes"
	ColCountTasks          = "count_tasks"
	ColCountTasksCompleted = "count_tasks_completed"
	ColTimeToFirstStatus   = "time_to_first_status"
	ColTimeToLastStatus    = "time_to_last_status"
)

// Options tune how rows are assembled
type Options struct {
	// AnswerDateFromResponse takes task_N_date_answered from the first
	// response's own timestamp instead of the media creation time.
	AnswerDateFromResponse bool
}

// AssembleRow builds the row for one media item
func AssembleRow(project *models.Project, m *models.ProjectMedia, opts Options) (*table.Row, error) {
	var meta models.MediaMetadata
	if err := m.Metadata.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrMalformedDocument, err)
	}
	comments, err := MediaComments(m)
	if err != nil {
		return nil, err
	}
	tasks, err := TaskColumns(m, opts)
	if err != nil {
		return nil, err
	}
	embed := decodeEmbed(m.Media.Embed)

	row := table.NewRow()
	row.Set(ColProject, project.Title)
	row.Set(ColTitle, FromPtr(meta.Title).Cell())
	setUser(row, ColAddedBy, m.User)
	row.Set(ColDateAdded, m.CreatedAt.Time())
	row.Set(ColStatus, m.LastStatus)
	row.Set(ColContent, Content(m, &meta).Cell())
	row.Set(ColURL, URL(m).Cell())
	row.Set(ColType, Type(m, embed).Cell())
	row.Set(ColDatePublished, ParseDate(LookupString(embed, "published_at").OrElse("")).Cell())
	row.Set(ColTags, Tags(m).Cell())
	row.Set(ColComments, comments.Cell())
	row.Set(ColCountContributors, CountContributors(m))
	row.Set(ColCountNotes, m.Comments.Len())
	row.Set(ColCountTasks, m.Tasks.Len())
	row.Set(ColCountTasksCompleted, CountTasksCompleted(m))
	row.Set(ColTimeToFirstStatus, TimeToStatus(m, true).Cell())
	row.Set(ColTimeToLastStatus, TimeToStatus(m, false).Cell())
	row.Merge(tasks)

	return row, nil
}

// Content is the claim quote for claims and the metadata description otherwise
func Content(m *models.ProjectMedia, meta *models.MediaMetadata) Optional[string] {
	if m.ReportType == models.ReportTypeClaim {
		return FromPtr(m.Media.Quote)
	}
	return FromPtr(meta.Description)
}

// URL is the picture of an uploaded image or the address of a link
func URL(m *models.ProjectMedia) Optional[string] {
	switch m.ReportType {
	case models.ReportTypeUploadedImage:
		return FromPtr(m.Media.Picture)
	case models.ReportTypeLink:
		return FromPtr(m.Media.URL)
	default:
		return None[string]()
	}
}

// Type is the embed provider for links and the report type otherwise
func Type(m *models.ProjectMedia, embed any) Optional[string] {
	if m.ReportType == models.ReportTypeLink {
		return LookupString(embed, "provider")
	}
	return Some(m.ReportType)
}

// decodeEmbed returns the embed object, or nil when it is missing or unreadable
func decodeEmbed(s models.Serialized) any {
	if s.IsNull() {
		return nil
	}
	var embed map[string]any
	if err := s.Decode(&embed); err != nil {
		return nil
	}
	return embed
}
