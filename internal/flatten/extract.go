package flatten

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cyderes/check-export-service/internal/models"
	"github.com/cyderes/check-export-service/internal/table"
)

// Anonymous stands in for a user's name in anonymized columns
const Anonymous = "Anonymous"

// Published dates carry a literal ".000Z" suffix
const (
	publishedSuffix = ".000Z"
	publishedLayout = "2006-01-02T15:04:05"
)

// ParseDate parses timestamps like 2020-01-15T10:30:00.000Z as UTC. Anything
// else is absent.
func ParseDate(s string) Optional[time.Time] {
	base, ok := strings.CutSuffix(s, publishedSuffix)
	if !ok || len(base) != len(publishedLayout) {
		return None[time.Time]()
	}
	t, err := time.Parse(publishedLayout, base)
	if err != nil {
		return None[time.Time]()
	}
	return Some(t)
}

// reversed returns a reversed copy; the API lists newest first
func reversed[T any](s []T) []T {
	r := slices.Clone(s)
	slices.Reverse(r)
	return r
}

// Tags joins the tag labels oldest first
func Tags(m *models.ProjectMedia) Optional[string] {
	tags := reversed(m.Tags.Nodes())
	if len(tags) == 0 {
		return None[string]()
	}
	texts := make([]string, len(tags))
	for i, t := range tags {
		texts[i] = t.TagText
	}
	return Some(strings.Join(texts, ", "))
}

// FormatComments renders several comments as a markdown bullet list and a
// single comment verbatim
func FormatComments(comments []string) Optional[string] {
	switch len(comments) {
	case 0:
		return None[string]()
	case 1:
		return Some(comments[0])
	default:
		return Some("- " + strings.Join(comments, "\n- "))
	}
}

// MediaComments formats the media item's comments in API order
func MediaComments(m *models.ProjectMedia) (Optional[string], error) {
	texts := make([]string, 0, m.Comments.Len())
	for i, c := range m.Comments.Nodes() {
		var content models.CommentContent
		if err := c.Content.Decode(&content); err != nil {
			return None[string](), fmt.Errorf("%w: comment %d content: %v", ErrMalformedDocument, i, err)
		}
		texts = append(texts, content.Text)
	}
	return FormatComments(texts), nil
}

// TaskComments formats the comments found in a task's log, in log order
func TaskComments(task *models.Task) (Optional[string], error) {
	var texts []string
	for i, e := range task.Log.Nodes() {
		if e.EventType != models.EventCreateComment {
			continue
		}
		if e.Annotation == nil {
			return None[string](), fmt.Errorf("%w: task log event %d has no annotation", ErrMalformedDocument, i)
		}
		var content models.CommentContent
		if err := e.Annotation.Content.Decode(&content); err != nil {
			return None[string](), fmt.Errorf("%w: task log event %d content: %v", ErrMalformedDocument, i, err)
		}
		texts = append(texts, content.Text)
	}
	return FormatComments(texts), nil
}

// TaskAnswer returns the formatted value of the first response_* field of the
// task's first response
func TaskAnswer(task *models.Task) (Optional[any], error) {
	if task.FirstResponse == nil {
		return None[any](), nil
	}
	var fields []models.ResponseField
	if err := task.FirstResponse.Content.Decode(&fields); err != nil {
		return None[any](), fmt.Errorf("%w: first response content: %v", ErrMalformedDocument, err)
	}
	for _, f := range fields {
		if strings.HasPrefix(f.FieldName, "response_") {
			return Some(f.FormattedValue), nil
		}
	}
	return None[any](), nil
}

// TimeToStatus measures from creation to the first (or last) status change
func TimeToStatus(m *models.ProjectMedia, first bool) Optional[time.Duration] {
	var times []models.EpochSeconds
	for _, e := range reversed(m.Log.Nodes()) {
		if e.EventType == models.EventStatusChange {
			times = append(times, e.CreatedAt)
		}
	}
	if len(times) == 0 {
		return None[time.Duration]()
	}
	t := times[len(times)-1]
	if first {
		t = times[0]
	}
	return Some(time.Duration(int64(t)-int64(m.CreatedAt)) * time.Second)
}

// FormatUser returns the placeholder when anonymizing, else the user's name
func FormatUser(u *models.User, anonymize bool) Optional[string] {
	if anonymize {
		return Some(Anonymous)
	}
	if u == nil {
		return None[string]()
	}
	return Some(u.Name)
}

// setUser writes the {column, column_anon} pair
func setUser(row *table.Row, column string, u *models.User) {
	row.Set(column, FormatUser(u, false).Cell())
	row.Set(column+table.AnonSuffix, FormatUser(u, true).Cell())
}

func annotatorUser(a *models.Annotator) *models.User {
	if a == nil {
		return nil
	}
	return a.User
}

// TaskColumns expands the media item's tasks, oldest first, into task_N_*
// columns. The answer group only exists for tasks with a first response.
func TaskColumns(m *models.ProjectMedia, opts Options) (*table.Row, error) {
	row := table.NewRow()
	for i, task := range reversed(m.Tasks.Nodes()) {
		prefix := fmt.Sprintf("task_%d_", i+1)

		comments, err := TaskComments(&task)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		row.Set(prefix+"question", task.Label)
		row.Set(prefix+"comments", comments.Cell())
		setUser(row, prefix+"added_by", annotatorUser(task.Annotator))

		if task.FirstResponse == nil {
			continue
		}
		answer, err := TaskAnswer(&task)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		answered := m.CreatedAt.Time()
		if opts.AnswerDateFromResponse && task.FirstResponse.CreatedAt != 0 {
			answered = task.FirstResponse.CreatedAt.Time()
		}
		row.Set(prefix+"answer", answer.Cell())
		row.Set(prefix+"date_answered", answered)
		setUser(row, prefix+"answered_by", task.FirstResponse.AnnotationUser())
	}
	return row, nil
}

// CountContributors counts the distinct users acting in the media log
func CountContributors(m *models.ProjectMedia) int {
	ids := make(map[string]struct{})
	for _, e := range m.Log.Nodes() {
		if e.User == nil || e.User.ID == "" {
			continue
		}
		ids[e.User.ID] = struct{}{}
	}
	return len(ids)
}

// CountTasksCompleted counts resolved tasks
func CountTasksCompleted(m *models.ProjectMedia) int {
	n := 0
	for _, t := range m.Tasks.Nodes() {
		if t.Status == models.TaskStatusResolved {
			n++
		}
	}
	return n
}
