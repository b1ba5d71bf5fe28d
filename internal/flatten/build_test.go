package flatten

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/check-export-service/internal/models"
)

func loadDocument(t *testing.T) *models.Document {
	t.Helper()
	data, err := os.ReadFile("testdata/team.json")
	require.NoError(t, err)

	var doc models.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return &doc
}

func assertTime(t *testing.T, want time.Time, got any) {
	t.Helper()
	ts, ok := got.(time.Time)
	require.True(t, ok, "expected time.Time, got %T", got)
	assert.True(t, want.Equal(ts), "expected %s, got %s", want, ts)
}

func TestBuild_OneRowPerMediaInDocumentOrder(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{})
	require.NoError(t, err)

	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "Investigations", tbl.Value(0, ColProject))
	assert.Equal(t, "Viral tweet", tbl.Value(0, ColTitle))
	assert.Equal(t, "Investigations", tbl.Value(1, ColProject))
	assert.Equal(t, "Claim about vaccines", tbl.Value(1, ColTitle))
	assert.Equal(t, "Archive", tbl.Value(2, ColProject))
	assert.Equal(t, "Flood photo", tbl.Value(2, ColTitle))
}

func TestBuild_LinkMedia(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, "twitter", tbl.Value(0, ColType))
	assert.Nil(t, tbl.Value(0, ColTags))
	assert.Equal(t, "- first\n- second", tbl.Value(0, ColComments))
	assert.Equal(t, 1, tbl.Value(0, ColCountTasks))
	assert.Equal(t, 1, tbl.Value(0, ColCountTasksCompleted))
	assert.Equal(t, "Yes", tbl.Value(0, "task_1_answer"))

	assert.Equal(t, "Alice", tbl.Value(0, ColAddedBy))
	assert.Equal(t, Anonymous, tbl.Value(0, "added_by_anon"))
	assert.Equal(t, "verified", tbl.Value(0, ColStatus))
	assert.Equal(t, "A tweet about a flood", tbl.Value(0, ColContent))
	assert.Equal(t, "https://twitter.com/example/status/1", tbl.Value(0, ColURL))
	assertTime(t, time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC), tbl.Value(0, ColDateAdded))
	assertTime(t, time.Date(2020, 1, 14, 8, 0, 0, 0, time.UTC), tbl.Value(0, ColDatePublished))

	assert.Equal(t, 2, tbl.Value(0, ColCountContributors))
	assert.Equal(t, 2, tbl.Value(0, ColCountNotes))
	assert.Equal(t, time.Hour, tbl.Value(0, ColTimeToFirstStatus))
	assert.Equal(t, 2*time.Hour, tbl.Value(0, ColTimeToLastStatus))

	assert.Equal(t, "Is this verified?", tbl.Value(0, "task_1_question"))
	assert.Equal(t, "checked the source", tbl.Value(0, "task_1_comments"))
	assert.Equal(t, "Bob", tbl.Value(0, "task_1_added_by"))
	assert.Equal(t, Anonymous, tbl.Value(0, "task_1_added_by_anon"))
	assert.Equal(t, "Carol", tbl.Value(0, "task_1_answered_by"))
	assert.Equal(t, Anonymous, tbl.Value(0, "task_1_answered_by_anon"))
	assertTime(t, time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC), tbl.Value(0, "task_1_date_answered"))
}

func TestBuild_ClaimMedia(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, "Vaccines cause X", tbl.Value(1, ColContent))
	assert.Nil(t, tbl.Value(1, ColURL))
	assert.Equal(t, "claim", tbl.Value(1, ColType))
	assert.Nil(t, tbl.Value(1, ColDatePublished))
	assert.Equal(t, "vaccines, health", tbl.Value(1, ColTags))
	assert.Equal(t, "only note", tbl.Value(1, ColComments))
	assert.Equal(t, 0, tbl.Value(1, ColCountContributors))
	assert.Equal(t, 2, tbl.Value(1, ColCountTasks))
	assert.Equal(t, 1, tbl.Value(1, ColCountTasksCompleted))
	assert.Nil(t, tbl.Value(1, ColTimeToFirstStatus))
	assert.Nil(t, tbl.Value(1, ColTimeToLastStatus))

	// oldest task first
	assert.Equal(t, "Who said it?", tbl.Value(1, "task_1_question"))
	assert.Equal(t, "A politician", tbl.Value(1, "task_1_answer"))
	assert.Equal(t, "Source?", tbl.Value(1, "task_2_question"))
	assert.Equal(t, "Bob", tbl.Value(1, "task_2_added_by"))

	for _, suffix := range []string{"answer", "date_answered", "answered_by", "answered_by_anon"} {
		_, ok := tbl.Rows[1]["task_2_"+suffix]
		assert.False(t, ok, "task_2_%s should not be set", suffix)
	}
}

func TestBuild_UploadedImageMedia(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.org/flood.png", tbl.Value(2, ColURL))
	assert.Equal(t, "uploadedimage", tbl.Value(2, ColType))
	assert.Nil(t, tbl.Value(2, ColContent))
	assert.Nil(t, tbl.Value(2, ColComments))
	assert.Equal(t, 0, tbl.Value(2, ColCountContributors))
	assert.Equal(t, 0, tbl.Value(2, ColCountTasks))
}

func TestBuild_ColumnsAreUnionOfRows(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{})
	require.NoError(t, err)

	expected := []string{
		"project", "title", "added_by", "added_by_anon", "date_added", "status",
		"content", "url", "type", "date_published", "tags", "comments",
		"count_contributors", "count_notes", "count_tasks", "count_tasks_completed",
		"time_to_first_status", "time_to_last_status",
		"task_1_question", "task_1_comments", "task_1_added_by", "task_1_added_by_anon",
		"task_1_answer", "task_1_date_answered", "task_1_answered_by", "task_1_answered_by_anon",
		"task_2_question", "task_2_comments", "task_2_added_by", "task_2_added_by_anon",
	}
	assert.Equal(t, expected, tbl.Columns)

	_, ok := tbl.Rows[2]["task_1_question"]
	assert.False(t, ok)
	assert.Nil(t, tbl.Value(2, "task_1_question"))
	assert.Nil(t, tbl.Value(0, "task_2_question"))
}

func TestBuild_AnswerDateFromResponse(t *testing.T) {
	tbl, err := Build(loadDocument(t), Options{AnswerDateFromResponse: true})
	require.NoError(t, err)

	assertTime(t, time.Unix(1579090000, 0).UTC(), tbl.Value(0, "task_1_date_answered"))
}

func TestBuild_MalformedFirstResponseAbortsBuild(t *testing.T) {
	doc := loadDocument(t)
	media := &doc.Data.Team.Projects.Edges[0].Node.ProjectMedias.Edges[0].Node
	media.Tasks.Edges[0].Node.FirstResponse.Content = models.Serialized(`"not json"`)

	tbl, err := Build(doc, Options{})

	assert.Nil(t, tbl)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.Contains(t, err.Error(), `project "Investigations", media 0`)
}

func TestBuild_MissingMetadataAbortsBuild(t *testing.T) {
	doc := loadDocument(t)
	doc.Data.Team.Projects.Edges[1].Node.ProjectMedias.Edges[0].Node.Metadata = nil

	tbl, err := Build(doc, Options{})

	assert.Nil(t, tbl)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestBuild_EmptyTeam(t *testing.T) {
	tbl, err := Build(&models.Document{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, tbl.Len())
	assert.True(t, tbl.Empty())
}

func TestBuild_NilDocument(t *testing.T) {
	_, err := Build(nil, Options{})
	assert.ErrorIs(t, err, ErrMalformedDocument)
}
