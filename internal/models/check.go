package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Document is the GraphQL response envelope returned by the Check API
type Document struct {
	Data struct {
		Team Team `json:"team"`
	} `json:"data"`
}

// Connection is a Relay-style list: {"edges": [{"node": ...}]}
type Connection[T any] struct {
	Edges []Edge[T] `json:"edges"`
}

// Edge wraps a single node of a Connection
type Edge[T any] struct {
	Node T `json:"node"`
}

// Nodes returns the nodes in source order
func (c Connection[T]) Nodes() []T {
	nodes := make([]T, len(c.Edges))
	for i, e := range c.Edges {
		nodes[i] = e.Node
	}
	return nodes
}

// Len returns the number of edges
func (c Connection[T]) Len() int {
	return len(c.Edges)
}

// Team is the root of the exported tree
type Team struct {
	Projects Connection[Project] `json:"projects"`
}

// Project groups media items under a display title
type Project struct {
	Title         string                   `json:"title"`
	ProjectMedias Connection[ProjectMedia] `json:"project_medias"`
}

// Report types that change how a media item is flattened
const (
	ReportTypeClaim         = "claim"
	ReportTypeLink          = "link"
	ReportTypeUploadedImage = "uploadedimage"
)

// Event types read from media and task logs
const (
	EventStatusChange  = "update_dynamicannotationfield"
	EventCreateComment = "create_comment"
)

// TaskStatusResolved marks a completed task
const TaskStatusResolved = "resolved"

// ProjectMedia is one annotated media item; it becomes one output row
type ProjectMedia struct {
	User       *User                  `json:"user"`
	CreatedAt  EpochSeconds           `json:"created_at"`
	ReportType string                 `json:"report_type"`
	Metadata   Serialized             `json:"metadata"`
	LastStatus string                 `json:"last_status"`
	Media      Media                  `json:"media"`
	Tags       Connection[Tag]        `json:"tags"`
	Tasks      Connection[Task]       `json:"tasks"`
	Comments   Connection[Annotation] `json:"comments"`
	Log        Connection[LogEvent]   `json:"log"`
}

// Media is the report-type dependent payload of a media item
type Media struct {
	Quote   *string    `json:"quote"`
	Picture *string    `json:"picture"`
	URL     *string    `json:"url"`
	Embed   Serialized `json:"embed"`
}

// MediaMetadata is the decoded metadata blob of a media item
type MediaMetadata struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// User is a Check user reference
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Annotator points at the user behind an annotation
type Annotator struct {
	User *User `json:"user"`
}

// Tag is a text label on a media item
type Tag struct {
	TagText string `json:"tag_text"`
}

// Task is a structured question attached to a media item
type Task struct {
	Annotator     *Annotator               `json:"annotator"`
	CreatedAt     EpochSeconds             `json:"created_at"`
	Label         string                   `json:"label"`
	Status        string                   `json:"status"`
	FirstResponse *Annotation              `json:"first_response"`
	Log           Connection[TaskLogEvent] `json:"log"`
}

// Annotation is a comment or task response
type Annotation struct {
	Annotator *Annotator   `json:"annotator"`
	CreatedAt EpochSeconds `json:"created_at"`
	Content   Serialized   `json:"content"`
}

// AnnotationUser returns the annotating user, or nil when unknown
func (a *Annotation) AnnotationUser() *User {
	if a == nil || a.Annotator == nil {
		return nil
	}
	return a.Annotator.User
}

// TaskLogEvent is an entry in a task's log
type TaskLogEvent struct {
	Annotation *Annotation `json:"annotation"`
	EventType  string      `json:"event_type"`
}

// LogEvent is an entry in a media item's log
type LogEvent struct {
	CreatedAt EpochSeconds `json:"created_at"`
	User      *User        `json:"user"`
	EventType string       `json:"event_type"`
}

// CommentContent is the decoded content of a comment annotation
type CommentContent struct {
	Text string `json:"text"`
}

// ResponseField is one labeled field of a task response
type ResponseField struct {
	FieldName      string `json:"field_name"`
	FormattedValue any    `json:"formatted_value"`
}

// EpochSeconds is a Unix timestamp that the API sends either as a number or a
// numeric string
type EpochSeconds int64

// UnmarshalJSON accepts 1579084200, "1579084200" and null
func (e *EpochSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*e = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid epoch timestamp %q: %w", data, err)
	}
	*e = EpochSeconds(n)
	return nil
}

// Time converts the timestamp to UTC
func (e EpochSeconds) Time() time.Time {
	return time.Unix(int64(e), 0).UTC()
}

// Serialized holds a JSON scalar field. Check returns these either as a string
// containing JSON or, depending on the field, as inline JSON.
type Serialized json.RawMessage

// UnmarshalJSON keeps the raw bytes
func (s *Serialized) UnmarshalJSON(data []byte) error {
	*s = append((*s)[:0], data...)
	return nil
}

// MarshalJSON writes the raw bytes back, or null when empty
func (s Serialized) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

// IsNull reports whether the field was absent or null
func (s Serialized) IsNull() bool {
	trimmed := bytes.TrimSpace(s)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the field into v, unwrapping string-encoded JSON first
func (s Serialized) Decode(v any) error {
	if s.IsNull() {
		return fmt.Errorf("serialized field is null")
	}
	raw := bytes.TrimSpace(s)
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		raw = []byte(inner)
	}
	return json.Unmarshal(raw, v)
}
