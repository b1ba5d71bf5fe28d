package storage

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/check-export-service/internal/models"
)

func largeSnapshot(rows int) models.Snapshot {
	columns := []string{"project", "title", "added_by", "added_by_anon", "comments", "count_tasks", "task_1_answer"}
	data := make([]map[string]any, rows)
	for i := range data {
		data[i] = map[string]any{
			"project":       "Investigations",
			"title":         fmt.Sprintf("Media item %d", i),
			"added_by":      "Alice",
			"added_by_anon": "Anonymous",
			"comments":      "- " + strings.Repeat("checked the source again ", 24),
			"count_tasks":   i % 4,
			"task_1_answer": nil,
		}
	}
	return models.Snapshot{
		ID:        "snap-1",
		Team:      "my-team",
		FetchedAt: time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC),
		RowCount:  rows,
		Columns:   columns,
		Rows:      data,
	}
}

func TestDynamoItems_StayUnderItemLimitForLargeTeams(t *testing.T) {
	snapshot := largeSnapshot(600)

	header, err := headerItem(snapshot)
	require.NoError(t, err)
	assert.Less(t, itemSize(header), 4*1024)
	assert.NotContains(t, header, "data")

	items, err := rowItems(snapshot.ID, snapshot.Rows)
	require.NoError(t, err)
	require.Len(t, items, 600)

	total := 0
	for _, item := range items {
		size := itemSize(item)
		assert.LessOrEqual(t, size, maxItemSize)
		total += size
	}
	// the same rows in one item would be rejected
	assert.Greater(t, total, maxItemSize)

	assert.Equal(t, "snap-1", *items[42]["snapshot_id"].S)
	assert.Equal(t, "42", *items[42]["row"].N)
}

func TestDynamoItems_RowsRoundTripInOrder(t *testing.T) {
	snapshot := largeSnapshot(60)

	items, err := rowItems(snapshot.ID, snapshot.Rows)
	require.NoError(t, err)

	shuffled := make([]map[string]*dynamodb.AttributeValue, len(items))
	copy(shuffled, items)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	rows, err := decodeRows(shuffled)
	require.NoError(t, err)
	require.Len(t, rows, 60)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("Media item %d", i), row["title"])
	}
	assert.Equal(t, float64(3), rows[7]["count_tasks"])

	v, ok := rows[0]["task_1_answer"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestDynamoItems_EmptySnapshot(t *testing.T) {
	items, err := rowItems("empty", nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	rows, err := decodeRows(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDynamoItems_OversizedRowIsRejected(t *testing.T) {
	rows := []map[string]any{
		{"comments": "short"},
		{"comments": strings.Repeat("x", maxItemSize)},
	}

	_, err := rowItems("snap-2", rows)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 of snapshot snap-2")
}
