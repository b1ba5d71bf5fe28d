package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/models"
)

// DynamoDBStorage implements Storage interface using AWS DynamoDB. A snapshot
// is a header item in the main table plus one item per row in the rows table,
// keyed by snapshot id and row index, so no item grows with the team.
type DynamoDBStorage struct {
	client      *dynamodb.DynamoDB
	tableName   string
	rowsTable   string
	statusTable string
}

const (
	// maxItemSize is the DynamoDB limit for a single item
	maxItemSize = 400 * 1024
	// batchWriteMax is the most requests BatchWriteItem accepts at once
	batchWriteMax    = 25
	maxBatchAttempts = 5
)

// dynamoSnapshot is the header item layout
type dynamoSnapshot struct {
	ID        string    `dynamodbav:"id"`
	Team      string    `dynamodbav:"team"`
	FetchedAt time.Time `dynamodbav:"fetched_at"`
	RowCount  int       `dynamodbav:"row_count"`
	Columns   []string  `dynamodbav:"columns"`
}

// dynamoRow holds one table row. Cells are heterogeneous and often null, so
// the row is kept as a JSON document.
type dynamoRow struct {
	SnapshotID string `dynamodbav:"snapshot_id"`
	Index      int    `dynamodbav:"row"`
	Data       string `dynamodbav:"data"`
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	storage := &DynamoDBStorage{
		client:      dynamodb.New(sess),
		tableName:   cfg.TableName,
		rowsTable:   cfg.TableName + "_rows",
		statusTable: cfg.TableName + "_status",
	}

	tables := []struct {
		name, hash, rng string
	}{
		{storage.tableName, "id", ""},
		{storage.statusTable, "id", ""},
		{storage.rowsTable, "snapshot_id", "row"},
	}
	for _, t := range tables {
		if err := storage.ensureTable(t.name, t.hash, t.rng); err != nil {
			return nil, fmt.Errorf("failed to ensure table %s exists: %w", t.name, err)
		}
	}

	return storage, nil
}

// ensureTable creates a table with a string hash key and an optional numeric
// range key if it doesn't exist
func (d *DynamoDBStorage) ensureTable(name, hashKey, rangeKey string) error {
	_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err == nil {
		return nil
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(hashKey),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(hashKey),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}
	if rangeKey != "" {
		input.KeySchema = append(input.KeySchema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(rangeKey),
			KeyType:       aws.String("RANGE"),
		})
		input.AttributeDefinitions = append(input.AttributeDefinitions, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(rangeKey),
			AttributeType: aws.String("N"),
		})
	}

	if _, err = d.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
}

// headerItem builds the snapshot header without its rows
func headerItem(snapshot models.Snapshot) (map[string]*dynamodb.AttributeValue, error) {
	item, err := dynamodbattribute.MarshalMap(dynamoSnapshot{
		ID:        snapshot.ID,
		Team:      snapshot.Team,
		FetchedAt: snapshot.FetchedAt,
		RowCount:  snapshot.RowCount,
		Columns:   snapshot.Columns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot %s: %w", snapshot.ID, err)
	}
	if size := itemSize(item); size > maxItemSize {
		return nil, fmt.Errorf("header of snapshot %s is %d bytes, over the item limit", snapshot.ID, size)
	}
	return item, nil
}

// rowItems builds one item per row, in row order
func rowItems(snapshotID string, rows []map[string]any) ([]map[string]*dynamodb.AttributeValue, error) {
	items := make([]map[string]*dynamodb.AttributeValue, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d of snapshot %s: %w", i, snapshotID, err)
		}
		item, err := dynamodbattribute.MarshalMap(dynamoRow{SnapshotID: snapshotID, Index: i, Data: string(data)})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal row %d of snapshot %s: %w", i, snapshotID, err)
		}
		if size := itemSize(item); size > maxItemSize {
			return nil, fmt.Errorf("row %d of snapshot %s is %d bytes, over the item limit", i, snapshotID, size)
		}
		items[i] = item
	}
	return items, nil
}

// decodeRows turns row items back into rows ordered by index
func decodeRows(items []map[string]*dynamodb.AttributeValue) ([]map[string]any, error) {
	var stored []dynamoRow
	if err := dynamodbattribute.UnmarshalListOfMaps(items, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rows: %w", err)
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].Index < stored[j].Index
	})

	rows := make([]map[string]any, len(stored))
	for i, r := range stored {
		if err := json.Unmarshal([]byte(r.Data), &rows[i]); err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", r.Index, err)
		}
	}
	return rows, nil
}

// itemSize approximates the stored size of an item: attribute names plus
// their values
func itemSize(item map[string]*dynamodb.AttributeValue) int {
	n := 0
	for name, v := range item {
		n += len(name) + valueSize(v)
	}
	return n
}

func valueSize(v *dynamodb.AttributeValue) int {
	switch {
	case v == nil:
		return 0
	case v.S != nil:
		return len(*v.S)
	case v.N != nil:
		return len(*v.N)
	case v.L != nil:
		n := 3
		for _, e := range v.L {
			n += 1 + valueSize(e)
		}
		return n
	case v.M != nil:
		return 3 + itemSize(v.M)
	default:
		return 1
	}
}

// StoreSnapshot writes the rows, then the header that makes them visible
func (d *DynamoDBStorage) StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	header, err := headerItem(snapshot)
	if err != nil {
		return err
	}
	rows, err := rowItems(snapshot.ID, snapshot.Rows)
	if err != nil {
		return err
	}

	if err := d.writeRows(ctx, rows); err != nil {
		return fmt.Errorf("failed to store rows of snapshot %s: %w", snapshot.ID, err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      header,
	})
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", snapshot.ID, err)
	}

	return nil
}

// writeRows batch-writes row items, resubmitting unprocessed ones with a
// linear backoff
func (d *DynamoDBStorage) writeRows(ctx context.Context, items []map[string]*dynamodb.AttributeValue) error {
	for start := 0; start < len(items); start += batchWriteMax {
		end := min(start+batchWriteMax, len(items))
		requests := make([]*dynamodb.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: item}})
		}

		pending := map[string][]*dynamodb.WriteRequest{d.rowsTable: requests}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchAttempts {
				return fmt.Errorf("rows %d-%d still unprocessed after %d attempts", start, end-1, maxBatchAttempts)
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
				}
			}

			out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// queryRows reads every row item of a snapshot
func (d *DynamoDBStorage) queryRows(ctx context.Context, snapshotID string) ([]map[string]any, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.rowsTable),
		KeyConditionExpression: aws.String("snapshot_id = :id"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":id": {S: aws.String(snapshotID)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	var items []map[string]*dynamodb.AttributeValue
	err := d.client.QueryPagesWithContext(ctx, input, func(out *dynamodb.QueryOutput, last bool) bool {
		items = append(items, out.Items...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}

	return decodeRows(items)
}

// scanInfos reads every snapshot header, newest first
func (d *DynamoDBStorage) scanInfos(ctx context.Context) ([]dynamoSnapshot, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		ProjectionExpression:     aws.String("id, team, fetched_at, row_count, #c"),
		ExpressionAttributeNames: map[string]*string{"#c": aws.String("columns")},
	}

	var items []dynamoSnapshot
	var pageErr error
	err := d.client.ScanPagesWithContext(ctx, input, func(out *dynamodb.ScanOutput, last bool) bool {
		var batch []dynamoSnapshot
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(out.Items, &batch); pageErr != nil {
			return false
		}
		items = append(items, batch...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	if pageErr != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshots: %w", pageErr)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].FetchedAt.After(items[j].FetchedAt)
	})
	return items, nil
}

// GetSnapshots lists snapshots newest first
func (d *DynamoDBStorage) GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error) {
	items, err := d.scanInfos(ctx)
	if err != nil {
		return nil, err
	}

	items = page(items, limit, offset)
	infos := make([]models.SnapshotInfo, len(items))
	for i, it := range items {
		infos[i] = models.SnapshotInfo{
			ID:        it.ID,
			Team:      it.Team,
			FetchedAt: it.FetchedAt,
			RowCount:  it.RowCount,
			Columns:   len(it.Columns),
		}
	}
	return infos, nil
}

// GetSnapshotByID retrieves a specific snapshot by ID
func (d *DynamoDBStorage) GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
	}

	result, err := d.client.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var item dynamoSnapshot
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	rows, err := d.queryRows(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}

	snapshot := &models.Snapshot{
		ID:        item.ID,
		Team:      item.Team,
		FetchedAt: item.FetchedAt,
		RowCount:  item.RowCount,
		Columns:   item.Columns,
		Rows:      rows,
	}

	return snapshot, nil
}

// GetLatestSnapshot retrieves the newest snapshot
func (d *DynamoDBStorage) GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	items, err := d.scanInfos(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return d.GetSnapshotByID(ctx, items[0].ID)
}

// UpdateIngestionStatus updates the ingestion status
func (d *DynamoDBStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	item, err := dynamodbattribute.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("failed to marshal ingestion status: %w", err)
	}

	// Single record under a fixed key
	item["id"] = &dynamodb.AttributeValue{S: aws.String(statusKey)}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.statusTable),
		Item:      item,
	})

	return err
}

// GetIngestionStatus retrieves the current ingestion status
func (d *DynamoDBStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(d.statusTable),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(statusKey),
			},
		},
	}

	result, err := d.client.GetItemWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}

	if result.Item == nil {
		return neverRun(), nil
	}

	var status models.IngestionStatus
	if err := dynamodbattribute.UnmarshalMap(result.Item, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingestion status: %w", err)
	}

	return &status, nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
