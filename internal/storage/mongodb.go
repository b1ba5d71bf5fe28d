package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/models"
)

// Collection names
const (
	CollectionSnapshots = "snapshots"
	CollectionStatus    = "ingestion_status"
)

const defaultMongoDatabase = "check_export"

// MongoDBStorage implements Storage interface using MongoDB
type MongoDBStorage struct {
	client    *mongo.Client
	snapshots *mongo.Collection
	status    *mongo.Collection
}

type statusDocument struct {
	ID                     string `bson:"_id"`
	models.IngestionStatus `bson:",inline"`
}

// NewMongoDBStorage connects to MongoDB and prepares the collections
func NewMongoDBStorage(cfg config.StorageConfig) (*MongoDBStorage, error) {
	if cfg.MongoDBURI == "" {
		return nil, errors.New("MONGODB_URI is required for mongodb storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MongoDBURI).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(defaultMongoDatabase)
	storage := &MongoDBStorage{
		client:    client,
		snapshots: db.Collection(CollectionSnapshots),
		status:    db.Collection(CollectionStatus),
	}

	_, err = storage.snapshots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fetched_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot index: %w", err)
	}

	return storage, nil
}

// StoreSnapshot stores a snapshot document
func (m *MongoDBStorage) StoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	if _, err := m.snapshots.InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// GetSnapshots lists snapshots newest first, without their rows
func (m *MongoDBStorage) GetSnapshots(ctx context.Context, limit int, offset int) ([]models.SnapshotInfo, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "fetched_at", Value: -1}}).
		SetProjection(bson.M{"rows": 0}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.snapshots.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []models.Snapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}

	infos := make([]models.SnapshotInfo, len(snapshots))
	for i := range snapshots {
		infos[i] = snapshots[i].Info()
	}
	return infos, nil
}

func (m *MongoDBStorage) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	err := m.snapshots.FindOne(ctx, filter, opts...).Decode(&snapshot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// GetSnapshotByID retrieves a specific snapshot
func (m *MongoDBStorage) GetSnapshotByID(ctx context.Context, id string) (*models.Snapshot, error) {
	snapshot, err := m.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return snapshot, nil
}

// GetLatestSnapshot retrieves the newest snapshot
func (m *MongoDBStorage) GetLatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	snapshot, err := m.findOne(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snapshot, nil
}

// UpdateIngestionStatus upserts the single status document
func (m *MongoDBStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	doc := statusDocument{ID: statusKey, IngestionStatus: status}
	_, err := m.status.ReplaceOne(ctx, bson.M{"_id": statusKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update ingestion status: %w", err)
	}
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (m *MongoDBStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	var doc statusDocument
	err := m.status.FindOne(ctx, bson.M{"_id": statusKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return neverRun(), nil
		}
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &doc.IngestionStatus, nil
}

// Close disconnects the client
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
