package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// duplicateKeyCode is the MongoDB server error for a repeated _id.
const duplicateKeyCode = 11000

// MongoDBStore is the dispatch ledger on MongoDB. It implements both
// UsageStore and UsageReader.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates the ledger indexes. Retention is a TTL index on
// timestamp, so no cleanup goroutine runs.
func NewMongoDBStore(ctx context.Context, database *mongo.Database, retentionDays int) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	collection := database.Collection(tableName)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, ledgerIndexes(retentionDays)); err != nil {
		slog.Warn("failed to create some ledger indexes", "backend", "mongodb", "error", err)
	}
	return &MongoDBStore{collection: collection}, nil
}

func ledgerIndexes(retentionDays int) []mongo.IndexModel {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}}},
		{Keys: bson.D{{Key: "outcome", Value: 1}}},
	}
	if retentionDays > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionDays * 24 * 60 * 60)),
		})
	}
	return indexes
}

// WriteBatch inserts entries unordered. Duplicate IDs are skipped; any
// other write error is returned.
func (s *MongoDBStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.collection.InsertMany(ctx, entries, options.InsertMany().SetOrdered(false))
	if err == nil || onlyDuplicates(err) {
		return nil
	}
	return fmt.Errorf("failed to insert %d ledger entries: %w", len(entries), err)
}

func onlyDuplicates(err error) bool {
	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return false
	}
	for _, we := range bulkErr.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

// GetSummary aggregates the ledger per provider.
func (s *MongoDBStore) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	cursor, err := s.collection.Aggregate(ctx, summaryPipeline(params))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage summary: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Provider     string `bson:"_id"`
		Requests     int    `bson:"requests"`
		Failures     int    `bson:"failures"`
		InputTokens  int64  `bson:"input_tokens"`
		OutputTokens int64  `bson:"output_tokens"`
		TotalTokens  int64  `bson:"total_tokens"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode usage summary: %w", err)
	}

	providers := make([]ProviderUsage, 0, len(rows))
	for _, r := range rows {
		providers = append(providers, ProviderUsage{
			Provider:     r.Provider,
			Requests:     r.Requests,
			Failures:     r.Failures,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			TotalTokens:  r.TotalTokens,
		})
	}
	return newSummary(providers), nil
}

func summaryPipeline(params UsageQueryParams) mongo.Pipeline {
	var pipeline mongo.Pipeline
	if match := summaryMatch(params); len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	return append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$provider"},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "failures", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$outcome", OutcomeSuccess}}}, 0, 1,
			}}}}}},
			{Key: "input_tokens", Value: bson.D{{Key: "$sum", Value: "$input_tokens"}}},
			{Key: "output_tokens", Value: bson.D{{Key: "$sum", Value: "$output_tokens"}}},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$total_tokens"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)
}

func summaryMatch(params UsageQueryParams) bson.D {
	var match bson.D
	start, end := dayBounds(params)
	if !start.IsZero() || !end.IsZero() {
		var window bson.D
		if !start.IsZero() {
			window = append(window, bson.E{Key: "$gte", Value: start})
		}
		if !end.IsZero() {
			window = append(window, bson.E{Key: "$lt", Value: end})
		}
		match = append(match, bson.E{Key: "timestamp", Value: window})
	}
	if params.Provider != "" {
		match = append(match, bson.E{Key: "provider", Value: params.Provider})
	}
	return match
}

// Close is a no-op; the client belongs to storage.Conn.
func (s *MongoDBStore) Close() error {
	return nil
}
