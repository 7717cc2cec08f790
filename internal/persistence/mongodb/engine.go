package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const createdAtField = "createdAt"

type PersistenceEngine struct {
	client   *mongo.Client
	database *mongo.Database
	tables   []string
}

func NewPersistenceEngine(client *mongo.Client, database string, tables []string) *PersistenceEngine {
	return &PersistenceEngine{
		client,
		client.Database(database),
		tables,
	}
}

// Setup creates the createdAt index backing Recent on every table.
func (e *PersistenceEngine) Setup(ctx context.Context) error {
	for _, table := range e.tables {
		createdAtIndexModel := mongo.IndexModel{
			Keys: recentSort(),
		}

		_, err := e.database.Collection(table).Indexes().CreateOne(ctx, createdAtIndexModel)
		if err != nil {
			return fmt.Errorf("creating %v index on %v: %w", createdAtField, table, err)
		}
	}

	return nil
}

func (e *PersistenceEngine) Count(ctx context.Context, table string) (int64, error) {
	return e.database.Collection(table).CountDocuments(ctx, bson.D{})
}

func (e *PersistenceEngine) Sum(ctx context.Context, table string, field string) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$" + field}}},
		}}},
	}

	cursor, err := e.database.Collection(table).Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return decimal.Zero, cursor.Err()
	}

	return toDecimal(cursor.Current.Lookup("total"))
}

func (e *PersistenceEngine) Recent(ctx context.Context, table string, limit int64) ([]persistence.Record, error) {
	opts := options.Find().
		SetSort(recentSort()).
		SetLimit(limit)

	result, err := e.database.Collection(table).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}

	var documents []bson.M
	err = result.All(ctx, &documents)
	if err != nil {
		return nil, err
	}

	records := make([]persistence.Record, len(documents))
	for i, document := range documents {
		records[i] = recordFromDocument(table, document)
	}

	return records, nil
}

// recentSort orders newest first. Ties on createdAt fall back to _id.
func recentSort() bson.D {
	return bson.D{
		{Key: createdAtField, Value: -1},
		{Key: "_id", Value: -1},
	}
}

func (e *PersistenceEngine) Ping(ctx context.Context) error {
	return e.client.Ping(ctx, readpref.Primary())
}

// toDecimal converts the numeric result of a $sum. A missing or null total
// is zero.
func toDecimal(value bson.RawValue) (decimal.Decimal, error) {
	switch value.Type {
	case 0, bson.TypeNull:
		return decimal.Zero, nil
	case bson.TypeInt32:
		return decimal.NewFromInt32(value.Int32()), nil
	case bson.TypeInt64:
		return decimal.NewFromInt(value.Int64()), nil
	case bson.TypeDouble:
		return decimal.NewFromFloat(value.Double()), nil
	case bson.TypeDecimal128:
		return decimal.NewFromString(value.Decimal128().String())
	}

	return decimal.Zero, fmt.Errorf("unsupported total type %v", value.Type)
}

func recordFromDocument(table string, document bson.M) persistence.Record {
	record := persistence.Record{
		Table:  table,
		Fields: make(map[string]any, len(document)),
	}

	for key, value := range document {
		switch key {
		case "_id":
			record.ID = idString(value)
		case createdAtField:
			record.CreatedAt = timeOf(value)
		default:
			record.Fields[key] = value
		}
	}

	return record
}

func idString(value any) string {
	switch id := value.(type) {
	case bson.ObjectID:
		return id.Hex()
	case string:
		return id
	}

	return fmt.Sprint(value)
}

func timeOf(value any) time.Time {
	switch t := value.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	}

	return time.Time{}
}
