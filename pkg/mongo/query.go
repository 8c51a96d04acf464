package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/troikatech/cab-voice-agent/pkg/otel"
)

// ErrNoDocuments is returned by FindOne when nothing matches.
var ErrNoDocuments = mongo.ErrNoDocuments

// QueryBuilder provides a fluent interface for MongoDB queries
type QueryBuilder struct {
	name       string
	collection *mongo.Collection
	filter     bson.M
	sort       bson.D
	limit      *int64
	skip       *int64
}

// NewQuery creates a new query builder for a collection
func (c *Client) NewQuery(collectionName string) *QueryBuilder {
	return &QueryBuilder{
		name:       collectionName,
		collection: c.Collection(collectionName),
		filter:     bson.M{},
	}
}

// Eq adds an equality filter
func (q *QueryBuilder) Eq(field string, value interface{}) *QueryBuilder {
	q.filter[field] = value
	return q
}

// In adds an "in" filter
func (q *QueryBuilder) In(field string, values interface{}) *QueryBuilder {
	q.filter[field] = bson.M{"$in": values}
	return q
}

// Gte adds a greater than or equal filter
func (q *QueryBuilder) Gte(field string, value interface{}) *QueryBuilder {
	if existing, ok := q.filter[field].(bson.M); ok {
		existing["$gte"] = value
		return q
	}
	q.filter[field] = bson.M{"$gte": value}
	return q
}

func (q *QueryBuilder) Limit(limit int64) *QueryBuilder {
	q.limit = &limit
	return q
}

func (q *QueryBuilder) Skip(skip int64) *QueryBuilder {
	q.skip = &skip
	return q
}

// Sort appends a sort key.
func (q *QueryBuilder) Sort(field string, ascending bool) *QueryBuilder {
	direction := 1
	if !ascending {
		direction = -1
	}
	q.sort = append(q.sort, bson.E{Key: field, Value: direction})
	return q
}

// Find decodes every match into out, which must be a pointer to a slice.
func (q *QueryBuilder) Find(ctx context.Context, out interface{}) error {
	return otel.ExecuteWithSpan(ctx, q.name, "find", func(ctx context.Context) error {
		opts := options.Find()
		if q.limit != nil {
			opts.SetLimit(*q.limit)
		}
		if q.skip != nil {
			opts.SetSkip(*q.skip)
		}
		if len(q.sort) > 0 {
			opts.SetSort(q.sort)
		}
		cursor, err := q.collection.Find(ctx, q.filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, out)
	})
}

// FindOne decodes the first match into out. It returns ErrNoDocuments when
// nothing matches.
func (q *QueryBuilder) FindOne(ctx context.Context, out interface{}) error {
	return otel.ExecuteWithSpan(ctx, q.name, "findOne", func(ctx context.Context) error {
		opts := options.FindOne()
		if len(q.sort) > 0 {
			opts.SetSort(q.sort)
		}
		err := q.collection.FindOne(ctx, q.filter, opts).Decode(out)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNoDocuments
		}
		return err
	})
}

// Count returns the count of matching documents
func (q *QueryBuilder) Count(ctx context.Context) (int64, error) {
	var n int64
	err := otel.ExecuteWithSpan(ctx, q.name, "count", func(ctx context.Context) error {
		var err error
		n, err = q.collection.CountDocuments(ctx, q.filter)
		return err
	})
	return n, err
}

// Insert inserts a document
func (q *QueryBuilder) Insert(ctx context.Context, document interface{}) error {
	return otel.ExecuteWithSpan(ctx, q.name, "insert", func(ctx context.Context) error {
		_, err := q.collection.InsertOne(ctx, document)
		return err
	})
}

// Upsert applies update to the filtered document, inserting it if missing.
// update is a full update document ($set, $addToSet, ...).
func (q *QueryBuilder) Upsert(ctx context.Context, update bson.M) error {
	return otel.ExecuteWithSpan(ctx, q.name, "upsert", func(ctx context.Context) error {
		_, err := q.collection.UpdateOne(ctx, q.filter, update, options.Update().SetUpsert(true))
		return err
	})
}

// UpdateOne $sets fields on a single matching document and reports whether a
// document matched.
func (q *QueryBuilder) UpdateOne(ctx context.Context, set interface{}) (bool, error) {
	var matched bool
	err := otel.ExecuteWithSpan(ctx, q.name, "updateOne", func(ctx context.Context) error {
		res, err := q.collection.UpdateOne(ctx, q.filter, bson.M{"$set": set})
		if err != nil {
			return err
		}
		matched = res.MatchedCount > 0
		return nil
	})
	return matched, err
}
