package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/evault/evault/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxConflictRetries bounds how often a read-check-write cycle is replayed
// after losing a race on the revision field.
const maxConflictRetries = 6

// MongoRepo stores documents in a Mongo collection. Every write is
// conditioned on the revision that was read, so concurrent mutations of the
// same record are replayed instead of overwriting each other.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(ctx context.Context, col *mongo.Collection) (*MongoRepo, error) {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "uploadDate", Value: -1}}},
		{Keys: bson.D{{Key: "sharedWith", Value: 1}}},
		{Keys: bson.D{{Key: "storageKey", Value: 1}}},
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		return nil, fmt.Errorf("create document indexes: %w", err)
	}
	return &MongoRepo{col: col}, nil
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) error {
	d.Revision = 1
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) Update(ctx context.Context, id string, fn MutateFunc) (*document.Document, error) {
	var out *document.Document
	err := m.retry(ctx, func() error {
		d, err := m.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(d); err != nil {
			return backoff.Permanent(err)
		}
		read := d.Revision
		d.Revision = read + 1
		res, err := m.col.ReplaceOne(ctx, bson.M{"_id": id, "revision": read}, d)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("replace document: %w", err))
		}
		if res.MatchedCount == 0 {
			return ErrConflict
		}
		out = d
		return nil
	})
	return out, err
}

func (m *MongoRepo) Delete(ctx context.Context, id string, fn MutateFunc) (*document.Document, error) {
	var out *document.Document
	err := m.retry(ctx, func() error {
		d, err := m.Get(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if fn != nil {
			if err := fn(d); err != nil {
				return backoff.Permanent(err)
			}
		}
		res, err := m.col.DeleteOne(ctx, bson.M{"_id": id, "revision": d.Revision})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("delete document: %w", err))
		}
		if res.DeletedCount == 0 {
			return ErrConflict
		}
		out = d
		return nil
	})
	return out, err
}

func (m *MongoRepo) retry(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxConflictRetries), ctx))
}

func (m *MongoRepo) List(ctx context.Context, principal string, f document.Filter) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploadDate", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, listQuery(principal, f), opts)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		// the query already restricts access; re-check so a query bug can
		// never widen it
		if !f.Visible(principal, &d) {
			continue
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// listQuery translates the access rule and f into a Mongo filter.
func listQuery(principal string, f document.Filter) bson.M {
	and := bson.A{bson.M{"$or": bson.A{bson.M{"owner": principal}, bson.M{"sharedWith": principal}}}}
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		and = append(and, bson.M{"$or": bson.A{bson.M{"title": re}, bson.M{"description": re}}})
	}
	if f.Category != nil {
		and = append(and, bson.M{"category": string(*f.Category)})
	}
	if f.Status != nil {
		and = append(and, bson.M{"status": string(*f.Status)})
	}
	if len(f.Tags) > 0 {
		and = append(and, bson.M{"tags": bson.M{"$all": f.Tags}})
	}
	if f.StartDate != nil || f.EndDate != nil {
		rng := bson.M{}
		if f.StartDate != nil {
			rng["$gte"] = *f.StartDate
		}
		if f.EndDate != nil {
			rng["$lte"] = *f.EndDate
		}
		and = append(and, bson.M{"uploadDate": rng})
	}
	return bson.M{"$and": and}
}

func (m *MongoRepo) StorageKeys(ctx context.Context) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"storageKey": 1, "previousVersions.storageKey": 1})
	cur, err := m.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find storage keys: %w", err)
	}
	defer cur.Close(ctx)
	keys := make(map[string]struct{})
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		for _, k := range d.StorageKeys() {
			keys[k] = struct{}{}
		}
	}
	return keys, cur.Err()
}
