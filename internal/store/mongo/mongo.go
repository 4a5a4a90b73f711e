// Package mongo adapts store.Database to MongoDB via go.mongodb.org/mongo-driver/v2.
// It mirrors the teacher's features/session/mongo thin-delegation shape: a
// Database wraps a *mongo.Database handle and hands out per-collection
// wrappers that translate store.Filter into a bson query and store.Document
// into bson.M.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/emcie-io/agentrt/internal/store"
)

// Database adapts a *mongo.Database to store.Database.
type Database struct {
	db *mongo.Database
}

// New wraps an established Mongo database handle. The caller owns the
// client's lifecycle (connect/disconnect).
func New(db *mongo.Database) (*Database, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database handle is required")
	}
	return &Database{db: db}, nil
}

// Collection implements store.Database.
func (d *Database) Collection(ctx context.Context, name string) (store.Collection, error) {
	coll := d.db.Collection(name)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("ensure unique id index on %q: %w", name, err)
	}
	return &collection{coll: coll}, nil
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) Insert(ctx context.Context, doc store.Document) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return fmt.Errorf("mongo: document id is required")
	}
	if _, err := c.coll.InsertOne(ctx, bson.M(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("mongo: document %q already exists", id)
		}
		return fmt.Errorf("insert document %q: %w", id, err)
	}
	return nil
}

func (c *collection) Update(ctx context.Context, id string, doc store.Document) error {
	doc["id"] = id
	res, err := c.coll.ReplaceOne(ctx, bson.M{"id": id}, bson.M(doc))
	if err != nil {
		return fmt.Errorf("update document %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("delete document %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *collection) Find(ctx context.Context, id string) (store.Document, error) {
	var doc bson.M
	if err := c.coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find document %q: %w", id, err)
	}
	return store.Document(doc), nil
}

// List translates the spec.md §6 filter grammar into a bson query and asks
// Mongo to evaluate it server-side; the result is returned verbatim (no
// client-side re-filtering), keeping a single source of truth for matching
// semantics between store.Matches (used by the in-memory backend and tested
// directly in filter_test.go) and the Mongo query translation below.
func (c *collection) List(ctx context.Context, filter store.Filter) ([]store.Document, error) {
	query, err := translateFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("translate filter: %w", err)
	}
	cur, err := c.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)
	out := make([]store.Document, 0, 16)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, store.Document(doc))
	}
	return out, cur.Err()
}

var opTranslation = map[store.Op]string{
	store.OpEq:  "$eq",
	store.OpNe:  "$ne",
	store.OpGt:  "$gt",
	store.OpGte: "$gte",
	store.OpLt:  "$lt",
	store.OpLte: "$lte",
}

func translateFilter(filter store.Filter) (bson.M, error) {
	if len(filter) == 0 {
		return bson.M{}, nil
	}
	out := bson.M{}
	for key, val := range filter {
		switch key {
		case "$and", "$or":
			subs, ok := val.([]store.Filter)
			if !ok {
				return nil, fmt.Errorf("%s expects []store.Filter, got %T", key, val)
			}
			translated := make(bson.A, 0, len(subs))
			for _, sub := range subs {
				t, err := translateFilter(sub)
				if err != nil {
					return nil, err
				}
				translated = append(translated, t)
			}
			out[key] = translated
		default:
			if ops, ok := val.(store.Document); ok {
				cond := bson.M{}
				for opKey, literal := range ops {
					mongoOp, known := opTranslation[store.Op(opKey)]
					if !known {
						return nil, fmt.Errorf("unsupported operator %q", opKey)
					}
					cond[mongoOp] = literal
				}
				out[key] = cond
			} else {
				out[key] = bson.M{"$eq": val}
			}
		}
	}
	return out, nil
}
