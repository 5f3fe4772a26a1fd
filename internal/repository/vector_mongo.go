package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/SvenBotha/SourceChat/internal/models"
)

// VectorMongo stores one MongoDB collection of embedding records per
// repository, plus a "collections" document describing each of them.
//
// Expected schema:
//
//	collections
//	  { _id: "repo_<id>", repo_id, dimension, model, created_at }
//
//	repo_<id>
//	  { _id: "<repo_id>:<file_path>:<seq>", repo_id, file_path, seq, start, end,
//	    overlap, start_line, end_line, language, text, vector: []float32 }
type VectorMongo struct {
	db      *mongo.Database
	metaCol *mongo.Collection
}

// NewVectorRepository wires the collections.
func NewVectorRepository(db *mongo.Database) *VectorMongo {
	return &VectorMongo{db: db, metaCol: db.Collection("collections")}
}

// Collection returns the descriptor of name, if it exists.
func (v *VectorMongo) Collection(ctx context.Context, name string) (models.Collection, bool, error) {
	var coll models.Collection
	err := v.metaCol.FindOne(ctx, bson.M{"_id": name}).Decode(&coll)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Collection{}, false, nil
	}
	if err != nil {
		return models.Collection{}, false, fmt.Errorf("find collection %s: %w", name, err)
	}
	return coll, true, nil
}

// EnsureCollection creates coll unless a collection of that name exists, and
// returns whichever descriptor is stored. Concurrent callers agree on one.
func (v *VectorMongo) EnsureCollection(ctx context.Context, coll models.Collection) (models.Collection, error) {
	_, err := v.metaCol.InsertOne(ctx, coll)
	if err == nil {
		log.Printf("[Vector Store] Created collection %s (dimension %d)", coll.Name, coll.Dimension)
		return coll, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return models.Collection{}, fmt.Errorf("create collection %s: %w", coll.Name, err)
	}
	existing, ok, err := v.Collection(ctx, coll.Name)
	if err != nil {
		return models.Collection{}, err
	}
	if !ok {
		return models.Collection{}, fmt.Errorf("collection %s vanished during creation", coll.Name)
	}
	return existing, nil
}

// ExistingIDs returns the record IDs already stored in name.
func (v *VectorMongo) ExistingIDs(ctx context.Context, name string) (map[string]struct{}, error) {
	cur, err := v.db.Collection(name).Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list ids in %s: %w", name, err)
	}
	defer cur.Close(ctx)

	ids := make(map[string]struct{})
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode id in %s: %w", name, err)
		}
		ids[doc.ID] = struct{}{}
	}
	return ids, cur.Err()
}

// Upsert writes records as one unordered bulk write keyed by record ID.
func (v *VectorMongo) Upsert(ctx context.Context, name string, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(records))
	for i, rec := range records {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetReplacement(rec).
			SetUpsert(true)
	}
	if _, err := v.db.Collection(name).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("bulk upsert into %s: %w", name, err)
	}
	return nil
}

// Scan streams every record of name to fn; a non-nil return from fn stops the scan.
func (v *VectorMongo) Scan(ctx context.Context, name string, fn func(models.EmbeddingRecord) error) error {
	cur, err := v.db.Collection(name).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var rec models.EmbeddingRecord
		if err := cur.Decode(&rec); err != nil {
			return fmt.Errorf("decode record in %s: %w", name, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return cur.Err()
}

// Count returns the number of records in name.
func (v *VectorMongo) Count(ctx context.Context, name string) (int, error) {
	n, err := v.db.Collection(name).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return int(n), nil
}

// Drop removes the records and the descriptor of name.
func (v *VectorMongo) Drop(ctx context.Context, name string) error {
	if err := v.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := v.metaCol.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("delete descriptor %s: %w", name, err)
	}
	log.Printf("[Vector Store] Dropped collection %s", name)
	return nil
}
