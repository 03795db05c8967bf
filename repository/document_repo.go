package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agenthub/knowledge-be/types"
)

// DocumentRepo is the catalog of ingested documents. The vector store
// holds the fragments; this repo holds one record per document.
type DocumentRepo interface {
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, docID string) (*types.Document, error)
	ListDocuments(ctx context.Context, owner string) ([]*types.Document, error)
	UpdateDocument(ctx context.Context, doc *types.Document) error
	SoftDeleteDocument(ctx context.Context, docID string, deletedAt int64) error
}

type documentRepo struct {
	collection *mongo.Collection
}

func NewDocumentRepo(collection *mongo.Collection) DocumentRepo {
	return &documentRepo{
		collection: collection,
	}
}

func (r *documentRepo) CreateDocument(ctx context.Context, doc *types.Document) error {
	_, err := r.collection.InsertOne(ctx, doc)
	return err
}

func (r *documentRepo) GetDocument(ctx context.Context, docID string) (*types.Document, error) {
	var doc types.Document
	err := r.collection.FindOne(ctx, bson.M{"_id": docID, "is_deleted": false}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns the caller's documents plus global ones. An
// empty owner lists only global documents.
func (r *documentRepo) ListDocuments(ctx context.Context, owner string) ([]*types.Document, error) {
	filter := bson.M{
		"is_deleted": false,
		"scope":      types.ScopeGlobal,
	}
	if owner != "" {
		filter = bson.M{
			"is_deleted": false,
			"$or": []bson.M{
				{"scope": types.ScopeGlobal},
				{"owner": owner},
			},
		}
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*types.Document
	for cursor.Next(ctx) {
		var doc types.Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, cursor.Err()
}

func (r *documentRepo) UpdateDocument(ctx context.Context, doc *types.Document) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.DocID}, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *documentRepo) SoftDeleteDocument(ctx context.Context, docID string, deletedAt int64) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": docID, "is_deleted": false},
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": deletedAt}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return types.ErrNotFound
	}
	return nil
}
