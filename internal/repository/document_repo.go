package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coglex/internal/domain"
)

var (
	// ErrDuplicateKey indica que ya existe un documento con el mismo _key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNoDocuments indica que ningún documento cumple el filtro.
	ErrNoDocuments = errors.New("no documents")
	// ErrUnsupported indica una operación que el backend no implementa.
	ErrUnsupported = errors.New("operation not supported")
)

// DocumentRepository define el contrato de persistencia para colecciones de documentos.
type DocumentRepository interface {
	Find(ctx context.Context, collection string, filter domain.Filter, projection domain.Document) ([]domain.Document, error)
	Insert(ctx context.Context, collection string, docs []domain.Document) ([]string, error)
	// InsertUnique inserta un documento garantizando unicidad de _key en la colección.
	InsertUnique(ctx context.Context, collection string, doc domain.Document) (string, error)
	Update(ctx context.Context, collection string, update domain.Update, filter domain.Filter) (matched int64, modified int64, err error)
	// FindOneAndUpdate aplica update de forma atómica al primer documento que cumple filter
	// y devuelve el documento resultante.
	FindOneAndUpdate(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (domain.Document, error)
	Delete(ctx context.Context, collection string, filter domain.Filter) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []domain.Document) ([]domain.Document, error)
}

// NewDocumentID genera el _id de un documento nuevo.
func NewDocumentID() string {
	return primitive.NewObjectID().Hex()
}

// MongoDocumentRepository implementa DocumentRepository usando mongo-driver.
type MongoDocumentRepository struct {
	db *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

func NewMongoDocumentRepository(db *mongo.Database) *MongoDocumentRepository {
	return &MongoDocumentRepository{db: db, indexed: make(map[string]bool)}
}

func (r *MongoDocumentRepository) Find(ctx context.Context, collection string, filter domain.Filter, projection domain.Document) ([]domain.Document, error) {
	opts := options.Find()
	if len(projection) > 0 {
		opts.SetProjection(bson.M(projection))
	}
	cur, err := r.db.Collection(collection).Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return fromBSON(rows), nil
}

func (r *MongoDocumentRepository) Insert(ctx context.Context, collection string, docs []domain.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(docs))
	batch := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		row := bson.M(doc.Clone())
		id := NewDocumentID()
		row[domain.FieldID] = id
		ids = append(ids, id)
		batch = append(batch, row)
	}
	if _, err := r.db.Collection(collection).InsertMany(ctx, batch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return ids, nil
}

func (r *MongoDocumentRepository) InsertUnique(ctx context.Context, collection string, doc domain.Document) (string, error) {
	if err := r.ensureKeyIndex(ctx, collection); err != nil {
		return "", err
	}
	row := bson.M(doc.Clone())
	id := NewDocumentID()
	row[domain.FieldID] = id
	if _, err := r.db.Collection(collection).InsertOne(ctx, row); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateKey
		}
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (r *MongoDocumentRepository) Update(ctx context.Context, collection string, update domain.Update, filter domain.Filter) (int64, int64, error) {
	res, err := r.db.Collection(collection).UpdateMany(ctx, toBSON(filter), bson.M(update))
	if err != nil {
		return 0, 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return res.MatchedCount, res.ModifiedCount, nil
}

func (r *MongoDocumentRepository) FindOneAndUpdate(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (domain.Document, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	res := r.db.Collection(collection).FindOneAndUpdate(ctx, toBSON(filter), bson.M(update), opts)
	var row bson.M
	if err := res.Decode(&row); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoDocuments
		}
		return nil, fmt.Errorf("find and update %s: %w", collection, err)
	}
	return domain.Document(row), nil
}

func (r *MongoDocumentRepository) Delete(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	res, err := r.db.Collection(collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (r *MongoDocumentRepository) Aggregate(ctx context.Context, collection string, pipeline []domain.Document) ([]domain.Document, error) {
	stages := make([]bson.M, 0, len(pipeline))
	for _, stage := range pipeline {
		stages = append(stages, bson.M(stage))
	}
	cur, err := r.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return fromBSON(rows), nil
}

// ensureKeyIndex crea (una vez por colección) el índice único sobre _key.
func (r *MongoDocumentRepository) ensureKeyIndex(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexed[collection] {
		return nil
	}
	if _, err := r.db.Collection(collection).Indexes().CreateOne(ctx, keyIndexModel()); err != nil {
		return fmt.Errorf("create _key index on %s: %w", collection, err)
	}
	r.indexed[collection] = true
	return nil
}

// keyIndexModel es único solo entre documentos con _key string; los que no lo tienen
// no compiten por el valor null.
func keyIndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: domain.FieldKey, Value: 1}},
		Options: options.Index().
			SetName("_key_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{domain.FieldKey: bson.M{"$type": "string"}}),
	}
}

func toBSON(filter domain.Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

func fromBSON(rows []bson.M) []domain.Document {
	out := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Document(row))
	}
	return out
}
