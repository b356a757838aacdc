package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pinpress-api/internal/domain"
)

// Mongo stores articles as documents shaped like {userId, title, content,
// coverImage, images, createdAt}.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type articleDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	domain.Article `bson:",inline"`
}

// NewMongo connects and pings the server before returning.
func NewMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &Mongo{client: client, collection: coll}, nil
}

func (m *Mongo) Create(ctx context.Context, a *domain.Article) (*domain.Article, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	doc := articleDoc{ID: primitive.NewObjectID(), Article: prepare(a)}
	// Mongo keeps millisecond precision.
	doc.CreatedAt = doc.CreatedAt.Truncate(time.Millisecond)
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}
	out := doc.Article
	out.ID = doc.ID.Hex()
	return &out, nil
}

func (m *Mongo) FindAllByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := m.collection.Find(ctx, bson.M{"userId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer cursor.Close(ctx)

	articles := []domain.Article{}
	for cursor.Next(ctx) {
		var doc articleDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		articles = append(articles, doc.article())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return articles, nil
}

func (m *Mongo) FindOneByOwnerAndID(ctx context.Context, ownerID, id string) (*domain.Article, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc articleDoc
	err = m.collection.FindOne(ctx, bson.M{"_id": oid, "userId": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a := doc.article()
	return &a, nil
}

func (m *Mongo) DeleteByOwnerAndID(ctx context.Context, ownerID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": oid, "userId": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (d articleDoc) article() domain.Article {
	a := d.Article
	a.ID = d.ID.Hex()
	a.CreatedAt = a.CreatedAt.UTC()
	if a.Images == nil {
		a.Images = []string{}
	}
	return a
}
