// Package mongo writes documents to MongoDB. Targets are database.collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"workloadgen/internal/workload"
)

type Backend struct {
	client *mongo.Client
}

// New creates a client for uri. The driver connects lazily; use Ping to
// confirm the server is reachable.
func New(ctx context.Context, uri string, connectTimeout time.Duration) (*Backend, error) {
	opts := options.Client().ApplyURI(uri).SetAppName("workloadgen")
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout).SetServerSelectionTimeout(connectTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &Backend{client: client}, nil
}

func (b *Backend) collection(t workload.Target) *mongo.Collection {
	return b.client.Database(t.Namespace).Collection(t.Name)
}

func (b *Backend) Insert(ctx context.Context, target workload.Target, rec workload.Record) (workload.ID, error) {
	res, err := b.collection(target).InsertOne(ctx, bson.M(rec.Fields))
	if err != nil {
		return "", err
	}
	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return "", fmt.Errorf("mongo insert: unexpected _id type %T", res.InsertedID)
	}
}

func (b *Backend) UpdateByID(ctx context.Context, target workload.Target, id workload.ID, patch workload.Patch) (int64, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	res, err := b.collection(target).UpdateByID(ctx, oid, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (b *Backend) DeleteByID(ctx context.Context, target workload.Target, id workload.ID) (int64, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}
	res, err := b.collection(target).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func objectID(id workload.ID) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("mongo: invalid id %q: %w", id, err)
	}
	return oid, nil
}
