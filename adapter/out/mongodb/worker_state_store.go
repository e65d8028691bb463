package mongodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"campaign_worker/core/port/out"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionState = "pipeline_state"

// StateStore keeps stage outputs as JSON text so values decode the same
// way as on the other backends.
type StateStore struct {
	collection *mongo.Collection
}

func NewStateStore(db *mongo.Database) *StateStore {
	return &StateStore{collection: db.Collection(collectionState)}
}

type stateDocument struct {
	Key        string    `bson:"_id"`
	CustomerID string    `bson:"customer_id"`
	Value      string    `bson:"value"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (s *StateStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "customer_id", Value: 1}},
	})
	return err
}

func (s *StateStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	doc := stateDocument{
		Key:        key,
		CustomerID: customerFromKey(key),
		Value:      string(data),
		UpdatedAt:  time.Now().UTC(),
	}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *StateStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	var doc stateDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(doc.Value), dest)
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// customerFromKey extracts the customer id from "pipeline:{id}:...".
func customerFromKey(key string) string {
	rest := strings.TrimPrefix(key, "pipeline:")
	rest = strings.TrimSuffix(rest, ":error")
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return rest[:i]
	}
	return rest
}

var _ out.StateStore = (*StateStore)(nil)
