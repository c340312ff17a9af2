package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

const (
	stateCollection = "robot_state"
	stateID         = 1
)

type stateDocument struct {
	ID          int       `bson:"_id"`
	Position    string    `bson:"current_position"`
	Tool        string    `bson:"current_tool"`
	LastUpdated time.Time `bson:"last_updated"`
}

// StateStore keeps the robot state in a single document.
type StateStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewStateStore creates a state store. Call Migrate before first use.
func NewStateStore(client *Client) *StateStore {
	s := &StateStore{queryTimeout: client.queryTimeout()}
	if client != nil {
		s.collection = client.Collection(stateCollection)
	}
	return s
}

// Migrate seeds the default state unless a state document exists.
func (s *StateStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	def := robot.DefaultState()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": stateID},
		bson.M{"$setOnInsert": bson.M{
			"current_position": def.Position,
			"current_tool":     def.Tool,
			"last_updated":     time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return wrapError(err)
}

// Get returns the current state.
func (s *StateStore) Get(ctx context.Context) (robot.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc stateDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": stateID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return robot.DefaultState(), nil
	}
	if err != nil {
		return robot.State{}, wrapError(err)
	}
	return robot.State{Position: doc.Position, Tool: doc.Tool, LastUpdated: doc.LastUpdated.UTC()}, nil
}

// SetPosition records the current position.
func (s *StateStore) SetPosition(ctx context.Context, position string) error {
	return s.set(ctx, "current_position", position, "current_tool", robot.DefaultState().Tool)
}

// SetTool records the current tool. An empty tool means none.
func (s *StateStore) SetTool(ctx context.Context, tool string) error {
	if tool == "" {
		tool = robot.NoTool
	}
	return s.set(ctx, "current_tool", tool, "current_position", robot.DefaultState().Position)
}

// set updates one field. The other field is seeded with its default when
// the document does not exist yet.
func (s *StateStore) set(ctx context.Context, field, value, other, otherDefault string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": stateID},
		bson.M{
			"$set":         bson.M{field: value, "last_updated": time.Now().UTC()},
			"$setOnInsert": bson.M{other: otherDefault},
		},
		options.Update().SetUpsert(true),
	)
	return wrapError(err)
}

var _ robot.StateStore = (*StateStore)(nil)
