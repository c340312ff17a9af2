package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Collection names.
const (
	runsCollection     = "runs"
	stepsCollection    = "run_steps"
	countersCollection = "counters"
)

// runDocument is the MongoDB document representation of a run. The plan is
// kept as JSON text so the document does not depend on robot.Step's field
// layout.
type runDocument struct {
	ID            string     `bson:"_id"`
	OperatorInput string     `bson:"operator_input"`
	SequenceJSON  string     `bson:"sequence_json"`
	Status        string     `bson:"status"`
	StartedAt     time.Time  `bson:"started_at"`
	FinishedAt    *time.Time `bson:"finished_at,omitempty"`
}

type stepDocument struct {
	ID         int64      `bson:"_id"`
	RunID      string     `bson:"run_id"`
	Position   string     `bson:"position"`
	Action     string     `bson:"action"`
	State      string     `bson:"state"`
	Error      string     `bson:"error,omitempty"`
	StartedAt  time.Time  `bson:"started_at"`
	FinishedAt *time.Time `bson:"finished_at,omitempty"`
}

// HistoryStore is a MongoDB-backed implementation of history.Store.
type HistoryStore struct {
	runs         *mongo.Collection
	steps        *mongo.Collection
	counters     *mongo.Collection
	queryTimeout time.Duration
}

// NewHistoryStore creates a history store. Call Migrate before first use.
func NewHistoryStore(client *Client) *HistoryStore {
	s := &HistoryStore{queryTimeout: client.queryTimeout()}
	if client != nil {
		s.runs = client.Collection(runsCollection)
		s.steps = client.Collection(stepsCollection)
		s.counters = client.Collection(countersCollection)
	}
	return s
}

// Migrate creates the indexes used by the history queries.
func (s *HistoryStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
	}); err != nil {
		return wrapError(err)
	}
	if _, err := s.steps.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}}},
	}); err != nil {
		return wrapError(err)
	}
	return nil
}

// CreateRun persists a new run. An empty status defaults to pending.
func (s *HistoryStore) CreateRun(ctx context.Context, r history.Run) error {
	if r.ID == "" {
		return history.ErrInvalidRunID
	}
	if r.Status == "" {
		r.Status = history.RunPending
	}
	if !r.Status.IsValid() {
		return history.ErrInvalidStatus
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	doc, err := toRunDocument(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.runs.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return history.ErrRunExists
		}
		return wrapError(err)
	}
	return nil
}

// SetRunStatus updates the run status. Final statuses stamp finished_at.
func (s *HistoryStore) SetRunStatus(ctx context.Context, id string, status history.RunStatus) error {
	if id == "" {
		return history.ErrInvalidRunID
	}
	if !status.IsValid() {
		return history.ErrInvalidStatus
	}

	set := bson.M{"status": string(status)}
	if status.IsFinal() {
		set["finished_at"] = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.runs.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return wrapError(err)
	}
	if result.MatchedCount == 0 {
		return history.ErrRunNotFound
	}
	return nil
}

// AddStep records a running step and returns its id. Step ids come from a
// counter document so they increase across processes.
func (s *HistoryStore) AddStep(ctx context.Context, runID, position string, action robot.Action) (int64, error) {
	if runID == "" {
		return 0, history.ErrInvalidRunID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	n, err := s.runs.CountDocuments(ctx, bson.M{"_id": runID}, options.Count().SetLimit(1))
	if err != nil {
		return 0, wrapError(err)
	}
	if n == 0 {
		return 0, history.ErrRunNotFound
	}

	id, err := s.nextStepID(ctx)
	if err != nil {
		return 0, err
	}

	doc := stepDocument{
		ID:        id,
		RunID:     runID,
		Position:  position,
		Action:    string(action),
		State:     string(history.StepRunning),
		StartedAt: time.Now().UTC(),
	}
	if _, err := s.steps.InsertOne(ctx, doc); err != nil {
		return 0, wrapError(err)
	}
	return id, nil
}

func (s *HistoryStore) nextStepID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": stepsCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, wrapError(err)
	}
	return counter.Seq, nil
}

// FinishStep completes a step, or marks it errored when errMsg is set.
func (s *HistoryStore) FinishStep(ctx context.Context, stepID int64, errMsg string) error {
	set := bson.M{
		"state":       string(history.StepCompleted),
		"finished_at": time.Now().UTC(),
	}
	if errMsg != "" {
		set["state"] = string(history.StepError)
		set["error"] = errMsg
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.steps.UpdateOne(ctx, bson.M{"_id": stepID}, bson.M{"$set": set})
	if err != nil {
		return wrapError(err)
	}
	if result.MatchedCount == 0 {
		return history.ErrStepNotFound
	}
	return nil
}

// Get retrieves a run by ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (history.Run, error) {
	if id == "" {
		return history.Run{}, history.ErrInvalidRunID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc runDocument
	err := s.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return history.Run{}, history.ErrRunNotFound
	}
	if err != nil {
		return history.Run{}, wrapError(err)
	}
	return fromRunDocument(doc)
}

// LatestCompleted returns the most recently started completed run.
func (s *HistoryStore) LatestCompleted(ctx context.Context) (history.Run, error) {
	runs, err := s.List(ctx, history.ListFilter{Status: []history.RunStatus{history.RunCompleted}, Limit: 1})
	if err != nil {
		return history.Run{}, err
	}
	if len(runs) == 0 {
		return history.Run{}, history.ErrRunNotFound
	}
	return runs[0], nil
}

// List returns runs matching the filter, newest first.
func (s *HistoryStore) List(ctx context.Context, filter history.ListFilter) ([]history.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.runs.Find(ctx, buildFilter(filter), buildFindOptions(filter))
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var runs []history.Run
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		r, err := fromRunDocument(doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapError(err)
	}
	return runs, nil
}

// Steps returns the steps of a run in dispatch order.
func (s *HistoryStore) Steps(ctx context.Context, runID string) ([]history.Step, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.steps.Find(ctx, bson.M{"run_id": runID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var steps []history.Step
	for cursor.Next(ctx) {
		var doc stepDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapError(err)
		}
		steps = append(steps, fromStepDocument(doc))
	}
	return steps, wrapError(cursor.Err())
}

// FailedPositions returns distinct positions of errored steps, sorted.
func (s *HistoryStore) FailedPositions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	values, err := s.steps.Distinct(ctx, "position", bson.M{
		"state":    string(history.StepError),
		"position": bson.M{"$ne": ""},
	})
	if err != nil {
		return nil, wrapError(err)
	}

	positions := make([]string, 0, len(values))
	for _, v := range values {
		if p, ok := v.(string); ok {
			positions = append(positions, p)
		}
	}
	sort.Strings(positions)
	return positions, nil
}

// buildFilter constructs a MongoDB filter from the history filter. The time
// window is half-open, matching history.ListFilter.Matches.
func buildFilter(filter history.ListFilter) bson.M {
	mongoFilter := bson.M{}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		mongoFilter["status"] = bson.M{"$in": statuses}
	}

	window := bson.M{}
	if !filter.FromTime.IsZero() {
		window["$gte"] = filter.FromTime
	}
	if !filter.ToTime.IsZero() {
		window["$lt"] = filter.ToTime
	}
	if len(window) > 0 {
		mongoFilter["started_at"] = window
	}

	if filter.InputPattern != "" {
		mongoFilter["operator_input"] = bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(filter.InputPattern),
			Options: "i",
		}}
	}

	return mongoFilter
}

func buildFindOptions(filter history.ListFilter) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return opts
}

func toRunDocument(r history.Run) (runDocument, error) {
	seq := r.Sequence
	if seq == nil {
		seq = robot.Plan{}
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return runDocument{}, fmt.Errorf("marshal sequence: %w", err)
	}

	doc := runDocument{
		ID:            r.ID,
		OperatorInput: r.OperatorInput,
		SequenceJSON:  string(data),
		Status:        string(r.Status),
		StartedAt:     r.StartedAt.UTC(),
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt.UTC()
		doc.FinishedAt = &finished
	}
	return doc, nil
}

func fromRunDocument(doc runDocument) (history.Run, error) {
	r := history.Run{
		ID:            doc.ID,
		OperatorInput: doc.OperatorInput,
		Status:        history.RunStatus(doc.Status),
		StartedAt:     doc.StartedAt,
	}
	if err := json.Unmarshal([]byte(doc.SequenceJSON), &r.Sequence); err != nil {
		return history.Run{}, fmt.Errorf("unmarshal sequence: %w", err)
	}
	if doc.FinishedAt != nil {
		r.FinishedAt = *doc.FinishedAt
	}
	return r, nil
}

func fromStepDocument(doc stepDocument) history.Step {
	st := history.Step{
		ID:        doc.ID,
		RunID:     doc.RunID,
		Position:  doc.Position,
		Action:    robot.Action(doc.Action),
		State:     history.StepState(doc.State),
		Error:     doc.Error,
		StartedAt: doc.StartedAt,
	}
	if doc.FinishedAt != nil {
		st.FinishedAt = *doc.FinishedAt
	}
	return st
}

var _ history.Store = (*HistoryStore)(nil)
