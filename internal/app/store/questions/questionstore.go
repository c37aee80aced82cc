// internal/app/store/questions/questionstore.go
package questionstore

import (
	"context"
	"errors"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrNotFound  = errors.New("join question not found")
	ErrDuplicate = errors.New("join question id already exists")
)

type Store struct {
	c        *mongo.Collection
	versions *versionstore.Store
	log      *zap.Logger
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		c:        db.Collection("group_join_questions"),
		versions: versionstore.NewGroupVersions(db),
		log:      log,
	}
}

// InsertMany stores questions that all belong to groupID.
func (s *Store) InsertMany(ctx context.Context, groupID int64, qs []models.GroupJoinQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(qs))
	for _, q := range qs {
		q.GroupID = groupID
		docs = append(docs, q)
	}
	if _, err := s.c.InsertMany(ctx, docs); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicate
		}
		return err
	}
	s.bump(ctx, groupID)
	return nil
}

// Get returns the question or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (models.GroupJoinQuestion, error) {
	var q models.GroupJoinQuestion
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&q); err != nil {
		if err == mongo.ErrNoDocuments {
			return q, ErrNotFound
		}
		return q, err
	}
	return q, nil
}

// GetMany returns the questions among ids, in no particular order.
func (s *Store) GetMany(ctx context.Context, ids []int64) ([]models.GroupJoinQuestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// ListByGroup returns the group's questions ordered by ID.
func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]models.GroupJoinQuestion, error) {
	return s.find(ctx, bson.M{"group_id": groupID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.GroupJoinQuestion, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupJoinQuestion
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// QuestionUpdate carries the fields to change; nil fields are left alone.
type QuestionUpdate struct {
	Question *string
	Answers  []string
	Score    *int
}

func (u QuestionUpdate) Empty() bool {
	return u.Question == nil && u.Answers == nil && u.Score == nil
}

// Update modifies a question. Returns ErrNotFound if it does not exist.
func (s *Store) Update(ctx context.Context, id int64, u QuestionUpdate) error {
	set := bson.M{}
	if u.Question != nil {
		set["question"] = *u.Question
	}
	if u.Answers != nil {
		set["answers"] = u.Answers
	}
	if u.Score != nil {
		set["score"] = *u.Score
	}
	if len(set) == 0 {
		return nil
	}

	var q models.GroupJoinQuestion
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}).Decode(&q)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.bump(ctx, q.GroupID)
	return nil
}

// DeleteMany removes questions of groupID among ids.
func (s *Store) DeleteMany(ctx context.Context, groupID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID, "_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		s.bump(ctx, groupID)
	}
	return res.DeletedCount, nil
}

// DeleteByGroup removes all questions of the group.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) bump(ctx context.Context, groupID int64) {
	versionstore.Record(ctx, s.log, "join_questions.bump", func(ctx context.Context) error {
		return s.versions.Bump(ctx, groupID, models.GroupJoinQuestionsVersion)
	}, zap.Int64("group_id", groupID))
}
