// internal/app/store/policies/policystore.go
package policystore

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Cache kinds carried by invalidation messages.
const (
	KindGroupType       = "group_type"
	KindPermissionGroup = "permission_group"
)

var (
	ErrGroupTypeNotFound       = errors.New("group type not found")
	ErrPermissionGroupNotFound = errors.New("permission group not found")
)

// Invalidator tells other processes that a cached policy record changed.
type Invalidator interface {
	Invalidate(ctx context.Context, kind string, id int64) error
}

// NoopInvalidator is used when the store runs in a single process.
type NoopInvalidator struct{}

func (NoopInvalidator) Invalidate(context.Context, string, int64) error { return nil }

// Store holds group types and user permission groups behind a read-through
// cache. Local writes evict the cached record before returning; writes made
// by other processes arrive through HandleInvalidation.
//
// Every eviction advances gen. A miss notes gen before reading the database
// and fills the cache only if gen has not moved, so a read that raced with
// a write never caches the value the write replaced.
type Store struct {
	types   *mongo.Collection
	perms   *mongo.Collection
	assigns *mongo.Collection

	inv Invalidator
	log *zap.Logger

	mu        sync.RWMutex
	gen       uint64
	typeCache map[int64]models.GroupType
	permCache map[int64]models.UserPermissionGroup

	// loaded runs between a miss's database read and its cache fill.
	loaded func(kind string, id int64)
}

func New(db *mongo.Database, inv Invalidator, log *zap.Logger) *Store {
	if inv == nil {
		inv = NoopInvalidator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		types:     db.Collection("group_types"),
		perms:     db.Collection("user_permission_groups"),
		assigns:   db.Collection("user_permission_assignments"),
		inv:       inv,
		log:       log,
		typeCache: make(map[int64]models.GroupType),
		permCache: make(map[int64]models.UserPermissionGroup),
	}
}

// GroupType returns the group type, loading it into the cache on a miss.
func (s *Store) GroupType(ctx context.Context, id int64) (models.GroupType, error) {
	s.mu.RLock()
	gt, ok := s.typeCache[id]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return gt, nil
	}

	if err := s.types.FindOne(ctx, bson.M{"_id": id}).Decode(&gt); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.GroupType{}, ErrGroupTypeNotFound
		}
		return models.GroupType{}, err
	}
	if s.loaded != nil {
		s.loaded(KindGroupType, id)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.typeCache[id] = gt
	}
	s.mu.Unlock()
	return gt, nil
}

// GroupTypeExists reports whether a group type with id is defined.
func (s *Store) GroupTypeExists(ctx context.Context, id int64) (bool, error) {
	_, err := s.GroupType(ctx, id)
	if errors.Is(err, ErrGroupTypeNotFound) {
		return false, nil
	}
	return err == nil, err
}

// UpsertGroupType writes gt and evicts it from every process's cache.
func (s *Store) UpsertGroupType(ctx context.Context, gt models.GroupType) error {
	_, err := s.types.ReplaceOne(ctx, bson.M{"_id": gt.ID}, gt, options.Replace().SetUpsert(true))
	if err != nil {
		return err
	}
	s.evict(KindGroupType, gt.ID)
	s.broadcast(ctx, KindGroupType, gt.ID)
	return nil
}

// DeleteGroupType removes the group type. Existing groups of the type keep
// referencing it; callers are expected to migrate them first.
func (s *Store) DeleteGroupType(ctx context.Context, id int64) (bool, error) {
	res, err := s.types.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	s.evict(KindGroupType, id)
	s.broadcast(ctx, KindGroupType, id)
	return res.DeletedCount > 0, nil
}

// PermissionGroup returns the permission group, loading it on a miss.
func (s *Store) PermissionGroup(ctx context.Context, id int64) (models.UserPermissionGroup, error) {
	s.mu.RLock()
	pg, ok := s.permCache[id]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return pg, nil
	}

	if err := s.perms.FindOne(ctx, bson.M{"_id": id}).Decode(&pg); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.UserPermissionGroup{}, ErrPermissionGroupNotFound
		}
		return models.UserPermissionGroup{}, err
	}
	if s.loaded != nil {
		s.loaded(KindPermissionGroup, id)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.permCache[id] = pg
	}
	s.mu.Unlock()
	return pg, nil
}

func (s *Store) UpsertPermissionGroup(ctx context.Context, pg models.UserPermissionGroup) error {
	_, err := s.perms.ReplaceOne(ctx, bson.M{"_id": pg.ID}, pg, options.Replace().SetUpsert(true))
	if err != nil {
		return err
	}
	s.evict(KindPermissionGroup, pg.ID)
	s.broadcast(ctx, KindPermissionGroup, pg.ID)
	return nil
}

func (s *Store) DeletePermissionGroup(ctx context.Context, id int64) (bool, error) {
	res, err := s.perms.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	s.evict(KindPermissionGroup, id)
	s.broadcast(ctx, KindPermissionGroup, id)
	return res.DeletedCount > 0, nil
}

// AssignPermissionGroup binds userID to permission group pgID.
func (s *Store) AssignPermissionGroup(ctx context.Context, userID, pgID int64) error {
	_, err := s.assigns.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"permission_group_id": pgID}},
		options.Update().SetUpsert(true))
	return err
}

// UserQuota resolves the permission group that governs userID. Users with
// no assignment, or whose assigned group has been removed, fall back to the
// default permission group, and to the built-in default if that is missing
// too.
func (s *Store) UserQuota(ctx context.Context, userID int64) (models.UserPermissionGroup, error) {
	pgID := models.DefaultPermissionGroupID

	var a models.UserPermissionAssignment
	err := s.assigns.FindOne(ctx, bson.M{"_id": userID}).Decode(&a)
	switch {
	case err == nil:
		pgID = a.PermissionGroupID
	case err != mongo.ErrNoDocuments:
		return models.UserPermissionGroup{}, err
	}

	pg, err := s.PermissionGroup(ctx, pgID)
	if errors.Is(err, ErrPermissionGroupNotFound) && pgID != models.DefaultPermissionGroupID {
		s.log.Warn("assigned permission group missing; using default",
			zap.Int64("user_id", userID), zap.Int64("permission_group_id", pgID))
		pg, err = s.PermissionGroup(ctx, models.DefaultPermissionGroupID)
	}
	if errors.Is(err, ErrPermissionGroupNotFound) {
		return models.DefaultUserPermissionGroup(), nil
	}
	return pg, err
}

// SeedDefaults inserts the default group type and permission group when
// absent. Existing records are left untouched.
func (s *Store) SeedDefaults(ctx context.Context) error {
	if err := seed(ctx, s.types, models.DefaultGroupTypeID, models.DefaultGroupType()); err != nil {
		return err
	}
	return seed(ctx, s.perms, models.DefaultPermissionGroupID, models.DefaultUserPermissionGroup())
}

func seed(ctx context.Context, c *mongo.Collection, id int64, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return err
	}
	delete(fields, "_id")
	_, err = c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$setOnInsert": fields},
		options.Update().SetUpsert(true))
	return err
}

// HandleInvalidation applies an invalidation published by another process.
func (s *Store) HandleInvalidation(kind string, id int64) {
	s.evict(kind, id)
}

// Purge drops every cached record.
func (s *Store) Purge() {
	s.mu.Lock()
	s.gen++
	s.typeCache = make(map[int64]models.GroupType)
	s.permCache = make(map[int64]models.UserPermissionGroup)
	s.mu.Unlock()
}

func (s *Store) evict(kind string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	switch kind {
	case KindGroupType:
		delete(s.typeCache, id)
	case KindPermissionGroup:
		delete(s.permCache, id)
	}
}

// broadcast is best-effort: the local cache is already consistent, and
// remote caches converge on their next invalidation or restart.
func (s *Store) broadcast(ctx context.Context, kind string, id int64) {
	if err := s.inv.Invalidate(ctx, kind, id); err != nil {
		s.log.Warn("policy cache invalidation broadcast failed",
			zap.String("kind", kind), zap.Int64("id", id), zap.Error(err))
	}
}
