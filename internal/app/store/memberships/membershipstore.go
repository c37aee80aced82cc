// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrDuplicateMembership = errors.New("user is already a member of this group")
	ErrGroupNotFound       = errors.New("group not found")
	ErrGroupInactive       = errors.New("group is inactive or deleted")
	ErrUserBlocked         = errors.New("user is blocked from this group")
	ErrGroupFull           = errors.New("group size limit reached")
	ErrNotMember           = errors.New("user is not a member of this group")
	ErrOwnerChanged        = errors.New("group owner changed concurrently")
	errBadRole             = errors.New(`role must be "OWNER", "MANAGER" or "MEMBER"`)
)

// TypeLookup resolves a group's type policy for size limits.
type TypeLookup interface {
	GroupType(ctx context.Context, id int64) (models.GroupType, error)
}

type Store struct {
	c       *mongo.Collection
	groups  *mongo.Collection
	blocked *mongo.Collection

	types         TypeLookup
	groupVersions *versionstore.Store
	userVersions  *versionstore.Store
	log           *zap.Logger
}

func New(db *mongo.Database, types TypeLookup, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		c:             db.Collection("group_members"),
		groups:        db.Collection("groups"),
		blocked:       db.Collection("group_blocked_users"),
		types:         types,
		groupVersions: versionstore.NewGroupVersions(db),
		userVersions:  versionstore.NewUserVersions(db),
		log:           log,
	}
}

// NewMember describes a membership to create.
type NewMember struct {
	UserID      int64
	Role        models.GroupMemberRole
	Name        string
	MuteEndDate *time.Time
}

func (n NewMember) doc(groupID int64, now time.Time) models.GroupMember {
	m := models.GroupMember{
		GroupID:  groupID,
		UserID:   n.UserID,
		Role:     n.Role,
		Name:     n.Name,
		JoinDate: now,
	}
	if m.Role == "" {
		m.Role = models.RoleMember
	}
	if n.MuteEndDate != nil && n.MuteEndDate.After(now) {
		t := n.MuteEndDate.UTC()
		m.MuteEndDate = &t
	}
	return m
}

// joinable loads the group and checks it can accept members, returning the
// size limit of its type (0 = unlimited).
func (s *Store) joinable(ctx context.Context, groupID int64) (int, error) {
	var g models.Group
	if err := s.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, ErrGroupNotFound
		}
		return 0, err
	}
	if !g.Alive() {
		return 0, ErrGroupInactive
	}
	if s.types == nil {
		return 0, nil
	}
	gt, err := s.types.GroupType(ctx, g.TypeID)
	if err != nil {
		return 0, err
	}
	return gt.GroupSizeLimit, nil
}

// Add creates one membership. It rejects inactive groups, blocked users,
// full groups and duplicates, then bumps the group's members version and
// the user's joined-groups version.
func (s *Store) Add(ctx context.Context, groupID int64, n NewMember) (models.GroupMember, error) {
	if n.Role != "" && !n.Role.Valid() {
		return models.GroupMember{}, errBadRole
	}
	limit, err := s.joinable(ctx, groupID)
	if err != nil {
		return models.GroupMember{}, err
	}
	blocked, err := s.isBlocked(ctx, groupID, n.UserID)
	if err != nil {
		return models.GroupMember{}, err
	}
	if blocked {
		return models.GroupMember{}, ErrUserBlocked
	}
	if limit > 0 {
		if err := s.groupVersions.Claim(ctx, groupID); err != nil {
			return models.GroupMember{}, err
		}
		count, err := s.CountByGroup(ctx, groupID)
		if err != nil {
			return models.GroupMember{}, err
		}
		if count >= int64(limit) {
			return models.GroupMember{}, ErrGroupFull
		}
	}

	m := n.doc(groupID, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMember{}, ErrDuplicateMembership
		}
		return models.GroupMember{}, err
	}

	s.bumpMembers(ctx, groupID, []int64{n.UserID})
	return m, nil
}

// AddBatchResult contains the outcome of AddMany.
type AddBatchResult struct {
	Added      []int64
	Duplicates int
	Blocked    []int64
}

// AddMany adds several memberships in one unordered insert. Blocked users
// are skipped and reported; duplicates are counted, not treated as errors.
// The whole batch is rejected with ErrGroupFull if it cannot fit.
//
// Size-limited groups are claimed before counting, so two callers running
// Add or AddMany in transactions cannot both pass the limit check: the
// second write-conflicts and retries against the new count.
func (s *Store) AddMany(ctx context.Context, groupID int64, members []NewMember) (AddBatchResult, error) {
	var res AddBatchResult
	if len(members) == 0 {
		return res, nil
	}
	for _, n := range members {
		if n.Role != "" && !n.Role.Valid() {
			return res, errBadRole
		}
	}
	limit, err := s.joinable(ctx, groupID)
	if err != nil {
		return res, err
	}

	userIDs := make([]int64, 0, len(members))
	for _, n := range members {
		userIDs = append(userIDs, n.UserID)
	}
	blocked, err := s.blockedAmong(ctx, groupID, userIDs)
	if err != nil {
		return res, err
	}
	present, err := s.FilterMembers(ctx, groupID, userIDs)
	if err != nil {
		return res, err
	}
	existing := make(map[int64]bool, len(present))
	for _, uid := range present {
		existing[uid] = true
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]interface{}, 0, len(members))
	pending := make([]int64, 0, len(members))
	for _, n := range members {
		if blocked[n.UserID] {
			res.Blocked = append(res.Blocked, n.UserID)
			continue
		}
		if existing[n.UserID] {
			res.Duplicates++
			continue
		}
		docs = append(docs, n.doc(groupID, now))
		pending = append(pending, n.UserID)
	}
	if len(docs) == 0 {
		return res, nil
	}

	if limit > 0 {
		if err := s.groupVersions.Claim(ctx, groupID); err != nil {
			return res, err
		}
		count, err := s.CountByGroup(ctx, groupID)
		if err != nil {
			return res, err
		}
		if count+int64(len(docs)) > int64(limit) {
			return res, ErrGroupFull
		}
	}

	_, err = s.c.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	failed := map[int]bool{}
	if err != nil {
		var bulkErr mongo.BulkWriteException
		if !errors.As(err, &bulkErr) {
			return res, err
		}
		for _, we := range bulkErr.WriteErrors {
			if we.Code != 11000 {
				return res, err
			}
			failed[we.Index] = true
		}
	}
	for i, uid := range pending {
		if failed[i] {
			res.Duplicates++
			continue
		}
		res.Added = append(res.Added, uid)
	}

	if len(res.Added) > 0 {
		s.bumpMembers(ctx, groupID, res.Added)
	}
	return res, nil
}

// Remove deletes the memberships of userIDs and bumps the members version
// once for the whole call.
func (s *Store) Remove(ctx context.Context, groupID int64, userIDs ...int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID, "user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		s.bumpMembers(ctx, groupID, userIDs)
	}
	return res.DeletedCount, nil
}

// MemberUpdate carries the membership fields to change; nil fields are left
// alone. A MuteEndDate that is not in the future unmutes.
type MemberUpdate struct {
	Role        *models.GroupMemberRole
	Name        *string
	MuteEndDate *time.Time
}

func (u MemberUpdate) Empty() bool {
	return u.Role == nil && u.Name == nil && u.MuteEndDate == nil
}

// Update applies u to the memberships of userIDs. Returns the number matched.
func (s *Store) Update(ctx context.Context, groupID int64, userIDs []int64, u MemberUpdate) (int64, error) {
	if len(userIDs) == 0 || u.Empty() {
		return 0, nil
	}
	if u.Role != nil && !u.Role.Valid() {
		return 0, errBadRole
	}

	set := bson.M{}
	unset := bson.M{}
	if u.Role != nil {
		set["role"] = *u.Role
	}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.MuteEndDate != nil {
		if u.MuteEndDate.After(time.Now()) {
			set["mute_end_date"] = u.MuteEndDate.UTC()
		} else {
			unset["mute_end_date"] = ""
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.c.UpdateMany(ctx, bson.M{"group_id": groupID, "user_id": bson.M{"$in": userIDs}}, update)
	if err != nil {
		return 0, err
	}
	if res.ModifiedCount > 0 {
		versionstore.Record(ctx, s.log, "members.update", func(ctx context.Context) error {
			return s.groupVersions.Bump(ctx, groupID, models.GroupMembersVersion)
		}, zap.Int64("group_id", groupID))
	}
	return res.MatchedCount, nil
}

// SwapOwner moves the OWNER role from oldOwnerID to successorID. The old
// owner is demoted to MEMBER, or removed when quit is set. Both writes are
// conditional: ErrOwnerChanged if oldOwnerID no longer owns the group,
// ErrNotMember if successorID is not a member. Callers run this inside a
// transaction so a failure in either step leaves no partial change. The
// members version is bumped once.
func (s *Store) SwapOwner(ctx context.Context, groupID, oldOwnerID, successorID int64, quit bool) error {
	ownerFilter := bson.M{"group_id": groupID, "user_id": oldOwnerID, "role": models.RoleOwner}
	if quit {
		res, err := s.c.DeleteOne(ctx, ownerFilter)
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrOwnerChanged
		}
	} else {
		res, err := s.c.UpdateOne(ctx, ownerFilter, bson.M{"$set": bson.M{"role": models.RoleMember}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrOwnerChanged
		}
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"group_id": groupID, "user_id": successorID},
		bson.M{"$set": bson.M{"role": models.RoleOwner}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotMember
	}

	versionstore.Record(ctx, s.log, "members.swap_owner", func(ctx context.Context) error {
		return s.groupVersions.Bump(ctx, groupID, models.GroupMembersVersion)
	}, zap.Int64("group_id", groupID))
	if quit {
		versionstore.Record(ctx, s.log, "members.swap_owner", func(ctx context.Context) error {
			return s.userVersions.Bump(ctx, oldOwnerID, models.UserJoinedGroupsVersion)
		}, zap.Int64("user_id", oldOwnerID))
	}
	return nil
}

// DeleteByGroup removes every membership of the group and returns the
// removed user IDs so their joined-groups versions can be bumped.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) ([]int64, error) {
	userIDs, err := s.ListUserIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID}); err != nil {
		return nil, err
	}
	if len(userIDs) > 0 {
		versionstore.Record(ctx, s.log, "members.delete_by_group", func(ctx context.Context) error {
			return s.userVersions.BumpScopes(ctx, userIDs, models.UserJoinedGroupsVersion)
		}, zap.Int64("group_id", groupID))
	}
	return userIDs, nil
}

// Get returns the membership for (groupID, userID) or ErrNotMember.
func (s *Store) Get(ctx context.Context, groupID, userID int64) (models.GroupMember, error) {
	var m models.GroupMember
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return models.GroupMember{}, ErrNotMember
	}
	if err != nil {
		return models.GroupMember{}, err
	}
	return m, nil
}

// Exists checks if a membership exists for the given group and user.
func (s *Store) Exists(ctx context.Context, groupID, userID int64) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Role returns the user's role, or "" when they are not a member.
func (s *Store) Role(ctx context.Context, groupID, userID int64) (models.GroupMemberRole, error) {
	m, err := s.Get(ctx, groupID, userID)
	if errors.Is(err, ErrNotMember) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (s *Store) IsOwner(ctx context.Context, groupID, userID int64) (bool, error) {
	role, err := s.Role(ctx, groupID, userID)
	return role == models.RoleOwner, err
}

func (s *Store) IsOwnerOrManager(ctx context.Context, groupID, userID int64) (bool, error) {
	role, err := s.Role(ctx, groupID, userID)
	return role == models.RoleOwner || role == models.RoleManager, err
}

// FindOwnerID returns the user holding the OWNER role, or ErrNotMember when
// no membership has it.
func (s *Store) FindOwnerID(ctx context.Context, groupID int64) (int64, error) {
	var m models.GroupMember
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "role": models.RoleOwner}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return 0, ErrNotMember
	}
	if err != nil {
		return 0, err
	}
	return m.UserID, nil
}

// ListByGroup returns the group's members ordered by join date.
func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	opts := options.Find().SetSort(bson.D{{Key: "join_date", Value: 1}, {Key: "user_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var members []models.GroupMember
	if err := cur.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// ListUserIDs returns the user IDs of the group's members.
func (s *Store) ListUserIDs(ctx context.Context, groupID int64) ([]int64, error) {
	return s.distinctInt64(ctx, "user_id", bson.M{"group_id": groupID})
}

// ListGroupIDsByUser returns the IDs of every group userID belongs to.
func (s *Store) ListGroupIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.distinctInt64(ctx, "group_id", bson.M{"user_id": userID})
}

// CountByGroup returns the number of members in the group.
func (s *Store) CountByGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID})
}

// FilterMembers returns the subset of userIDs that are members of groupID.
func (s *Store) FilterMembers(ctx context.Context, groupID int64, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return s.distinctInt64(ctx, "user_id", bson.M{"group_id": groupID, "user_id": bson.M{"$in": userIDs}})
}

func (s *Store) distinctInt64(ctx context.Context, field string, filter bson.M) ([]int64, error) {
	vals, err := s.c.Distinct(ctx, field, filter)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		switch n := v.(type) {
		case int64:
			out = append(out, n)
		case int32:
			out = append(out, int64(n))
		}
	}
	return out, nil
}

func (s *Store) isBlocked(ctx context.Context, groupID, userID int64) (bool, error) {
	err := s.blocked.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) blockedAmong(ctx context.Context, groupID int64, userIDs []int64) (map[int64]bool, error) {
	vals, err := s.blocked.Distinct(ctx, "user_id", bson.M{"group_id": groupID, "user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(vals))
	for _, v := range vals {
		if n, ok := v.(int64); ok {
			out[n] = true
		}
	}
	return out, nil
}

// bumpMembers stamps the group's members version and each affected user's
// joined-groups version through the recorder in ctx.
func (s *Store) bumpMembers(ctx context.Context, groupID int64, userIDs []int64) {
	versionstore.Record(ctx, s.log, "members.bump", func(ctx context.Context) error {
		return s.groupVersions.Bump(ctx, groupID, models.GroupMembersVersion)
	}, zap.Int64("group_id", groupID))
	versionstore.Record(ctx, s.log, "members.bump_users", func(ctx context.Context) error {
		return s.userVersions.BumpScopes(ctx, userIDs, models.UserJoinedGroupsVersion)
	}, zap.Int64("group_id", groupID))
}
