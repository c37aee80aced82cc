// Package groupadmin is the facade for group-level administration: create,
// update and delete groups, and manage their members and blacklist. Every
// operation derives its authorization from the group type's strategies.
package groupadmin

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/grouphub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/grouphub/internal/app/services/ownership"
	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	"github.com/dalemusser/grouphub/internal/app/store/audit"
	blockstore "github.com/dalemusser/grouphub/internal/app/store/blocks"
	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	questionstore "github.com/dalemusser/grouphub/internal/app/store/questions"
	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/inputval"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// IDAllocator hands out cluster-unique IDs.
type IDAllocator interface {
	NextID(kind ids.Kind) int64
}

type Config struct {
	// DeleteLogically selects the default deletion mode: set deletion_date
	// (true) or remove the group document (false).
	DeleteLogically bool
	Txn             txn.Policy
	// Audit records administration events; nil disables it.
	Audit *auditlog.Logger
}

func DefaultConfig() Config {
	return Config{DeleteLogically: true}
}

type Service struct {
	db            *mongo.Database
	groups        *groupstore.Store
	members       *membershipstore.Store
	blocks        *blockstore.Store
	invitations   *requeststore.Invitations
	joinRequests  *requeststore.JoinRequests
	questions     *questionstore.Store
	groupVersions *versionstore.Store
	userVersions  *versionstore.Store
	ownership     *ownership.Service

	policies svcutil.Policies
	ids      IDAllocator
	cfg      Config
	log      *zap.Logger
}

func New(db *mongo.Database, policies svcutil.Policies, idAlloc IDAllocator, transfers *ownership.Service, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transfers == nil {
		transfers = ownership.New(db, policies, cfg.Txn, logger).WithAudit(cfg.Audit)
	}
	return &Service{
		db:            db,
		groups:        groupstore.New(db),
		members:       membershipstore.New(db, policies, logger),
		blocks:        blockstore.New(db, logger),
		invitations:   requeststore.NewInvitations(db),
		joinRequests:  requeststore.NewJoinRequests(db),
		questions:     questionstore.New(db, logger),
		groupVersions: versionstore.NewGroupVersions(db),
		userVersions:  versionstore.NewUserVersions(db),
		ownership:     transfers,
		policies:      policies,
		ids:           idAlloc,
		cfg:           cfg,
		log:           logger,
	}
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return svcutil.RunTx(ctx, s.db, s.log, s.cfg.Txn, fn)
}

// NewGroup is the payload of Create.
type NewGroup struct {
	CreatorID    int64   `json:"creator_id" validate:"required"`
	TypeID       int64   `json:"type_id" validate:"gte=0"`
	Name         string  `json:"name" validate:"notblank,max=64"`
	Intro        string  `json:"intro" validate:"max=512"`
	Announcement string  `json:"announcement" validate:"max=512"`
	MinimumScore int     `json:"minimum_score" validate:"gte=0"`
	MemberIDs    []int64 `json:"member_ids" validate:"max=500"`
}

// CreateResult reports a created group. VersionErr is set when the group
// was created but stamping its versions failed.
type CreateResult struct {
	Group           models.Group
	Added           []int64
	AffectedUserIDs []int64
	VersionErr      error
}

// Create checks the creator's ownership quota, allocates an ID, inserts the
// group with the creator as OWNER plus any initial members, and stamps
// every version of the new group, all in one transaction.
func (s *Service) Create(ctx context.Context, in NewGroup) (CreateResult, error) {
	if err := inputval.Validate(in); err != nil {
		return CreateResult{}, err
	}
	if _, err := s.policies.GroupType(ctx, in.TypeID); err != nil {
		return CreateResult{}, svcutil.MemberErr(err)
	}

	ctx, rec := svcutil.Track(ctx)
	id := s.ids.NextID(ids.KindGroup)
	var res CreateResult
	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := svcutil.CheckOwnQuota(ctx, s.groups, s.userVersions, s.policies, in.CreatorID, in.TypeID); err != nil {
			return err
		}

		g, err := s.groups.Create(ctx, models.Group{
			ID:           id,
			TypeID:       in.TypeID,
			CreatorID:    in.CreatorID,
			OwnerID:      in.CreatorID,
			Name:         in.Name,
			Intro:        in.Intro,
			Announcement: in.Announcement,
			MinimumScore: in.MinimumScore,
			IsActive:     true,
		})
		if err != nil {
			return err
		}
		if _, err := s.members.Add(ctx, g.ID, membershipstore.NewMember{UserID: in.CreatorID, Role: models.RoleOwner}); err != nil {
			return svcutil.MemberErr(err)
		}

		var added []int64
		if extra := svcutil.Dedup(in.MemberIDs, in.CreatorID); len(extra) > 0 {
			batch := make([]membershipstore.NewMember, 0, len(extra))
			for _, uid := range extra {
				batch = append(batch, membershipstore.NewMember{UserID: uid, Role: models.RoleMember})
			}
			r, err := s.members.AddMany(ctx, g.ID, batch)
			if err != nil {
				return svcutil.MemberErr(err)
			}
			added = r.Added
		}

		versionstore.Record(ctx, s.log, "groupadmin.create", func(ctx context.Context) error {
			return s.groupVersions.BumpMany(ctx, g.ID, models.GroupVersionResources...)
		}, zap.Int64("group_id", g.ID))
		res = CreateResult{Group: g, Added: added}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}

	res.AffectedUserIDs = append([]int64{in.CreatorID}, res.Added...)
	res.VersionErr = rec.Err()
	s.cfg.Audit.GroupCreated(ctx, res.Group.ID, in.CreatorID, in.TypeID, res.Added)
	s.log.Info("group created",
		zap.Int64("group_id", res.Group.ID),
		zap.Int64("owner_id", in.CreatorID),
		zap.Int64("type_id", in.TypeID),
		zap.Int("members", len(res.Added)+1))
	return res, nil
}

// UpdateInformation changes group fields on behalf of actorID, admitted by
// the type's group-info update strategy. Changing the type or the active
// flag is reserved to the owner. Returns the users to notify.
func (s *Service) UpdateInformation(ctx context.Context, actorID, groupID int64, u groupstore.InfoUpdate) ([]int64, error) {
	if u.Empty() {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "nothing to update")
	}
	if u.Name != nil {
		if err := inputval.Var(*u.Name, "notblank,max=64"); err != nil {
			return nil, err
		}
	}
	if u.MinimumScore != nil && *u.MinimumScore < 0 {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "minimum score must not be negative")
	}

	g, err := s.groups.GetAlive(ctx, groupID)
	if errors.Is(err, groupstore.ErrNotFound) {
		return nil, grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", groupID)
	}
	if err != nil {
		return nil, err
	}
	gt, err := svcutil.GroupType(ctx, s.policies, g)
	if err != nil {
		return nil, err
	}
	role, err := s.members.Role(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !grouppolicy.CanUpdateGroupInfo(gt.GroupInfoUpdateStrategy, role) {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonUpdateNotAllowed,
			"strategy %s does not allow role %q to update group info", gt.GroupInfoUpdateStrategy, role)
	}
	if (u.TypeID != nil || u.IsActive != nil) && role != models.RoleOwner {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwner,
			"only the owner changes the type or active flag of group %d", groupID)
	}
	if u.TypeID != nil {
		if _, err := s.policies.GroupType(ctx, *u.TypeID); err != nil {
			return nil, svcutil.MemberErr(err)
		}
	}

	ok, err := s.groups.UpdateInfo(ctx, groupID, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", groupID)
	}
	versionstore.Record(ctx, s.log, "groupadmin.update_info", func(ctx context.Context) error {
		return s.groupVersions.Bump(ctx, groupID, models.GroupInfoVersion)
	}, zap.Int64("group_id", groupID))

	return s.members.ListUserIDs(ctx, groupID)
}

// DeleteResult reports a deleted group.
type DeleteResult struct {
	GroupID         int64
	Logical         bool
	AffectedUserIDs []int64
	VersionErr      error
}

// Delete removes a group on behalf of its owner. logical overrides the
// configured deletion mode when non-nil.
func (s *Service) Delete(ctx context.Context, actorID, groupID int64, logical *bool) (DeleteResult, error) {
	if err := svcutil.RequireOwner(ctx, s.members, groupID, actorID); err != nil {
		return DeleteResult{GroupID: groupID}, err
	}
	return s.deleteGroup(ctx, actorID, groupID, logical)
}

// DeleteGroup removes a group without authorization. Memberships, the
// blacklist, pending and handled requests, join questions and the version
// record go in the same transaction as the group itself.
func (s *Service) DeleteGroup(ctx context.Context, groupID int64, logical *bool) (DeleteResult, error) {
	return s.deleteGroup(ctx, audit.SystemActor, groupID, logical)
}

func (s *Service) deleteGroup(ctx context.Context, actorID, groupID int64, logical *bool) (DeleteResult, error) {
	mode := s.cfg.DeleteLogically
	if logical != nil {
		mode = *logical
	}
	res := DeleteResult{GroupID: groupID, Logical: mode}
	ctx, rec := svcutil.Track(ctx)

	if _, err := s.groups.GetAlive(ctx, groupID); err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return res, grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", groupID)
		}
		return res, err
	}

	var affected []int64
	if ids, err := s.invitations.AffectedUsers(ctx, groupID); err == nil {
		affected = append(affected, ids...)
	} else {
		s.log.Warn("delete group: invitation audience lookup failed", zap.Int64("group_id", groupID), zap.Error(err))
	}
	if ids, err := s.joinRequests.AffectedUsers(ctx, groupID); err == nil {
		affected = append(affected, ids...)
	} else {
		s.log.Warn("delete group: join request audience lookup failed", zap.Int64("group_id", groupID), zap.Error(err))
	}

	var memberIDs []int64
	err := s.runTx(ctx, func(ctx context.Context) error {
		var (
			ok  bool
			err error
		)
		if mode {
			ok, err = s.groups.MarkDeleted(ctx, groupID, time.Now())
		} else {
			ok, err = s.groups.Delete(ctx, groupID)
		}
		if err != nil {
			return err
		}
		if !ok {
			return grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", groupID)
		}

		memberIDs, err = s.members.DeleteByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if _, err := s.blocks.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if _, err := s.invitations.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if _, err := s.joinRequests.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if _, err := s.questions.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		// Clients still holding a version of this group read the missing
		// record as a deleted scope and get Empty, not NotModified.
		return s.groupVersions.Delete(ctx, groupID)
	})
	if err != nil {
		return res, err
	}

	res.AffectedUserIDs = svcutil.Dedup(append(memberIDs, affected...))
	res.VersionErr = rec.Err()
	s.cfg.Audit.GroupDeleted(ctx, groupID, actorID, mode)
	s.log.Info("group deleted",
		zap.Int64("group_id", groupID),
		zap.Bool("logical", mode),
		zap.Int("members", len(memberIDs)))
	return res, nil
}
