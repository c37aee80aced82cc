package syncgateway

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/grouphub/internal/app/policy/grouppolicy"
	blockstore "github.com/dalemusser/grouphub/internal/app/store/blocks"
	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	questionstore "github.com/dalemusser/grouphub/internal/app/store/questions"
	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Gateway exposes every group- and user-scoped resource through Query.
type Gateway struct {
	groups       *groupstore.Store
	members      *membershipstore.Store
	blocks       *blockstore.Store
	invitations  *requeststore.Invitations
	joinRequests *requeststore.JoinRequests
	questions    *questionstore.Store

	groupVersions *versionstore.Store
	userVersions  *versionstore.Store
}

func New(db *mongo.Database, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		groups:        groupstore.New(db),
		members:       membershipstore.New(db, nil, logger),
		blocks:        blockstore.New(db, logger),
		invitations:   requeststore.NewInvitations(db),
		joinRequests:  requeststore.NewJoinRequests(db),
		questions:     questionstore.New(db, logger),
		groupVersions: versionstore.NewGroupVersions(db),
		userVersions:  versionstore.NewUserVersions(db),
	}
}

// GroupInfo returns the group document. A deleted group is Empty.
func (g *Gateway) GroupInfo(ctx context.Context, groupID int64, lastKnown *time.Time) (Result[models.Group], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupInfoVersion, lastKnown,
		func(ctx context.Context) (models.Group, bool, error) {
			grp, err := g.groups.GetAlive(ctx, groupID)
			if errors.Is(err, groupstore.ErrNotFound) {
				return grp, false, nil
			}
			return grp, err == nil, err
		})
}

func (g *Gateway) Members(ctx context.Context, groupID int64, lastKnown *time.Time) (Result[[]models.GroupMember], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupMembersVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupMember, error) {
			return g.members.ListByGroup(ctx, groupID)
		}))
}

func (g *Gateway) BlockedUserIDs(ctx context.Context, groupID int64, lastKnown *time.Time) (Result[[]int64], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupBlacklistVersion, lastKnown,
		List(func(ctx context.Context) ([]int64, error) {
			return g.blocks.ListUserIDs(ctx, groupID)
		}))
}

func (g *Gateway) GroupInvitations(ctx context.Context, groupID int64, lastKnown *time.Time) (Result[[]models.GroupInvitation], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupInvitationsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupInvitation, error) {
			return g.invitations.ListByGroup(ctx, groupID)
		}))
}

func (g *Gateway) GroupJoinRequests(ctx context.Context, groupID int64, lastKnown *time.Time) (Result[[]models.GroupJoinRequest], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupJoinRequestsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupJoinRequest, error) {
			return g.joinRequests.ListByGroup(ctx, groupID)
		}))
}

// JoinQuestions returns the group's join questions. Accepted answers are
// stripped unless withAnswers is set.
func (g *Gateway) JoinQuestions(ctx context.Context, groupID int64, withAnswers bool, lastKnown *time.Time) (Result[[]models.GroupJoinQuestion], error) {
	return Query(ctx, g.groupVersions, groupID, models.GroupJoinQuestionsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupJoinQuestion, error) {
			qs, err := g.questions.ListByGroup(ctx, groupID)
			if !withAnswers {
				for i := range qs {
					qs[i].Answers = nil
				}
			}
			return qs, err
		}))
}

func (g *Gateway) SentInvitations(ctx context.Context, userID int64, lastKnown *time.Time) (Result[[]models.GroupInvitation], error) {
	return Query(ctx, g.userVersions, userID, models.UserSentGroupInvitationsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupInvitation, error) {
			return g.invitations.ListBySender(ctx, userID)
		}))
}

func (g *Gateway) ReceivedInvitations(ctx context.Context, userID int64, lastKnown *time.Time) (Result[[]models.GroupInvitation], error) {
	return Query(ctx, g.userVersions, userID, models.UserReceivedGroupInvitationsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupInvitation, error) {
			return g.invitations.ListByRecipient(ctx, userID)
		}))
}

func (g *Gateway) UserJoinRequests(ctx context.Context, userID int64, lastKnown *time.Time) (Result[[]models.GroupJoinRequest], error) {
	return Query(ctx, g.userVersions, userID, models.UserGroupJoinRequestsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.GroupJoinRequest, error) {
			return g.joinRequests.ListBySender(ctx, userID)
		}))
}

func (g *Gateway) JoinedGroupIDs(ctx context.Context, userID int64, lastKnown *time.Time) (Result[[]int64], error) {
	return Query(ctx, g.userVersions, userID, models.UserJoinedGroupsVersion, lastKnown,
		List(func(ctx context.Context) ([]int64, error) {
			return g.members.ListGroupIDsByUser(ctx, userID)
		}))
}

// JoinedGroups returns the live groups the user belongs to.
func (g *Gateway) JoinedGroups(ctx context.Context, userID int64, lastKnown *time.Time) (Result[[]models.Group], error) {
	return Query(ctx, g.userVersions, userID, models.UserJoinedGroupsVersion, lastKnown,
		List(func(ctx context.Context) ([]models.Group, error) {
			ids, err := g.members.ListGroupIDsByUser(ctx, userID)
			if err != nil || len(ids) == 0 {
				return nil, err
			}
			return g.groups.ListAlive(ctx, ids)
		}))
}

// Access is the visibility class of a group-scoped resource.
type Access int

const (
	// Public resources are visible to anyone.
	Public Access = iota
	// Members resources are visible to group members.
	Members
	// Moderators resources are visible to the owner and managers.
	Moderators
)

// Authorize fails unless requesterID may read a resource of class a in
// groupID.
func (g *Gateway) Authorize(ctx context.Context, requesterID, groupID int64, a Access) error {
	if a == Public {
		return nil
	}
	role, err := g.members.Role(ctx, groupID, requesterID)
	if err != nil {
		return err
	}
	switch {
	case a == Members && role != grouppolicy.Guest:
		return nil
	case a == Moderators && grouppolicy.CanModerate(role):
		return nil
	case a == Members:
		return grouperr.New(grouperr.Authorization, grouperr.ReasonNotMember,
			"user %d is not a member of group %d", requesterID, groupID)
	}
	return grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwnerOrManager,
		"user %d is not the owner or a manager of group %d", requesterID, groupID)
}

// IsModerator reports whether userID owns or manages groupID.
func (g *Gateway) IsModerator(ctx context.Context, groupID, userID int64) (bool, error) {
	return g.members.IsOwnerOrManager(ctx, groupID, userID)
}
