// Package svcutil holds the guards and error mapping shared by the group
// services: store sentinel errors become grouperr taxonomy errors here, so
// every service reports the same reason for the same failure.
package svcutil

import (
	"context"
	"errors"

	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	policystore "github.com/dalemusser/grouphub/internal/app/store/policies"
	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/domain/models"
)

// MemberErr maps membership store errors. Unknown errors pass through.
func MemberErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, membershipstore.ErrDuplicateMembership):
		return grouperr.Wrap(err, grouperr.AlreadyMember, grouperr.ReasonAlreadyMember, "user is already a member")
	case errors.Is(err, membershipstore.ErrUserBlocked):
		return grouperr.Wrap(err, grouperr.Authorization, grouperr.ReasonUserBlocked, "user is blocked")
	case errors.Is(err, membershipstore.ErrGroupFull):
		return grouperr.Wrap(err, grouperr.QuotaExceeded, grouperr.ReasonGroupFull, "group is full")
	case errors.Is(err, membershipstore.ErrGroupInactive):
		return grouperr.Wrap(err, grouperr.Authorization, grouperr.ReasonGroupInactive, "group is inactive")
	case errors.Is(err, membershipstore.ErrGroupNotFound):
		return grouperr.Wrap(err, grouperr.NotFound, grouperr.ReasonGroupNotFound, "group not found")
	case errors.Is(err, membershipstore.ErrNotMember):
		return grouperr.Wrap(err, grouperr.Authorization, grouperr.ReasonNotMember, "user is not a member")
	case errors.Is(err, membershipstore.ErrOwnerChanged):
		return grouperr.Wrap(err, grouperr.Conflict, grouperr.ReasonNotOwner, "group owner changed")
	case errors.Is(err, policystore.ErrGroupTypeNotFound):
		return grouperr.Wrap(err, grouperr.NotFound, grouperr.ReasonGroupTypeNotFound, "group type not found")
	}
	return err
}

// RequestErr maps request store errors. Unknown errors pass through.
func RequestErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, requeststore.ErrNotFound):
		return grouperr.Wrap(err, grouperr.NotFound, grouperr.ReasonRequestNotFound, "request not found")
	case errors.Is(err, requeststore.ErrAlreadyHandled):
		return grouperr.Wrap(err, grouperr.AlreadyHandled, "", "request is no longer pending")
	}
	return err
}

// AliveGroup loads a group that is neither deleted nor deactivated.
func AliveGroup(ctx context.Context, groups *groupstore.Store, id int64) (models.Group, error) {
	g, err := groups.GetAlive(ctx, id)
	if errors.Is(err, groupstore.ErrNotFound) {
		return g, grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", id)
	}
	if err != nil {
		return g, err
	}
	if !g.IsActive {
		return g, grouperr.New(grouperr.Authorization, grouperr.ReasonGroupInactive, "group %d is inactive", id)
	}
	return g, nil
}

// GroupType loads the policy of g's type.
func GroupType(ctx context.Context, types membershipstore.TypeLookup, g models.Group) (models.GroupType, error) {
	gt, err := types.GroupType(ctx, g.TypeID)
	return gt, MemberErr(err)
}

// RequireModerator fails unless userID is the group's owner or a manager.
func RequireModerator(ctx context.Context, members *membershipstore.Store, groupID, userID int64) error {
	ok, err := members.IsOwnerOrManager(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwnerOrManager,
			"user %d is not the owner or a manager of group %d", userID, groupID)
	}
	return nil
}

// RequireOwner fails unless userID owns the group.
func RequireOwner(ctx context.Context, members *membershipstore.Store, groupID, userID int64) error {
	ok, err := members.IsOwner(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwner,
			"user %d is not the owner of group %d", userID, groupID)
	}
	return nil
}

// Moderators returns the owner and managers of the group.
func Moderators(ctx context.Context, members *membershipstore.Store, groupID int64) ([]int64, error) {
	all, err := members.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, m := range all {
		if m.Role == models.RoleOwner || m.Role == models.RoleManager {
			out = append(out, m.UserID)
		}
	}
	return out, nil
}

// Dedup returns ids without duplicates and without the excluded IDs,
// preserving order.
func Dedup(ids []int64, exclude ...int64) []int64 {
	skip := make(map[int64]bool, len(ids)+len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if skip[id] {
			continue
		}
		skip[id] = true
		out = append(out, id)
	}
	return out
}

// Policies is the policy collaborator of the services: group type lookups
// plus the Identity/Quota service.
type Policies interface {
	membershipstore.TypeLookup
	UserQuota(ctx context.Context, userID int64) (models.UserPermissionGroup, error)
}

// CheckOwnQuota fails with QuotaExceeded unless userID may own one more
// live group of typeID. A negative limit means unlimited.
//
// When a limit applies, userID's scope in claims is claimed before counting
// so that two transactions granting ownership to the same user serialize.
func CheckOwnQuota(ctx context.Context, groups *groupstore.Store, claims *versionstore.Store, policies Policies, userID, typeID int64) error {
	quota, err := policies.UserQuota(ctx, userID)
	if err != nil {
		return err
	}
	if !quota.CanCreateType(typeID) {
		return grouperr.New(grouperr.QuotaExceeded, grouperr.ReasonTypeNotCreatable,
			"user %d may not own groups of type %d", userID, typeID)
	}
	limited := quota.OwnedGroupLimit >= 0 || quota.OwnedLimitForType(typeID) >= 0
	if limited && claims != nil {
		if err := claims.Claim(ctx, userID); err != nil {
			return err
		}
	}

	if limit := quota.OwnedGroupLimit; limit >= 0 {
		n, err := groups.CountOwned(ctx, userID)
		if err != nil {
			return err
		}
		if n >= int64(limit) {
			return grouperr.New(grouperr.QuotaExceeded, grouperr.ReasonOwnedGroupLimit,
				"user %d already owns %d groups (limit %d)", userID, n, limit)
		}
	}

	if limit := quota.OwnedLimitForType(typeID); limit >= 0 {
		n, err := groups.CountOwnedByType(ctx, userID, typeID)
		if err != nil {
			return err
		}
		if n >= int64(limit) {
			return grouperr.New(grouperr.QuotaExceeded, grouperr.ReasonOwnedGroupTypeLimit,
				"user %d already owns %d groups of type %d (limit %d)", userID, n, typeID, limit)
		}
	}
	return nil
}
