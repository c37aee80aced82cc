// Package ownership moves the OWNER role of a group from one member to
// another. Every transfer runs in a single transaction so the group never
// has zero or two owners, and is retried with bounded backoff on transient
// write conflicts.
package ownership

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchConcurrency bounds the transfers TransferMany runs at once.
const batchConcurrency = 4

type Service struct {
	db            *mongo.Database
	groups        *groupstore.Store
	members       *membershipstore.Store
	groupVersions *versionstore.Store
	userVersions  *versionstore.Store
	policies      svcutil.Policies
	txn           txn.Policy
	audit         *auditlog.Logger
	log           *zap.Logger
}

func New(db *mongo.Database, policies svcutil.Policies, p txn.Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:            db,
		groups:        groupstore.New(db),
		members:       membershipstore.New(db, policies, logger),
		groupVersions: versionstore.NewGroupVersions(db),
		userVersions:  versionstore.NewUserVersions(db),
		policies:      policies,
		txn:           p,
		log:           logger,
	}
}

// WithAudit makes the service record completed transfers to l.
func (s *Service) WithAudit(l *auditlog.Logger) *Service {
	s.audit = l
	return s
}

// TransferRequest describes one transfer. OwnerHint, when non-zero, is
// used instead of looking the current owner up; a stale hint fails the
// transfer with a Conflict.
type TransferRequest struct {
	GroupID           int64
	SuccessorID       int64
	QuitAfterTransfer bool
	OwnerHint         int64
}

// TransferResult reports a completed transfer. VersionErr is set when the
// transfer committed but stamping the group's versions failed.
type TransferResult struct {
	GroupID         int64
	OldOwnerID      int64
	NewOwnerID      int64
	AffectedUserIDs []int64
	VersionErr      error
}

// Transfer makes SuccessorID the owner of GroupID. The old owner becomes
// a MEMBER, or leaves the group when QuitAfterTransfer is set. The
// successor must already be a member and must have ownership quota left
// for the group's type; both are checked before anything is written.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	res := TransferResult{GroupID: req.GroupID, NewOwnerID: req.SuccessorID}
	ctx, rec := svcutil.Track(ctx)

	err := svcutil.RunTx(ctx, s.db, s.log, s.txn, func(ctx context.Context) error {
		g, err := s.groups.GetAlive(ctx, req.GroupID)
		if errors.Is(err, groupstore.ErrNotFound) {
			return grouperr.New(grouperr.NotFound, grouperr.ReasonGroupNotFound, "group %d not found", req.GroupID)
		}
		if err != nil {
			return err
		}

		ownerID := req.OwnerHint
		if ownerID == 0 {
			ownerID, err = s.members.FindOwnerID(ctx, g.ID)
			if errors.Is(err, membershipstore.ErrNotMember) {
				return grouperr.New(grouperr.NotFound, grouperr.ReasonOwnerNotFound, "group %d has no owner", g.ID)
			}
			if err != nil {
				return err
			}
		}
		if ownerID == req.SuccessorID {
			return grouperr.New(grouperr.Validation, grouperr.ReasonCannotTargetSelf,
				"user %d already owns group %d", ownerID, g.ID)
		}

		member, err := s.members.Exists(ctx, g.ID, req.SuccessorID)
		if err != nil {
			return err
		}
		if !member {
			return grouperr.New(grouperr.SuccessorNotMember, grouperr.ReasonNotMember,
				"successor %d is not a member of group %d", req.SuccessorID, g.ID)
		}

		if err := svcutil.CheckOwnQuota(ctx, s.groups, s.userVersions, s.policies, req.SuccessorID, g.TypeID); err != nil {
			return err
		}

		if err := s.members.SwapOwner(ctx, g.ID, ownerID, req.SuccessorID, req.QuitAfterTransfer); err != nil {
			if errors.Is(err, membershipstore.ErrNotMember) {
				return grouperr.Wrap(err, grouperr.SuccessorNotMember, grouperr.ReasonNotMember, "successor left the group")
			}
			return svcutil.MemberErr(err)
		}
		if err := s.groups.SetOwner(ctx, g.ID, req.SuccessorID); err != nil {
			return err
		}
		// owner_id is part of the group info.
		versionstore.Record(ctx, s.log, "ownership.transfer", func(ctx context.Context) error {
			return s.groupVersions.Bump(ctx, g.ID, models.GroupInfoVersion)
		}, zap.Int64("group_id", g.ID))
		res.OldOwnerID = ownerID
		return nil
	})
	if err != nil {
		return TransferResult{GroupID: req.GroupID}, err
	}

	ids, err := s.members.ListUserIDs(ctx, req.GroupID)
	if err != nil {
		s.log.Warn("transfer: list members failed", zap.Int64("group_id", req.GroupID), zap.Error(err))
	}
	if req.QuitAfterTransfer {
		ids = append(ids, res.OldOwnerID)
	}
	res.AffectedUserIDs = svcutil.Dedup(ids)
	res.VersionErr = rec.Err()

	// Without a hint the caller is a system path, recorded as SystemActor.
	s.audit.OwnershipTransferred(ctx, req.GroupID, req.OwnerHint, res.OldOwnerID, req.SuccessorID, req.QuitAfterTransfer)
	s.log.Info("group ownership transferred",
		zap.Int64("group_id", req.GroupID),
		zap.Int64("old_owner_id", res.OldOwnerID),
		zap.Int64("new_owner_id", req.SuccessorID),
		zap.Bool("quit", req.QuitAfterTransfer))
	return res, nil
}

// AuthAndTransfer transfers a group on behalf of requesterID, who must be
// its current owner.
func (s *Service) AuthAndTransfer(ctx context.Context, requesterID int64, req TransferRequest) (TransferResult, error) {
	if err := svcutil.RequireOwner(ctx, s.members, req.GroupID, requesterID); err != nil {
		return TransferResult{GroupID: req.GroupID}, err
	}
	req.OwnerHint = requesterID
	return s.Transfer(ctx, req)
}

// BatchResult aggregates the independent outcomes of TransferMany.
type BatchResult struct {
	Transferred []TransferResult
	Failed      map[int64]error
}

func (b BatchResult) Succeeded() int { return len(b.Transferred) }
func (b BatchResult) Failures() int  { return len(b.Failed) }

// TransferMany transfers each group to successorID on its own. A failure
// for one group, including SuccessorNotMember, does not stop the others.
// Only context cancellation ends the batch early.
func (s *Service) TransferMany(ctx context.Context, groupIDs []int64, successorID int64, quit bool) (BatchResult, error) {
	out := BatchResult{Failed: map[int64]error{}}
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(batchConcurrency)
	for _, gid := range svcutil.Dedup(groupIDs) {
		gid := gid
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Transfers run concurrently; each stamps through its own recorder.
			ctx := versionstore.WithRecorder(ctx, versionstore.NewRecorder())
			res, err := s.Transfer(ctx, TransferRequest{GroupID: gid, SuccessorID: successorID, QuitAfterTransfer: quit})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failed[gid] = err
				return nil
			}
			out.Transferred = append(out.Transferred, res)
			return nil
		})
	}
	err := eg.Wait()
	sort.Slice(out.Transferred, func(i, j int) bool { return out.Transferred[i].GroupID < out.Transferred[j].GroupID })

	if out.Failures() > 0 {
		s.log.Warn("batch transfer had failures",
			zap.Int64("successor_id", successorID),
			zap.Int("succeeded", out.Succeeded()),
			zap.Int("failed", out.Failures()))
	}
	return out, err
}
