// Package lifecycle drives invitations and join requests through their
// shared state machine: PENDING moves once to ACCEPTED, DECLINED, IGNORED,
// CANCELED or EXPIRED and never again. Transitions are single conditional
// updates; an acceptance adds the membership in the same transaction as the
// status write.
package lifecycle

import (
	"context"
	"time"

	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	blockstore "github.com/dalemusser/grouphub/internal/app/store/blocks"
	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	questionstore "github.com/dalemusser/grouphub/internal/app/store/questions"
	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// IDAllocator hands out cluster-unique IDs.
type IDAllocator interface {
	NextID(kind ids.Kind) int64
}

// Config holds the lifecycle policy knobs.
type Config struct {
	// InvitationTTL and JoinRequestTTL set the expiration date of new
	// requests. Zero means the request never expires.
	InvitationTTL    time.Duration
	JoinRequestTTL   time.Duration
	MaxContentLength int
	SweepAction      requeststore.SweepAction
	Txn              txn.Policy
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		InvitationTTL:    7 * 24 * time.Hour,
		JoinRequestTTL:   7 * 24 * time.Hour,
		MaxContentLength: 200,
		SweepAction:      requeststore.SweepDelete,
	}
}

// Action is a recipient's response to a pending request.
type Action string

const (
	Accept  Action = "ACCEPT"
	Decline Action = "DECLINE"
	Ignore  Action = "IGNORE"
)

var actionStatus = map[Action]models.RequestStatus{
	Accept:  models.RequestAccepted,
	Decline: models.RequestDeclined,
	Ignore:  models.RequestIgnored,
}

type Service struct {
	db           *mongo.Database
	groups       *groupstore.Store
	members      *membershipstore.Store
	blocks       *blockstore.Store
	invitations  *requeststore.Invitations
	joinRequests *requeststore.JoinRequests
	questions    *questionstore.Store

	groupVersions *versionstore.Store
	userVersions  *versionstore.Store

	types membershipstore.TypeLookup
	ids   IDAllocator
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func New(db *mongo.Database, types membershipstore.TypeLookup, idAlloc IDAllocator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.SweepAction.Valid() {
		cfg.SweepAction = requeststore.SweepDelete
	}
	return &Service{
		db:            db,
		groups:        groupstore.New(db),
		members:       membershipstore.New(db, types, logger),
		blocks:        blockstore.New(db, logger),
		invitations:   requeststore.NewInvitations(db),
		joinRequests:  requeststore.NewJoinRequests(db),
		questions:     questionstore.New(db, logger),
		groupVersions: versionstore.NewGroupVersions(db),
		userVersions:  versionstore.NewUserVersions(db),
		types:         types,
		ids:           idAlloc,
		cfg:           cfg,
		log:           logger,
		now:           time.Now,
	}
}

func (s *Service) expiration(ttl time.Duration, now time.Time) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

func (s *Service) checkContent(content string) error {
	if s.cfg.MaxContentLength > 0 && len([]rune(content)) > s.cfg.MaxContentLength {
		return grouperr.New(grouperr.Validation, grouperr.ReasonContentTooLong,
			"content exceeds %d characters", s.cfg.MaxContentLength)
	}
	return nil
}

func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return svcutil.RunTx(ctx, s.db, s.log, s.cfg.Txn, fn)
}

// bumpGroup, bumpUser and bumpUsers are best-effort: the mutation already
// succeeded. Failures land on the recorder in ctx.
func (s *Service) bumpGroup(ctx context.Context, groupID int64, r models.VersionResource) {
	versionstore.Record(ctx, s.log, "lifecycle.bump_group", func(ctx context.Context) error {
		return s.groupVersions.Bump(ctx, groupID, r)
	}, zap.Int64("group_id", groupID))
}

func (s *Service) bumpUser(ctx context.Context, userID int64, r models.VersionResource) {
	versionstore.Record(ctx, s.log, "lifecycle.bump_user", func(ctx context.Context) error {
		return s.userVersions.Bump(ctx, userID, r)
	}, zap.Int64("user_id", userID))
}

func (s *Service) bumpUsers(ctx context.Context, userIDs []int64, r models.VersionResource) {
	if len(userIDs) == 0 {
		return
	}
	versionstore.Record(ctx, s.log, "lifecycle.bump_users", func(ctx context.Context) error {
		return s.userVersions.BumpScopes(ctx, userIDs, r)
	}, zap.Int("users", len(userIDs)))
}

// moderators is the notification audience for requests addressed to the
// group. A lookup failure only narrows the audience.
func (s *Service) moderators(ctx context.Context, groupID int64) []int64 {
	mods, err := svcutil.Moderators(ctx, s.members, groupID)
	if err != nil {
		s.log.Warn("moderators lookup failed", zap.Int64("group_id", groupID), zap.Error(err))
	}
	return mods
}

// SweepReport counts the requests reconciled by one sweep. VersionErr is
// set when a version stamp for the swept lists failed.
type SweepReport struct {
	Invitations  int64
	JoinRequests int64
	VersionErr   error
}

func (r SweepReport) Total() int64 { return r.Invitations + r.JoinRequests }

// SweepExpiredRequests deletes or marks every request that is stored
// PENDING with a passed expiration date, per the configured action, and
// stamps the group and user lists the requests appeared in.
func (s *Service) SweepExpiredRequests(ctx context.Context) (report SweepReport, err error) {
	ctx, rec := svcutil.Track(ctx)
	defer func() { report.VersionErr = rec.Err() }()
	now := s.now()

	inv, err := s.invitations.SweepExpired(ctx, now, s.cfg.SweepAction)
	if err != nil {
		return report, err
	}
	report.Invitations = inv.Count
	for _, gid := range inv.GroupIDs {
		s.bumpGroup(ctx, gid, models.GroupInvitationsVersion)
	}
	s.bumpUsers(ctx, inv.SenderIDs, models.UserSentGroupInvitationsVersion)
	s.bumpUsers(ctx, inv.RecipientIDs, models.UserReceivedGroupInvitationsVersion)

	jr, err := s.joinRequests.SweepExpired(ctx, now, s.cfg.SweepAction)
	if err != nil {
		return report, err
	}
	report.JoinRequests = jr.Count
	for _, gid := range jr.GroupIDs {
		s.bumpGroup(ctx, gid, models.GroupJoinRequestsVersion)
	}
	s.bumpUsers(ctx, jr.SenderIDs, models.UserGroupJoinRequestsVersion)

	if report.Total() > 0 {
		s.log.Info("expired requests swept",
			zap.String("action", string(s.cfg.SweepAction)),
			zap.Int64("invitations", report.Invitations),
			zap.Int64("join_requests", report.JoinRequests))
	}
	return report, nil
}

// Sweep adapts SweepExpiredRequests to the scheduler's job signature.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	r, err := s.SweepExpiredRequests(ctx)
	return r.Total(), err
}
