// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/grouphub/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destination modes.
const (
	ModeAll = "all" // MongoDB and zap
	ModeDB  = "db"
	ModeLog = "log"
	ModeOff = "off"
)

// Logger records group administration events to MongoDB, zap, both or
// neither. A nil *Logger is valid and records nothing.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	mode   string
}

func New(store *audit.Store, zapLog *zap.Logger, mode string) *Logger {
	switch mode {
	case ModeAll, ModeDB, ModeLog, ModeOff:
	default:
		mode = ModeAll
	}
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{store: store, zapLog: zapLog, mode: mode}
}

// ValidMode reports whether m is a known destination mode.
func ValidMode(m string) bool {
	return m == ModeAll || m == ModeDB || m == ModeLog || m == ModeOff
}

func (l *Logger) logToZap(e audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("event_type", e.EventType),
		zap.Int64("group_id", e.GroupID),
		zap.Int64("actor_id", e.ActorID),
	}
	if len(e.UserIDs) > 0 {
		fields = append(fields, zap.Int64s("user_ids", e.UserIDs))
	}
	for k, v := range e.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}
	l.zapLog.Info("audit event", fields...)
}

// Log records e according to the configured mode. Store failures are
// logged and otherwise ignored; the audited operation has already
// committed.
func (l *Logger) Log(ctx context.Context, e audit.Event) {
	if l == nil || l.mode == ModeOff {
		return
	}
	if l.mode == ModeAll || l.mode == ModeLog {
		l.logToZap(e)
	}
	if l.mode == ModeAll || l.mode == ModeDB {
		if err := l.store.Log(ctx, e); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", e.EventType),
				zap.Int64("group_id", e.GroupID))
		}
	}
}

func (l *Logger) GroupCreated(ctx context.Context, groupID, creatorID, typeID int64, members []int64) {
	l.Log(ctx, audit.Event{
		EventType: audit.EventGroupCreated,
		GroupID:   groupID,
		ActorID:   creatorID,
		UserIDs:   members,
		Details:   map[string]string{"type_id": strconv.FormatInt(typeID, 10)},
	})
}

func (l *Logger) GroupDeleted(ctx context.Context, groupID, actorID int64, logical bool) {
	l.Log(ctx, audit.Event{
		EventType: audit.EventGroupDeleted,
		GroupID:   groupID,
		ActorID:   actorID,
		Details:   map[string]string{"logical": strconv.FormatBool(logical)},
	})
}

func (l *Logger) OwnershipTransferred(ctx context.Context, groupID, actorID, oldOwnerID, newOwnerID int64, quit bool) {
	l.Log(ctx, audit.Event{
		EventType: audit.EventOwnershipTransferred,
		GroupID:   groupID,
		ActorID:   actorID,
		UserIDs:   []int64{oldOwnerID, newOwnerID},
		Details:   map[string]string{"quit": strconv.FormatBool(quit)},
	})
}

func (l *Logger) MembersRemoved(ctx context.Context, groupID, actorID int64, userIDs []int64) {
	l.Log(ctx, audit.Event{EventType: audit.EventMembersRemoved, GroupID: groupID, ActorID: actorID, UserIDs: userIDs})
}

func (l *Logger) MemberRoleChanged(ctx context.Context, groupID, actorID, userID int64, role string) {
	l.Log(ctx, audit.Event{
		EventType: audit.EventMemberRoleChanged,
		GroupID:   groupID,
		ActorID:   actorID,
		UserIDs:   []int64{userID},
		Details:   map[string]string{"role": role},
	})
}

func (l *Logger) UsersBlocked(ctx context.Context, groupID, actorID int64, userIDs []int64) {
	l.Log(ctx, audit.Event{EventType: audit.EventUsersBlocked, GroupID: groupID, ActorID: actorID, UserIDs: userIDs})
}

func (l *Logger) UsersUnblocked(ctx context.Context, groupID, actorID int64, userIDs []int64) {
	l.Log(ctx, audit.Event{EventType: audit.EventUsersUnblocked, GroupID: groupID, ActorID: actorID, UserIDs: userIDs})
}
