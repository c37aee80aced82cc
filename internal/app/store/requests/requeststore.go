// internal/app/store/requests/requeststore.go
package requeststore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/grouphub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound       = errors.New("request not found")
	ErrAlreadyHandled = errors.New("request already handled")
	ErrDuplicate      = errors.New("request id already exists")
)

// SweepAction selects what SweepExpired does with lazily-expired requests.
type SweepAction string

const (
	SweepDelete SweepAction = "delete"
	SweepMark   SweepAction = "mark"
)

func (a SweepAction) Valid() bool {
	return a == SweepDelete || a == SweepMark
}

// Entity is a request document carrying the shared lifecycle state.
type Entity[T any] interface {
	*T
	State() *models.RequestState
}

// Store persists one kind of pending request. Reads present a PENDING
// request whose expiration date has passed as EXPIRED without writing.
type Store[T any, PT Entity[T]] struct {
	c         *mongo.Collection
	sender    string
	recipient string
	now       func() time.Time
}

type (
	Invitations  = Store[models.GroupInvitation, *models.GroupInvitation]
	JoinRequests = Store[models.GroupJoinRequest, *models.GroupJoinRequest]
)

func NewInvitations(db *mongo.Database) *Invitations {
	return &Invitations{
		c:         db.Collection("group_invitations"),
		sender:    "inviter_id",
		recipient: "invitee_id",
		now:       time.Now,
	}
}

func NewJoinRequests(db *mongo.Database) *JoinRequests {
	return &JoinRequests{
		c:         db.Collection("group_join_requests"),
		sender:    "requester_id",
		recipient: "responder_id",
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store[T, PT]) WithClock(now func() time.Time) *Store[T, PT] {
	s.now = now
	return s
}

// Insert stores a new request document.
func (s *Store[T, PT]) Insert(ctx context.Context, doc T) error {
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Get returns the request with lazy expiration applied.
func (s *Store[T, PT]) Get(ctx context.Context, id int64) (T, error) {
	var doc T
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return doc, ErrNotFound
		}
		return doc, err
	}
	PT(&doc).State().ApplyLazyExpiration(s.now())
	return doc, nil
}

// ListByGroup returns the group's requests, newest first.
func (s *Store[T, PT]) ListByGroup(ctx context.Context, groupID int64) ([]T, error) {
	return s.list(ctx, bson.M{"group_id": groupID})
}

// ListBySender returns the requests userID sent, newest first.
func (s *Store[T, PT]) ListBySender(ctx context.Context, userID int64) ([]T, error) {
	return s.list(ctx, bson.M{s.sender: userID})
}

// ListByRecipient returns the requests addressed to userID, newest first.
func (s *Store[T, PT]) ListByRecipient(ctx context.Context, userID int64) ([]T, error) {
	return s.list(ctx, bson.M{s.recipient: userID})
}

func (s *Store[T, PT]) list(ctx context.Context, filter bson.M) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "creation_date", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	now := s.now()
	for i := range out {
		PT(&out[i]).State().ApplyLazyExpiration(now)
	}
	return out, nil
}

// Transition moves a request from PENDING to status with a single
// conditional update that only matches a stored PENDING request that has
// not expired. set carries extra fields to write (e.g. responder_id).
//
// When nothing matches the request is re-read: ErrNotFound if it is gone,
// ErrAlreadyHandled otherwise, with the request as currently observed.
func (s *Store[T, PT]) Transition(ctx context.Context, id int64, status models.RequestStatus, set bson.M) (T, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	fields := bson.M{"status": status, "response_date": now}
	for k, v := range set {
		fields[k] = v
	}

	filter := bson.M{
		"_id":    id,
		"status": models.RequestPending,
		"$or": bson.A{
			bson.M{"expiration_date": nil},
			bson.M{"expiration_date": bson.M{"$gt": now}},
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc T
	err := s.c.FindOneAndUpdate(ctx, filter, bson.M{"$set": fields}, opts).Decode(&doc)
	if err == nil {
		return doc, nil
	}
	if err != mongo.ErrNoDocuments {
		return doc, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return current, err
	}
	return current, ErrAlreadyHandled
}

// SweepResult reports the outcome of SweepExpired. SenderIDs and
// RecipientIDs list the users whose request lists changed.
type SweepResult struct {
	Count        int64
	GroupIDs     []int64
	SenderIDs    []int64
	RecipientIDs []int64
}

// SweepExpired reconciles requests that are stored PENDING but expired at
// now, either deleting them or persisting EXPIRED.
func (s *Store[T, PT]) SweepExpired(ctx context.Context, now time.Time, action SweepAction) (SweepResult, error) {
	filter := bson.M{
		"status":          models.RequestPending,
		"expiration_date": bson.M{"$lte": now.UTC()},
	}

	var (
		res SweepResult
		err error
	)
	if res.GroupIDs, err = s.distinctIDs(ctx, "group_id", filter); err != nil {
		return res, err
	}
	if len(res.GroupIDs) == 0 {
		return res, nil
	}
	if res.SenderIDs, err = s.distinctIDs(ctx, s.sender, filter); err != nil {
		return res, err
	}
	if res.RecipientIDs, err = s.distinctIDs(ctx, s.recipient, filter); err != nil {
		return res, err
	}

	switch action {
	case SweepMark:
		r, err := s.c.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": models.RequestExpired}})
		if err != nil {
			return res, err
		}
		res.Count = r.ModifiedCount
	default:
		r, err := s.c.DeleteMany(ctx, filter)
		if err != nil {
			return res, err
		}
		res.Count = r.DeletedCount
	}
	return res, nil
}

// DeleteByGroup removes every request of the group.
func (s *Store[T, PT]) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// AffectedUsers returns the distinct senders and recipients of the group's
// pending requests, for callers that notify them about a cascade.
func (s *Store[T, PT]) AffectedUsers(ctx context.Context, groupID int64) ([]int64, error) {
	filter := bson.M{"group_id": groupID, "status": models.RequestPending}
	seen := map[int64]bool{}
	var out []int64
	for _, field := range []string{s.sender, s.recipient} {
		vals, err := s.c.Distinct(ctx, field, filter)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			id, ok := v.(int64)
			if !ok || id == 0 || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// distinctIDs returns the distinct non-zero int64 values of field.
func (s *Store[T, PT]) distinctIDs(ctx context.Context, field string, filter bson.M) ([]int64, error) {
	vals, err := s.c.Distinct(ctx, field, filter)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(int64); ok && id != 0 {
			out = append(out, id)
		}
	}
	return out, nil
}
