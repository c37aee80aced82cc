// internal/domain/models/grouprequest.go
package models

import (
	"time"
)

// RequestStatus is the lifecycle state shared by invitations and join requests.
// PENDING is the only non-terminal state.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestDeclined RequestStatus = "DECLINED"
	RequestIgnored  RequestStatus = "IGNORED"
	RequestCanceled RequestStatus = "CANCELED"
	RequestExpired  RequestStatus = "EXPIRED"
)

// Terminal reports whether no further transition is permitted from s.
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

// RequestState holds the lifecycle fields common to every request document.
// It is inlined into the concrete documents.
type RequestState struct {
	Status         RequestStatus `bson:"status" json:"status"`
	CreationDate   time.Time     `bson:"creation_date" json:"creation_date"`
	ResponseDate   *time.Time    `bson:"response_date,omitempty" json:"response_date,omitempty"`
	ExpirationDate *time.Time    `bson:"expiration_date,omitempty" json:"expiration_date,omitempty"`
}

// ExpiredAt reports whether a pending request has passed its expiration date.
func (s RequestState) ExpiredAt(now time.Time) bool {
	return s.Status == RequestPending && s.ExpirationDate != nil && !s.ExpirationDate.After(now)
}

// EffectiveStatus is the status as presented to readers: a pending request
// whose expiration date has passed reads as EXPIRED even though storage
// still says PENDING.
func (s RequestState) EffectiveStatus(now time.Time) RequestStatus {
	if s.ExpiredAt(now) {
		return RequestExpired
	}
	return s.Status
}

// ApplyLazyExpiration rewrites Status in memory to its effective value.
func (s *RequestState) ApplyLazyExpiration(now time.Time) {
	s.Status = s.EffectiveStatus(now)
}

// GroupInvitation is an invitation from a group owner/manager (or member,
// depending on the group's invitation strategy) to a user.
type GroupInvitation struct {
	ID        int64  `bson:"_id" json:"id"`
	GroupID   int64  `bson:"group_id" json:"group_id"`
	InviterID int64  `bson:"inviter_id" json:"inviter_id"`
	InviteeID int64  `bson:"invitee_id" json:"invitee_id"`
	Content   string `bson:"content,omitempty" json:"content,omitempty"`

	RequestState `bson:",inline"`
}

// State exposes the lifecycle fields to generic request code.
func (i *GroupInvitation) State() *RequestState { return &i.RequestState }

// GroupJoinRequest is a user's request to join a group. ResponderID stays
// zero until an owner or manager handles it.
type GroupJoinRequest struct {
	ID          int64  `bson:"_id" json:"id"`
	GroupID     int64  `bson:"group_id" json:"group_id"`
	RequesterID int64  `bson:"requester_id" json:"requester_id"`
	ResponderID int64  `bson:"responder_id,omitempty" json:"responder_id,omitempty"`
	Content     string `bson:"content,omitempty" json:"content,omitempty"`

	RequestState `bson:",inline"`
}

// State exposes the lifecycle fields to generic request code.
func (r *GroupJoinRequest) State() *RequestState { return &r.RequestState }

// GroupJoinQuestion gates the question-answer join path. A user joins when
// the summed Score of correctly answered questions reaches the group's
// MinimumScore.
type GroupJoinQuestion struct {
	ID       int64    `bson:"_id" json:"id"`
	GroupID  int64    `bson:"group_id" json:"group_id"`
	Question string   `bson:"question" json:"question"`
	Answers  []string `bson:"answers" json:"answers,omitempty"`
	Score    int      `bson:"score" json:"score"`
}
