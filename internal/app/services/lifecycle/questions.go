package lifecycle

import (
	"context"
	"errors"
	"sort"

	"github.com/dalemusser/grouphub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	questionstore "github.com/dalemusser/grouphub/internal/app/store/questions"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/inputval"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.uber.org/zap"
)

// QuestionInput is one join question to create.
type QuestionInput struct {
	Question string   `json:"question" validate:"notblank,max=200"`
	Answers  []string `json:"answers" validate:"required,min=1,dive,notblank"`
	Score    int      `json:"score" validate:"gte=0"`
}

// CreateQuestions adds join questions to a group. Owner or managers only.
func (s *Service) CreateQuestions(ctx context.Context, actorID, groupID int64, in []QuestionInput) ([]models.GroupJoinQuestion, error) {
	if len(in) == 0 {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "no questions given")
	}
	for _, q := range in {
		if err := inputval.Validate(q); err != nil {
			return nil, err
		}
	}
	if _, err := svcutil.AliveGroup(ctx, s.groups, groupID); err != nil {
		return nil, err
	}
	if err := svcutil.RequireModerator(ctx, s.members, groupID, actorID); err != nil {
		return nil, err
	}

	qs := make([]models.GroupJoinQuestion, 0, len(in))
	for _, q := range in {
		qs = append(qs, models.GroupJoinQuestion{
			ID:       s.ids.NextID(ids.KindJoinQuestion),
			GroupID:  groupID,
			Question: q.Question,
			Answers:  q.Answers,
			Score:    q.Score,
		})
	}
	if err := s.questions.InsertMany(ctx, groupID, qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// UpdateQuestion modifies one join question. Owner or managers only.
func (s *Service) UpdateQuestion(ctx context.Context, actorID, questionID int64, u questionstore.QuestionUpdate) error {
	if u.Empty() {
		return grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "nothing to update")
	}
	if u.Score != nil && *u.Score < 0 {
		return grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "score must not be negative")
	}
	if u.Answers != nil && len(u.Answers) == 0 {
		return grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "answers must not be empty")
	}

	q, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return questionErr(err, questionID)
	}
	if err := svcutil.RequireModerator(ctx, s.members, q.GroupID, actorID); err != nil {
		return err
	}
	return questionErr(s.questions.Update(ctx, questionID, u), questionID)
}

// DeleteQuestions removes join questions of a group and returns how many
// were deleted. Owner or managers only.
func (s *Service) DeleteQuestions(ctx context.Context, actorID, groupID int64, questionIDs []int64) (int64, error) {
	if err := svcutil.RequireModerator(ctx, s.members, groupID, actorID); err != nil {
		return 0, err
	}
	return s.questions.DeleteMany(ctx, groupID, svcutil.Dedup(questionIDs))
}

// AnswerResult reports the outcome of CheckAnswersAndJoin.
type AnswerResult struct {
	GroupID            int64
	Joined             bool
	Score              int
	MatchedQuestionIDs []int64
	AffectedUserIDs    []int64
	VersionErr         error
}

// CheckAnswersAndJoin scores the user's answers and adds them as a MEMBER
// when the total reaches the group's minimum score. Every question must
// belong to the same group. Blocked users and existing members are
// rejected before any answer is evaluated.
func (s *Service) CheckAnswersAndJoin(ctx context.Context, userID int64, answers map[int64]string) (AnswerResult, error) {
	if len(answers) == 0 {
		return AnswerResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "no answers given")
	}
	qids := make([]int64, 0, len(answers))
	for id := range answers {
		qids = append(qids, id)
	}
	sort.Slice(qids, func(i, j int) bool { return qids[i] < qids[j] })

	qs, err := s.questions.GetMany(ctx, qids)
	if err != nil {
		return AnswerResult{}, err
	}
	if len(qs) != len(qids) {
		return AnswerResult{}, grouperr.New(grouperr.NotFound, grouperr.ReasonQuestionNotFound,
			"%d of %d questions not found", len(qids)-len(qs), len(qids))
	}
	groupID := qs[0].GroupID
	for _, q := range qs[1:] {
		if q.GroupID != groupID {
			return AnswerResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonQuestionsFromOtherGroups,
				"questions belong to more than one group")
		}
	}

	res := AnswerResult{GroupID: groupID}
	g, err := svcutil.AliveGroup(ctx, s.groups, groupID)
	if err != nil {
		return res, err
	}

	blocked, err := s.blocks.IsBlocked(ctx, groupID, userID)
	if err != nil {
		return res, err
	}
	if blocked {
		return res, grouperr.New(grouperr.Authorization, grouperr.ReasonUserBlocked,
			"user %d is blocked from group %d", userID, groupID)
	}
	member, err := s.members.Exists(ctx, groupID, userID)
	if err != nil {
		return res, err
	}
	if member {
		return res, grouperr.New(grouperr.AlreadyMember, grouperr.ReasonAlreadyMember,
			"user %d is already a member of group %d", userID, groupID)
	}

	gt, err := svcutil.GroupType(ctx, s.types, g)
	if err != nil {
		return res, err
	}
	if !grouppolicy.AllowsJoin(gt.JoinStrategy, grouppolicy.JoinByQuestions) {
		return res, grouperr.New(grouperr.Authorization, grouperr.ReasonQuestionJoinNotAllowed,
			"join strategy %s does not admit question answers", gt.JoinStrategy)
	}

	for _, q := range qs {
		if acceptable(q, answers[q.ID]) {
			res.Score += q.Score
			res.MatchedQuestionIDs = append(res.MatchedQuestionIDs, q.ID)
		}
	}
	if res.Score < g.MinimumScore {
		return res, nil
	}

	ctx, rec := svcutil.Track(ctx)
	err = s.runTx(ctx, func(ctx context.Context) error {
		_, err := s.members.Add(ctx, groupID, membershipstore.NewMember{UserID: userID, Role: models.RoleMember})
		return err
	})
	if err != nil {
		return res, svcutil.MemberErr(err)
	}
	res.Joined = true
	res.VersionErr = rec.Err()
	res.AffectedUserIDs = s.moderators(ctx, groupID)

	s.log.Info("joined by answering questions",
		zap.Int64("group_id", groupID), zap.Int64("user_id", userID), zap.Int("score", res.Score))
	return res, nil
}

func acceptable(q models.GroupJoinQuestion, answer string) bool {
	for _, a := range q.Answers {
		if a == answer {
			return true
		}
	}
	return false
}

func questionErr(err error, id int64) error {
	if errors.Is(err, questionstore.ErrNotFound) {
		return grouperr.Wrap(err, grouperr.NotFound, grouperr.ReasonQuestionNotFound, "join question not found")
	}
	return err
}
