package grouperr

// Reasons attached to Authorization, Validation and NotFound errors.
const (
	ReasonNotOwner                 = "not_owner"
	ReasonNotOwnerOrManager        = "not_owner_or_manager"
	ReasonNotMember                = "not_member"
	ReasonNotInviter               = "not_inviter"
	ReasonNotRequester             = "not_requester"
	ReasonNotInvitee               = "not_invitee"
	ReasonUserBlocked              = "user_blocked"
	ReasonAlreadyMember            = "already_member"
	ReasonInvitationNotAllowed     = "invitation_strategy_forbids"
	ReasonApprovalNotRequired      = "strategy_does_not_require_approval"
	ReasonApprovalRequired         = "strategy_requires_approval"
	ReasonDirectJoinNotAllowed     = "join_strategy_forbids_direct_join"
	ReasonJoinRequestNotAllowed    = "join_strategy_forbids_request"
	ReasonQuestionJoinNotAllowed   = "join_strategy_forbids_questions"
	ReasonUpdateNotAllowed         = "update_strategy_forbids"
	ReasonOwnerCannotQuit          = "owner_must_transfer_before_quit"
	ReasonCannotTargetSelf         = "cannot_target_self"
	ReasonCannotTargetOwner        = "cannot_target_owner"
	ReasonGroupInactive            = "group_inactive"
	ReasonGroupFull                = "group_full"
	ReasonContentTooLong           = "content_too_long"
	ReasonInvalidInput             = "invalid_input"
	ReasonInvalidAction            = "invalid_action"
	ReasonInvalidID                = "invalid_id"
	ReasonInvalidVersion           = "invalid_version"
	ReasonUnknownResource          = "unknown_resource"
	ReasonForeignUserScope         = "foreign_user_scope"
	ReasonQuestionsFromOtherGroups = "questions_from_multiple_groups"
	ReasonGroupNotFound            = "group_not_found"
	ReasonGroupTypeNotFound        = "group_type_not_found"
	ReasonRequestNotFound          = "request_not_found"
	ReasonQuestionNotFound         = "question_not_found"
	ReasonOwnerNotFound            = "owner_not_found"
	ReasonTypeNotCreatable         = "group_type_not_creatable"
	ReasonOwnedGroupLimit          = "owned_group_limit"
	ReasonOwnedGroupTypeLimit      = "owned_group_type_limit"
	ReasonRetriesExhausted         = "retries_exhausted"
	ReasonManagerCannotPromote     = "manager_cannot_assign_roles"
)
