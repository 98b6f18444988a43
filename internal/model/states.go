package model

// Response state strings shared across command handlers, per §7's error
// taxonomy. Command-specific states that have no cross-handler reuse are
// grouped at the end of this block under the command that emits them.
const (
	StateSuccess = "Success"

	// Validation errors.
	StateEmailInvalid         = "EmailInvalid"
	StatePasswordFormatError  = "PasswordFormatError"
	StateUserNameFormatError  = "UserNameFormatError"
	StateContentError         = "ContentError"
	StateLengthLimitExceeded  = "LengthLimitExceeded"
	StateCodeMismatch         = "CodeMismatch"

	// Authorization errors.
	StateNotOwner      = "NotOwner"
	StateNotAdmin      = "NotAdmin"
	StateNoPermission  = "NoPermission"
	StateNotFriend     = "NotFriend"
	StateUserNotInChat = "UserNotInChat"
	StateNotHandler    = "NotHandler"
	StateSameUser      = "SameUser"

	// Request lifecycle.
	StateNotGroupChat = "NotGroupChat"

	// State conflicts.
	StateAlreadyInGroup   = "AlreadyInGroup"
	StateAlreadyBeFriends = "AlreadyBeFriends"
	StateRequestExisted   = "RequestExisted"
	StateAlreadySolved    = "AlreadySolved"
	StateUserLogged       = "UserLogged"
	StateHasApproved      = "HasApproved"
	StateAnswerUnsolved   = "AnswerUnsolved"
	StateEmailTaken       = "EmailTaken"
	StatePasswordMismatch = "PasswordMismatch"
	StateTokenMismatch    = "TokenMismatch"
	StateTokenExpired     = "TokenExpired"

	// Not-found errors.
	StateUserNotFound      = "UserNotFound"
	StateChatNotFound      = "ChatNotFound"
	StateMessageNotExisted = "MessageNotExisted"
	StateRequestNotFound   = "RequestNotFound"
	StateFileNotExisted    = "FileNotExisted"
	StateObjectNotFound    = "ObjectNotFound"

	// Infrastructure failures.
	StateDatabaseError   = "DatabaseError"
	StateServerError     = "ServerError"
	StateOSSError        = "OSSError"
	StateSendNoticeError = "SendNoticeError"

	// UploadFileRequest-specific.
	StateExisted = "Existed"
	StateApprove = "Approve"

	// RevokeMessage-specific.
	StatePermissionsDenied = "PermissionsDenied"

	// LogOff-specific.
	StateOwnsGroup = "OwnsGroup"
)

// Admin system messages. The literal Chinese text is part of the wire
// contract: existing clients match on it verbatim.
const (
	AdminMsgGroupCreated  = "建立群聊成功"
	AdminMsgBecameFriends = "你们成为好友力，开始聊天吧"
)

// AdminMsgJoinedGroup announces a member joining via an approved
// JoinGroup request.
func AdminMsgJoinedGroup(userName string) string {
	return userName + "加入群聊"
}

// AdminMsgInvitedJoinedGroup announces a member joining via an approved
// invitation chain (a GroupInvitation from an admin approved by the
// invitee, or the resulting InvitedJoinGroup approved by an admin).
func AdminMsgInvitedJoinedGroup(inviterName, userName string) string {
	return "群成员" + inviterName + "邀请用户" + userName + "加入群聊"
}

// AdminMsgQuitGroup announces a member leaving voluntarily.
func AdminMsgQuitGroup(userName string) string {
	return userName + "退出群聊"
}

// AdminMsgRemovedFromGroup announces an admin removing a member.
func AdminMsgRemovedFromGroup(userName, adminName string) string {
	return userName + "被" + adminName + "移出群聊"
}
