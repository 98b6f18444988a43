package model

import "encoding/json"

// RegisterData is the Register command payload.
type RegisterData struct {
	UserName  string `json:"userName"`
	Password  string `json:"password"`
	EmailCode string `json:"emailCode"`
	Email     string `json:"email"`
}

// RegisterResponse is the Register command response.
type RegisterResponse struct {
	State  string `json:"state"`
	UserID uint32 `json:"userId,omitempty"`
}

// LoginData is the Login command payload; exactly one of EmailCode,
// Password, or Token should be populated, in that priority order.
type LoginData struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	EmailCode string `json:"emailCode,omitempty"`
	Token     string `json:"token,omitempty"`
}

// LoginResponse is the Login command response.
type LoginResponse struct {
	State  string `json:"state"`
	UserID uint32 `json:"userId,omitempty"`
	Token  string `json:"token,omitempty"`
}

// PullData is the Pull command payload, issued once right after login.
type PullData struct {
	LastRequestID   uint64 `json:"lastRequestId"`
	NoticeTimestamp int64  `json:"noticeTimestamp"`
}

// PullResponse is the terminal frame of a Pull sequence.
type PullResponse struct {
	State string `json:"state"`
}

// SendMessageData is the SendMessage command payload.
type SendMessageData struct {
	Type              MessageType `json:"type"`
	ClientID          uint64      `json:"clientId"`
	ChatID            uint64      `json:"chatId"`
	Timestamp         int64       `json:"timestamp"`
	SerializedContent string      `json:"serializedContent"`
}

// SendMessageResponse is the SendMessage command response.
type SendMessageResponse struct {
	State     string `json:"state"`
	ClientID  uint64 `json:"clientId"`
	ChatID    uint64 `json:"chatId"`
	InChatID  uint64 `json:"inChatId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SendRequestData is the SendRequest command payload.
type SendRequestData struct {
	Message  string         `json:"message"`
	Content  RequestContent `json:"content"`
	ClientID uint64         `json:"clientId"`
}

// SendRequestResponse is the SendRequest command response.
type SendRequestResponse struct {
	State    string `json:"state"`
	ReqID    uint64 `json:"reqId,omitempty"`
	ClientID uint64 `json:"clientId"`
}

// Answer is the caller's decision in SolveRequest.
type Answer string

const (
	AnswerApproved Answer = "Approved"
	AnswerRefused  Answer = "Refused"
)

// SolveRequestData is the SolveRequest command payload.
type SolveRequestData struct {
	ReqID  uint64 `json:"reqId"`
	Answer Answer `json:"answer"`
}

// SolveRequestResponse is the SolveRequest command response.
type SolveRequestResponse struct {
	State string `json:"state"`
}

// GetUserInfoData is the GetUserInfo command payload.
type GetUserInfoData struct {
	UserID uint32 `json:"userId"`
}

// GetUserInfoResponse is the GetUserInfo command response.
type GetUserInfoResponse struct {
	State      string `json:"state"`
	UserID     uint32 `json:"userId,omitempty"`
	UserName   string `json:"userName,omitempty"`
	AvatarHash string `json:"avaterHash,omitempty"`
}

// GetChatInfoData is the GetChatInfo command payload.
type GetChatInfoData struct {
	ChatID uint64 `json:"chatId"`
}

// GetChatInfoResponse is the GetChatInfo command response.
type GetChatInfoResponse struct {
	State  string    `json:"state"`
	ChatID uint64    `json:"chatId,omitempty"`
	Group  bool      `json:"group"`
	Info   GroupInfo `json:"info,omitempty"`
}

// GetGroupUsersData is the GetGroupUsers command payload.
type GetGroupUsersData struct {
	ChatID uint64 `json:"chatId"`
}

// GetGroupUsersResponse is the GetGroupUsers command response.
type GetGroupUsersResponse struct {
	State   string   `json:"state"`
	UserIDs []uint32 `json:"userIds,omitempty"`
}

// GetFileUrlData is the GetFileUrl command payload.
type GetFileUrlData struct {
	Hash string `json:"hash"`
}

// GetFileUrlResponse is the GetFileUrl command response.
type GetFileUrlResponse struct {
	State string `json:"state"`
	URL   string `json:"url,omitempty"`
}

// GetMessagesData is the GetMessages command payload. ToInChatID of 0
// means "up to the configured get-limit from FromInChatID".
type GetMessagesData struct {
	ChatID       uint64 `json:"chatId"`
	FromInChatID uint64 `json:"fromInChatId"`
	ToInChatID   uint64 `json:"toInChatId,omitempty"`
}

// GetMessagesResponse is the GetMessages command response.
type GetMessagesResponse struct {
	State    string        `json:"state"`
	Messages []ChatMessage `json:"messages,omitempty"`
}

// CreateGroupChatData is the CreateGroupChat command payload.
type CreateGroupChatData struct {
	Name       string `json:"name"`
	AvatarHash string `json:"avaterHash"`
}

// CreateGroupChatResponse is the CreateGroupChat command response.
type CreateGroupChatResponse struct {
	State  string `json:"state"`
	ChatID uint64 `json:"chatId,omitempty"`
}

// UnfriendData is the Unfriend command payload.
type UnfriendData struct {
	UserID uint32 `json:"userId"`
}

// UnfriendResponse is the Unfriend command response.
type UnfriendResponse struct {
	State string `json:"state"`
}

// QuitGroupChatData is the QuitGroupChat command payload.
type QuitGroupChatData struct {
	ChatID uint64 `json:"chatId"`
}

// QuitGroupChatResponse is the QuitGroupChat command response.
type QuitGroupChatResponse struct {
	State string `json:"state"`
}

// SetUserSettingData carries an opaque client-settings blob; the server
// only stores and echoes it back on Pull, it never interprets contents.
type SetUserSettingData struct {
	Setting json.RawMessage `json:"setting"`
}

// SetUserSettingResponse is the SetUserSetting command response.
type SetUserSettingResponse struct {
	State string `json:"state"`
}

// SetAlreadyReadData is the SetAlreadyRead command payload.
type SetAlreadyReadData struct {
	ChatID   uint64 `json:"chatId"`
	InChatID uint64 `json:"inChatId"`
	Private  bool   `json:"private"`
}

// SetAlreadyReadResponse is the SetAlreadyRead command response.
type SetAlreadyReadResponse struct {
	State string `json:"state"`
}

// UploadFileRequestData is the UploadFileRequest command payload.
type UploadFileRequestData struct {
	Hash   string `json:"hash"`
	Size   int64  `json:"size"`
	Suffix string `json:"suffix"`
}

// UploadFileRequestResponse is the UploadFileRequest command response.
type UploadFileRequestResponse struct {
	State    string `json:"state"`
	URL      string `json:"url,omitempty"`
	UploadID string `json:"uploadId,omitempty"`
}

// FileUploadedData is the FileUploaded command payload.
type FileUploadedData struct {
	UploadID string `json:"uploadId"`
}

// FileUploadedResponse is the FileUploaded command response.
type FileUploadedResponse struct {
	State string `json:"state"`
	URL   string `json:"url,omitempty"`
}

// SetGroupAdminData is shared by SetGroupAdmin/UnsetGroupAdmin.
type SetGroupAdminData struct {
	ChatID uint64 `json:"chatId"`
	UserID uint32 `json:"userId"`
}

// SetGroupAdminResponse covers SetGroupAdmin/UnsetGroupAdmin/GroupOwnerTransfer/RemoveGroupMember.
type SetGroupAdminResponse struct {
	State string `json:"state"`
}

// GroupOwnerTransferData is the GroupOwnerTransfer command payload.
type GroupOwnerTransferData struct {
	ChatID uint64 `json:"chatId"`
	UserID uint32 `json:"userId"`
}

// SendGroupNoticeData is the SendGroupNotice command payload.
type SendGroupNoticeData struct {
	ChatID  uint64 `json:"chatId"`
	Content string `json:"content"`
}

// SendGroupNoticeResponse is the SendGroupNotice command response.
type SendGroupNoticeResponse struct {
	State string `json:"state"`
}

// PullGroupNoticeData is the PullGroupNotice command payload.
type PullGroupNoticeData struct {
	ChatID uint64 `json:"chatId"`
}

// PullGroupNoticeResponse is the PullGroupNotice command response.
type PullGroupNoticeResponse struct {
	State   string `json:"state"`
	Content string `json:"content,omitempty"`
}

// RemoveGroupMemberData is the RemoveGroupMember command payload.
type RemoveGroupMemberData struct {
	ChatID uint64 `json:"chatId"`
	UserID uint32 `json:"userId"`
}

// UpdateUserInfoData is a tagged union: exactly one of UserName,
// Password (+EmailCode), or AvatarHash is populated.
type UpdateUserInfoData struct {
	UserName   string `json:"userName,omitempty"`
	Password   string `json:"password,omitempty"`
	EmailCode  string `json:"emailCode,omitempty"`
	AvatarHash string `json:"avaterHash,omitempty"`
}

// UpdateUserInfoResponse is the UpdateUserInfo command response.
type UpdateUserInfoResponse struct {
	State string `json:"state"`
}

// UpdateGroupInfoData is the UpdateGroupInfo command payload.
type UpdateGroupInfoData struct {
	ChatID     uint64 `json:"chatId"`
	Name       string `json:"name,omitempty"`
	AvatarHash string `json:"avaterHash,omitempty"`
}

// UpdateGroupInfoResponse is the UpdateGroupInfo command response.
type UpdateGroupInfoResponse struct {
	State string `json:"state"`
}

// RevokeMethod is the authorization path used for RevokeMessage.
type RevokeMethod string

const (
	RevokeBySender     RevokeMethod = "Sender"
	RevokeByGroupAdmin RevokeMethod = "GroupAdmin"
	RevokeByGroupOwner RevokeMethod = "GroupOwner"
)

// RevokeMessageData is the RevokeMessage command payload.
type RevokeMessageData struct {
	ChatID   uint64       `json:"chatId"`
	InChatID uint64       `json:"inChatId"`
	Method   RevokeMethod `json:"method"`
}

// RevokeMessageResponse is the RevokeMessage command response.
type RevokeMessageResponse struct {
	State string `json:"state"`
}

// GetGroupOwnerData is shared by GetGroupOwner/GetGroupAdmin.
type GetGroupOwnerData struct {
	ChatID uint64 `json:"chatId"`
}

// GetGroupOwnerResponse is the GetGroupOwner command response.
type GetGroupOwnerResponse struct {
	State  string `json:"state"`
	UserID uint32 `json:"userId,omitempty"`
}

// GetGroupAdminResponse is the GetGroupAdmin command response.
type GetGroupAdminResponse struct {
	State   string   `json:"state"`
	UserIDs []uint32 `json:"userIds,omitempty"`
}

// MediaSignalData is the shared envelope shape for the four MediaCall*
// signaling commands: the server never interprets SDP/candidate, only
// routes by FriendID/TargetID and substitutes the sender on forward.
type MediaSignalData struct {
	FriendID uint32          `json:"friendId,omitempty"`
	TargetID uint32          `json:"targetId,omitempty"`
	SenderID uint32          `json:"senderId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// GetUserIDData is the GetUserID command payload.
type GetUserIDData struct {
	Name string `json:"name"`
}

// GetUserIDResponse is the GetUserID command response.
type GetUserIDResponse struct {
	State   string   `json:"state"`
	UserIDs []uint32 `json:"userIds,omitempty"`
}

// GetUserReadInGroupData is the GetUserReadInGroup command payload.
type GetUserReadInGroupData struct {
	ChatID  uint64 `json:"chatId"`
	AtLeast uint64 `json:"atLeast"`
}

// GetUserReadInGroupResponse is the GetUserReadInGroup command response.
type GetUserReadInGroupResponse struct {
	State   string   `json:"state"`
	UserIDs []uint32 `json:"userIds,omitempty"`
}

// GetUserReadInPrivateData is the GetUserReadInPrivate command payload.
type GetUserReadInPrivateData struct {
	ChatID uint64 `json:"chatId"`
}

// GetUserReadInPrivateResponse is the GetUserReadInPrivate command response.
type GetUserReadInPrivateResponse struct {
	State    string `json:"state"`
	InChatID uint64 `json:"inChatId,omitempty"`
}

// ApplyForTokenResponse is the ApplyForToken command response.
type ApplyForTokenResponse struct {
	State    string `json:"state"`
	Token    string `json:"token,omitempty"`
	IssuedAt int64  `json:"issuedAt,omitempty"`
}

// LogOffData is the LogOff command payload.
type LogOffData struct {
	EmailCode string `json:"emailCode"`
}

// LogOffResponse is the LogOff command response.
type LogOffResponse struct {
	State string `json:"state"`
}
