package request

import (
	"context"

	"github.com/Francis-Rockwell/dmail-server/internal/model"
	"github.com/Francis-Rockwell/dmail-server/internal/storage"
)

// OnSend registers the in-flight marker appropriate to req's kind so a
// second identical request is rejected as RequestExisted.
func OnSend(ctx context.Context, s *storage.Store, req *model.Request) error {
	switch req.Content.Kind {
	case model.RequestMakeFriend:
		return s.MarkFriendPending(ctx, req.SenderID, req.Content.ReceiverID)
	case model.RequestJoinGroup:
		return s.MarkPendingJoin(ctx, req.SenderID, req.Content.ChatID)
	case model.RequestGroupInvitation:
		return s.MarkGroupInvitation(ctx, req.Content.ReceiverID, req.Content.ChatID)
	case model.RequestInvitedJoinGroup:
		return nil
	}
	return nil
}

// OnRefuse clears whatever in-flight marker OnSend registered.
func OnRefuse(ctx context.Context, s *storage.Store, req *model.Request) error {
	switch req.Content.Kind {
	case model.RequestMakeFriend:
		return s.ClearFriendPending(ctx, req.SenderID, req.Content.ReceiverID)
	case model.RequestJoinGroup:
		return s.ClearPendingJoin(ctx, req.SenderID, req.Content.ChatID)
	case model.RequestGroupInvitation:
		return s.ClearGroupInvitation(ctx, req.Content.ReceiverID, req.Content.ChatID)
	case model.RequestInvitedJoinGroup:
		return nil
	}
	return nil
}

// ApproveResult describes the side effect OnApprove actually performed,
// so the command layer can compute its fan-out.
type ApproveResult struct {
	// AlreadyInChat is set when the target user turned out to already
	// be a chat member; the add was skipped.
	AlreadyInChat bool
	// NewChatID is populated for an approved MakeFriend.
	NewChatID uint64
	// Added is true when a membership add actually happened.
	Added bool
	// ChainedRequest is populated when an approved GroupInvitation from a
	// non-admin inviter produces a new InvitedJoinGroup request instead
	// of adding the member directly.
	ChainedRequest *model.Request
}

// OnApprove executes the chat mutation for an approved request.
func OnApprove(ctx context.Context, s *storage.Store, req *model.Request) (*ApproveResult, error) {
	switch req.Content.Kind {
	case model.RequestMakeFriend:
		cid, err := s.MakeFriends(ctx, req.SenderID, req.Content.ReceiverID)
		if err != nil {
			return nil, err
		}
		return &ApproveResult{NewChatID: cid}, nil

	case model.RequestJoinGroup:
		return addMemberOrSkip(ctx, s, req.Content.ChatID, req.SenderID, func() error {
			return s.ClearPendingJoin(ctx, req.SenderID, req.Content.ChatID)
		})

	case model.RequestGroupInvitation:
		admins, err := s.Admins(ctx, req.Content.ChatID)
		if err != nil {
			return nil, err
		}
		if contains(admins, req.SenderID) {
			res, err := addMemberOrSkip(ctx, s, req.Content.ChatID, req.Content.ReceiverID, func() error {
				return s.ClearGroupInvitation(ctx, req.Content.ReceiverID, req.Content.ChatID)
			})
			return res, err
		}

		if err := s.ClearGroupInvitation(ctx, req.Content.ReceiverID, req.Content.ChatID); err != nil {
			return nil, err
		}
		chained := &model.Request{
			SenderID: req.Content.ReceiverID,
			Message:  req.Message,
			Content: model.RequestContent{
				Kind:      model.RequestInvitedJoinGroup,
				InviterID: req.SenderID,
				ChatID:    req.Content.ChatID,
			},
		}
		handlers, err := s.Admins(ctx, req.Content.ChatID)
		if err != nil {
			return nil, err
		}
		stored, err := s.WriteRequest(ctx, chained.SenderID, chained.Message, chained.Content, handlers)
		if err != nil {
			return nil, err
		}
		return &ApproveResult{ChainedRequest: stored}, nil

	case model.RequestInvitedJoinGroup:
		return addMemberOrSkip(ctx, s, req.Content.ChatID, req.SenderID, func() error { return nil })
	}
	return &ApproveResult{}, nil
}

func addMemberOrSkip(ctx context.Context, s *storage.Store, chatID uint64, userID uint32, onAdded func() error) (*ApproveResult, error) {
	members, err := s.Members(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if contains(members, userID) {
		return &ApproveResult{AlreadyInChat: true}, nil
	}
	if err := s.AddMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if err := onAdded(); err != nil {
		return nil, err
	}
	return &ApproveResult{Added: true}, nil
}
