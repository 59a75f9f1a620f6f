package methods

import (
	"context"

	"mrsh/internal/apierr"
	"mrsh/internal/constants"
	"mrsh/internal/models"
	"mrsh/internal/params"
	"mrsh/internal/rpc"
	"mrsh/internal/service"
)

func (h *handlers) peer() rpc.Param {
	return params.ChatRef("peer_id", h.svc)
}

func pageParams(maxCount int) []rpc.Param {
	return []rpc.Param{
		params.NonNegInt("offset", 0),
		params.NonNegInt("count", maxCount),
		params.Bool("antichronological"),
	}
}

func page(v rpc.Values) service.Page {
	def := service.DefaultPage()
	return service.Page{
		Count:             v.Int("count", def.Count),
		Offset:            v.Int("offset", def.Offset),
		Antichronological: v.Bool("antichronological", def.Antichronological),
	}
}

func (h *handlers) getChats(opts service.ChatListOptions) *rpc.Method {
	return &rpc.Method{
		Name: "get_chats",
		Auth: true,
		Handle: func(ctx context.Context, call *rpc.Call, _ rpc.Values) (any, error) {
			chats, err := h.svc.ListChats(ctx, call.UserID(), opts)
			if err != nil {
				return nil, err
			}
			return map[string]any{"results": chats}, nil
		},
	}
}

// getChatByPeer is the original get_chat: a chat the caller belongs to with
// its members and a page of messages.
func (h *handlers) getChatByPeer() *rpc.Method {
	return &rpc.Method{
		Name:     "get_chat",
		Auth:     true,
		Params:   []rpc.Param{h.peer()},
		Optional: pageParams(constants.MaxChatMessageCount),
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return h.chatWithMessages(ctx, call, v.Chat("peer_id"), v, true, false)
		},
	}
}

// getChat also accepts user_id, naming the private chat with that user, and
// adds the caller's read watermark.
func (h *handlers) getChat() *rpc.Method {
	return &rpc.Method{
		Name: "get_chat",
		Auth: true,
		Optional: append([]rpc.Param{
			h.peer(),
			params.UserRef("user_id", h.svc, nil),
		}, pageParams(constants.MaxChatMessageCount)...),
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			chat := v.Chat("peer_id")
			if chat == nil {
				peer := v.User("user_id")
				if peer == nil {
					return nil, apierr.MissingArgument("peer_id or user_id should be present.")
				}
				var err error
				if chat, err = h.svc.PrivateChat(ctx, call.UserID(), peer); err != nil {
					return nil, err
				}
			}
			return h.chatWithMessages(ctx, call, chat, v, true, true)
		},
	}
}

func (h *handlers) getChatHistory(withLastRead bool) *rpc.Method {
	return &rpc.Method{
		Name:     "get_chat_history",
		Auth:     true,
		Params:   []rpc.Param{h.peer()},
		Optional: pageParams(constants.MaxHistoryCount),
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return h.chatWithMessages(ctx, call, v.Chat("peer_id"), v, false, withLastRead)
		},
	}
}

func (h *handlers) chatWithMessages(ctx context.Context, call *rpc.Call, chat *models.Chat, v rpc.Values, withMembers, withLastRead bool) (any, error) {
	details, err := h.svc.Details(ctx, chat, call.UserID(), withMembers, withLastRead)
	if err != nil {
		return nil, err
	}
	messages, err := h.svc.History(ctx, chat, page(v))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"chat":     details,
		"messages": messages,
	}, nil
}

func (h *handlers) createChat() *rpc.Method {
	return &rpc.Method{
		Name:   "create_chat",
		Auth:   true,
		Params: []rpc.Param{params.Text("title", constants.MaxTitleLength)},
		Optional: []rpc.Param{
			params.SetOf[int64]("user_ids", params.UserID("user_ids", h.svc, h.svc)),
			params.Bool("private"),
		},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			chat, err := h.svc.CreateChat(ctx, call.User, v.String("title"), v.IDs("user_ids"), v.Bool("private", false))
			if err != nil {
				return nil, err
			}
			return map[string]any{"chat": chat}, nil
		},
	}
}

func (h *handlers) inviteToChat() *rpc.Method {
	return &rpc.Method{
		Name: "invite_to_chat",
		Auth: true,
		Params: []rpc.Param{
			h.peer(),
			params.UserRef("user_id", h.svc, h.svc),
		},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return nil, h.svc.InviteToChat(ctx, call.User, v.Chat("peer_id"), v.User("user_id"))
		},
	}
}

func (h *handlers) leaveChat() *rpc.Method {
	return &rpc.Method{
		Name:   "leave_chat",
		Auth:   true,
		Params: []rpc.Param{h.peer()},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return nil, h.svc.LeaveChat(ctx, call.User, v.Chat("peer_id"))
		},
	}
}

func messageParams(h *handlers) []rpc.Param {
	return []rpc.Param{
		h.peer(),
		params.Text("message", constants.MaxMessageLength),
	}
}

// sendMessageID answers with the new message's id only.
func (h *handlers) sendMessageID() *rpc.Method {
	return &rpc.Method{
		Name:   "send_message",
		Auth:   true,
		Params: messageParams(h),
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			msg, err := h.svc.SendMessage(ctx, call.User, v.Chat("peer_id"), v.String("message"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"message_id": msg.ID}, nil
		},
	}
}

func (h *handlers) sendMessage() *rpc.Method {
	return &rpc.Method{
		Name:   "send_message",
		Auth:   true,
		Params: messageParams(h),
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			msg, err := h.svc.SendMessage(ctx, call.User, v.Chat("peer_id"), v.String("message"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"message": msg}, nil
		},
	}
}

func (h *handlers) markAsRead() *rpc.Method {
	return &rpc.Method{
		Name:   "mark_as_read",
		Auth:   true,
		Params: []rpc.Param{params.MessageRef("message_id", h.svc)},
		Handle: func(ctx context.Context, call *rpc.Call, v rpc.Values) (any, error) {
			return nil, h.svc.MarkAsRead(ctx, call.User, v.Message("message_id"))
		},
	}
}

func (h *handlers) changeChatImage() *rpc.Method {
	return &rpc.Method{
		Name: "change_chat_image",
		Auth: true,
		Params: []rpc.Param{
			h.peer(),
			params.Image("file"),
		},
		Handle: func(ctx context.Context, _ *rpc.Call, v rpc.Values) (any, error) {
			url, err := h.svc.ChangeChatImage(ctx, v.Chat("peer_id"), v.Image("file"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"url": url}, nil
		},
	}
}
