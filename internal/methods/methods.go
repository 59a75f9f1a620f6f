// Package methods is the static (version, name) table of every API method.
// Each version lists only what it adds, redefines or retires; rpc.Registry
// resolves everything else from older versions.
package methods

import (
	"mrsh/internal/constants"
	"mrsh/internal/rpc"
	"mrsh/internal/service"
)

type handlers struct {
	svc *service.Service
}

// NewRegistry builds the method table served by svc.
func NewRegistry(svc *service.Service) (*rpc.Registry, error) {
	return rpc.NewRegistry(Versions(svc)...)
}

// Versions returns the method table oldest version first.
func Versions(svc *service.Service) []rpc.Version {
	h := &handlers{svc: svc}
	return []rpc.Version{
		{Name: constants.Version001, Methods: []*rpc.Method{
			rpc.DeprecatedMethod("register_user"),
			rpc.DeprecatedMethod("create_chat"),
			rpc.DeprecatedMethod("send_message"),
		}},
		{Name: constants.Version002, Methods: []*rpc.Method{
			h.registerUser(),
			h.loginUser(),
			h.verifyEmail(),
			h.denyVerification(),
			h.getChats(service.ChatListOptions{}),
			h.getChatByPeer(),
			rpc.DeprecatedMethod("create_chat"),
		}},
		{Name: constants.Version003, Methods: []*rpc.Method{
			h.createChat(),
			h.addFriend(),
			h.removeFriend(),
			h.getFriends(),
			h.inviteToChat(),
			h.sendMessageID(),
			h.markAsRead(),
			h.getUser(),
		}},
		{Name: constants.Version004, Methods: []*rpc.Method{
			h.sendMessage(),
			h.resendVerification(),
			h.getChats(service.ChatListOptions{ByLastMessage: true}),
			h.getChatHistory(false),
		}},
		{Name: constants.Version005, Methods: []*rpc.Method{
			h.changeProfilePicture(),
			h.setSettings(),
			h.changeChatImage(),
			h.getChat(),
			h.getChats(service.ChatListOptions{ByLastMessage: true, WithLastRead: true}),
			h.getChatHistory(true),
		}},
		{Name: constants.Version006, Methods: []*rpc.Method{
			h.leaveChat(),
			h.logoutUser(),
		}},
	}
}
