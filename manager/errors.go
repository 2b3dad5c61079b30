package manager

import "errors"

var (
	// ErrUnknownConversation 未知会话 ID
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("manager is shut down")
)
