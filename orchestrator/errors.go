package orchestrator

import "errors"

var (
	// ErrTooFewRoles Engine 需要至少两个角色
	ErrTooFewRoles = errors.New("at least two roles are required")

	// ErrNilCapability 角色缺少语音能力绑定
	ErrNilCapability = errors.New("role has no speak capability bound")

	// ErrAlreadyStarted Start 只能调用一次
	ErrAlreadyStarted = errors.New("conversation already started")

	// ErrNotStarted 会话尚未启动
	ErrNotStarted = errors.New("conversation not started")
)
