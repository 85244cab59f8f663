package errs

// 错误码分段：
// 1xxx 通用；2xxx 外部 provider；3xxx 权限/限额；5xxx 服务内部。
const (
	ArgsError           = 1001 // 参数/配置非法
	RecordNotFoundError = 1002 // 记录不存在
	DuplicateKeyError   = 1003 // 唯一键冲突（正常 upsert 不会抛出）

	ProviderTransientError = 2001 // provider 瞬时错误：超时/限流/5xx，可重试单步
	ProviderAuthError      = 2002 // provider 授权失效，需要重新授权
	ProviderGoneError      = 2003 // provider 资源已删除

	NoPermissionError   = 3001 // 非本人资源
	ContactLimitError   = 3002 // 会话被套餐限额遮蔽，拒绝操作
	ChatReadOnlyError   = 3003 // 只读会话
	SendRejectedError   = 3004 // provider 拒绝发送

	ServerInternalError = 5000
)

// 预定义哨兵错误，调用方用 errors.Is 判断。
var (
	ErrArgs           = NewCodeError(ArgsError, "invalid argument")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "record not found")
	ErrDuplicateKey   = NewCodeError(DuplicateKeyError, "duplicate key")

	ErrProviderTransient = NewCodeError(ProviderTransientError, "provider transient error")
	ErrProviderAuth      = NewCodeError(ProviderAuthError, "provider authorization revoked")
	ErrProviderGone      = NewCodeError(ProviderGoneError, "provider resource gone")

	ErrNoPermission = NewCodeError(NoPermissionError, "no permission")
	ErrContactLimit = NewCodeError(ContactLimitError, "contact limit reached")
	ErrChatReadOnly = NewCodeError(ChatReadOnlyError, "chat is read only")
	ErrSendRejected = NewCodeError(SendRejectedError, "provider rejected send")

	ErrInternal = NewCodeError(ServerInternalError, "internal error")
)
