package config

import (
	"LinkProject/tools/errs"
)

// SyncLimits 同步步长与上限。核心逻辑只接收该值，不读环境变量。
type SyncLimits struct {
	MaxChats           int // 历史同步最多扫描的会话数
	PageSize           int // 每次向 provider 拉取的页大小，必须 <= MaxChats
	MaxMessagesPerChat int // 每个会话最多拉取的消息数
	MessageBatchSize   int // 消息分页大小，必须 <= MaxMessagesPerChat
}

// Flags 功能开关。
type Flags struct {
	EnableDetailedLogging   bool
	EnableProfileEnrichment bool // 是否通过 GetProfile 异步补全联系人档案
	IncludeCompanyMessages  bool // 是否把机构号会话也落库
}

// Sync 注入到编排器/限额引擎的完整配置值。
type Sync struct {
	Limits SyncLimits
	Flags  Flags
}

// 环境档位。页大小一旦超过对应上限，游标永远吃不完，会在编排器里造成
// 无限翻页，所以 Validate 把这种配置当错误拒绝。
var (
	development = Sync{
		Limits: SyncLimits{
			MaxChats:           25,
			PageSize:           10,
			MaxMessagesPerChat: 50,
			MessageBatchSize:   25,
		},
		Flags: Flags{
			EnableDetailedLogging:   true,
			EnableProfileEnrichment: false,
			IncludeCompanyMessages:  false,
		},
	}

	production = Sync{
		Limits: SyncLimits{
			MaxChats:           500,
			PageSize:           50,
			MaxMessagesPerChat: 200,
			MessageBatchSize:   100,
		},
		Flags: Flags{
			EnableDetailedLogging:   false,
			EnableProfileEnrichment: true,
			IncludeCompanyMessages:  false,
		},
	}
)

// Profile 按环境名取配置档位，未知环境回落 development。
func Profile(env string) Sync {
	switch env {
	case "production", "prod":
		return production
	default:
		return development
	}
}

// Validate 校验配置值。非法配置在启动期失败，而不是在同步过程中死循环。
func (s Sync) Validate() error {
	l := s.Limits
	if l.MaxChats <= 0 || l.PageSize <= 0 || l.MaxMessagesPerChat <= 0 || l.MessageBatchSize <= 0 {
		return errs.ErrArgs.WrapMsg("sync limits must be positive",
			"maxChats", l.MaxChats, "pageSize", l.PageSize,
			"maxMessagesPerChat", l.MaxMessagesPerChat, "messageBatchSize", l.MessageBatchSize)
	}
	if l.PageSize > l.MaxChats {
		return errs.ErrArgs.WrapMsg("pageSize exceeds maxChats", "pageSize", l.PageSize, "maxChats", l.MaxChats)
	}
	if l.MessageBatchSize > l.MaxMessagesPerChat {
		return errs.ErrArgs.WrapMsg("messageBatchSize exceeds maxMessagesPerChat",
			"messageBatchSize", l.MessageBatchSize, "maxMessagesPerChat", l.MaxMessagesPerChat)
	}
	return nil
}
