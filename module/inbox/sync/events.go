package sync

import (
	"context"
	"encoding/json"
	"time"

	"LinkProject/logger"
	"LinkProject/module/inbox/classify"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	"LinkProject/service/natsx"
	"LinkProject/tools/decode"
	"LinkProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// provider 推送的事件类型
const (
	EvtMessageReceived     = "message.received"
	EvtMessageEdited       = "message.edited"
	EvtMessageDeleted      = "message.deleted"
	EvtMessageReaction     = "message.reaction"
	EvtChatRead            = "chat.read"
	EvtAccountStatus       = "account.status"
	EvtProfileView         = "profile.view"
	EvtAccountConnected    = "account.connected"
	EvtAccountDisconnected = "account.disconnected"
)

// 事件ID去重窗口。provider 会重推，窗口内同ID只应用一次。
const eventDedupTTL = 24 * time.Hour

// Envelope webhook 事件信封。payload 是动态负载，进核心逻辑前
// 先经 tools/decode 转成对应事件类型的显式结构。
type Envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	AccountID string         `json:"account_id"` // 本系统的账号ID（hex）
	Payload   map[string]any `json:"payload"`
}

// 各事件类型的显式负载。时间戳统一毫秒，provider 不推 RFC3339。
type messageEvent struct {
	ChatID      string            `json:"chat_id"`
	MessageID   string            `json:"message_id"`
	SenderID    string            `json:"sender_id"`
	IsSender    bool              `json:"is_sender"`
	Type        string            `json:"type"`
	Body        string            `json:"body"`
	SentAtMS    int64             `json:"sent_at_ms"`
	Attachments []attachmentEvent `json:"attachments"`
}

type attachmentEvent struct {
	ID             string `json:"id"`
	Mime           string `json:"mime"`
	Filename       string `json:"filename"`
	Size           int64  `json:"size"`
	URL            string `json:"url"`
	URLExpiresAtMS int64  `json:"url_expires_at_ms"`
	InlineData     string `json:"inline_data"`
}

type reactionEvent struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Emoji     string `json:"emoji"`
}

type chatReadEvent struct {
	ChatID string `json:"chat_id"`
}

type accountStatusEvent struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type profileViewEvent struct {
	ViewerID   string `json:"viewer_id"`
	ViewedAtMS int64  `json:"viewed_at_ms"`
}

type accountConnectedEvent struct {
	OwnerUserID string `json:"owner_user_id"`
	Provider    string `json:"provider"`
	ExternalID  string `json:"external_id"`
	Token       string `json:"token"`
}

// EventApplier 增量摄取：一条 webhook 事件对应恰好一次 upsert 或状态流转。
// 与历史同步走同一套幂等写入，两条路径重复投递同一实体自然收敛。
type EventApplier struct {
	Orch *Orchestrator
	Idem natsx.IdemStore // 可为 nil，nil 时不去重
}

func NewEventApplier(orch *Orchestrator, idem natsx.IdemStore) *EventApplier {
	return &EventApplier{Orch: orch, Idem: idem}
}

// Apply 应用一条原始事件。未知类型告警后跳过，不算错误；
// 已知类型应用失败返回错误由消费侧决定重投。
func (a *EventApplier) Apply(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errs.ErrArgs.WrapMsg("bad event json", "err", err)
	}
	if env.Type == "" {
		return errs.ErrArgs.WrapMsg("event missing type")
	}
	if a.Idem != nil && env.ID != "" {
		seen, err := a.Idem.SeenOnce("evt:"+env.ID, eventDedupTTL)
		if err != nil {
			logger.Warnf("event dedup store unavailable: %v", err)
		} else if seen {
			logger.Debugf("event %s already applied, skipped", env.ID)
			return nil
		}
	}

	// account.connected 在账号行存在之前到达，单独处理
	if env.Type == EvtAccountConnected {
		return a.applyAccountConnected(ctx, env)
	}

	accountID, err := primitive.ObjectIDFromHex(env.AccountID)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad account id in event", "accountID", env.AccountID)
	}
	acct, err := a.Orch.Stores.Accounts.FindByID(ctx, accountID, model.VisibleAny)
	if err != nil {
		return err
	}

	switch env.Type {
	case EvtMessageReceived:
		return a.applyMessage(ctx, acct, env)
	case EvtMessageEdited:
		return a.applyMessageEdit(ctx, acct, env, false)
	case EvtMessageDeleted:
		return a.applyMessageEdit(ctx, acct, env, true)
	case EvtMessageReaction:
		return a.applyReaction(ctx, acct, env)
	case EvtChatRead:
		return a.applyChatRead(ctx, acct, env)
	case EvtAccountStatus:
		return a.applyAccountStatus(ctx, acct, env)
	case EvtProfileView:
		return a.applyProfileView(ctx, acct, env)
	case EvtAccountDisconnected:
		return a.Orch.Stores.Accounts.SoftDelete(ctx, acct.ID)
	default:
		logger.Warnf("unknown event type %q, skipped", env.Type)
		return nil
	}
}

func (a *EventApplier) applyMessage(ctx context.Context, acct *model.Account, env Envelope) error {
	ev, err := decode.DecodeMap[messageEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad message payload", "err", err)
	}
	if !a.Orch.Flags.IncludeCompanyMessages && classify.IsCompanyID(ev.SenderID) {
		logger.Debugf("company message %s dropped at ingest", ev.MessageID)
		return nil
	}

	sentAt := time.UnixMilli(ev.SentAtMS)
	// 会话可能还没见过（webhook 先于历史同步），落一行最小会话
	chat, err := a.Orch.Stores.Chats.Upsert(ctx, acct.ID, acct.OwnerUserID, ev.ChatID, store.ChatPatch{
		Provider: &acct.Provider,
	})
	if err != nil {
		return err
	}

	item := provider.MessageItem{
		ID:       ev.MessageID,
		ChatID:   ev.ChatID,
		SenderID: ev.SenderID,
		IsSender: ev.IsSender,
		Type:     ev.Type,
		Body:     ev.Body,
		SentAt:   sentAt,
	}
	for _, att := range ev.Attachments {
		item.Attachments = append(item.Attachments, provider.AttachmentItem{
			ID:           att.ID,
			Mime:         att.Mime,
			Filename:     att.Filename,
			Size:         att.Size,
			URL:          att.URL,
			URLExpiresAt: time.UnixMilli(att.URLExpiresAtMS),
			InlineData:   att.InlineData,
		})
	}
	return a.Orch.ingestMessage(ctx, acct, chat, item, true)
}

func (a *EventApplier) applyMessageEdit(ctx context.Context, acct *model.Account, env Envelope, deleted bool) error {
	ev, err := decode.DecodeMap[messageEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad message payload", "err", err)
	}
	msg, err := a.Orch.Stores.Messages.FindByExternalID(ctx, acct.ID, ev.MessageID)
	if err != nil {
		if errs.CodeOf(err) == errs.RecordNotFoundError {
			logger.Warnf("edit/delete for unknown message %s, skipped", ev.MessageID)
			return nil
		}
		return err
	}

	patch := store.MessagePatch{}
	if deleted {
		patch.Deleted = ptrOf(true)
	} else {
		patch.Body = &ev.Body
		patch.Edited = ptrOf(true)
	}
	_, err = a.Orch.Stores.Messages.Upsert(ctx, acct.ID, msg.ChatID, msg.ExternalID, patch)
	return err
}

func (a *EventApplier) applyReaction(ctx context.Context, acct *model.Account, env Envelope) error {
	ev, err := decode.DecodeMap[reactionEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad reaction payload", "err", err)
	}
	return a.Orch.Stores.Messages.AddReaction(ctx, acct.ID, ev.MessageID, model.Reaction{
		SenderExternalID: ev.SenderID,
		Emoji:            ev.Emoji,
	})
}

func (a *EventApplier) applyChatRead(ctx context.Context, acct *model.Account, env Envelope) error {
	ev, err := decode.DecodeMap[chatReadEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad chat.read payload", "err", err)
	}
	chat, err := a.Orch.Stores.Chats.FindByExternalID(ctx, acct.ID, ev.ChatID)
	if err != nil {
		if errs.CodeOf(err) == errs.RecordNotFoundError {
			logger.Warnf("chat.read for unknown chat %s, skipped", ev.ChatID)
			return nil
		}
		return err
	}
	return a.Orch.Stores.Chats.MarkRead(ctx, chat.ID)
}

func (a *EventApplier) applyAccountStatus(ctx context.Context, acct *model.Account, env Envelope) error {
	ev, err := decode.DecodeMap[accountStatusEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad account.status payload", "err", err)
	}
	switch ev.Status {
	case model.AccountStatusConnected, model.AccountStatusSyncing,
		model.AccountStatusError, model.AccountStatusDisconnected:
		return a.Orch.Stores.Accounts.SetStatus(ctx, acct.ID, ev.Status, ev.Reason)
	default:
		logger.Warnf("unknown account status %q, skipped", ev.Status)
		return nil
	}
}

func (a *EventApplier) applyProfileView(ctx context.Context, acct *model.Account, env Envelope) error {
	ev, err := decode.DecodeMap[profileViewEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad profile.view payload", "err", err)
	}
	if ev.ViewerID == "" {
		return errs.ErrArgs.WrapMsg("profile.view missing viewer")
	}
	return a.Orch.Stores.ProfileViews.Upsert(ctx, acct.OwnerUserID, ev.ViewerID, time.UnixMilli(ev.ViewedAtMS))
}

func (a *EventApplier) applyAccountConnected(ctx context.Context, env Envelope) error {
	ev, err := decode.DecodeMap[accountConnectedEvent](env.Payload)
	if err != nil {
		return errs.ErrArgs.WrapMsg("bad account.connected payload", "err", err)
	}
	if ev.OwnerUserID == "" || ev.ExternalID == "" {
		return errs.ErrArgs.WrapMsg("account.connected missing identity fields")
	}
	acct, err := a.Orch.Stores.Accounts.Upsert(ctx, ev.OwnerUserID, ev.Provider, ev.ExternalID)
	if err != nil {
		return err
	}
	if ev.Token != "" {
		return a.Orch.Stores.Accounts.SetToken(ctx, acct.ID, ev.Token)
	}
	return nil
}

func ptrOf[T any](v T) *T { return &v }
