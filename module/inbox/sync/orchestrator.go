package sync

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"LinkProject/config"
	"LinkProject/logger"
	"LinkProject/module/inbox/classify"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	"LinkProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubjectAccountSynced 历史同步完成后的广播 subject。
const SubjectAccountSynced = "inbox.account.synced"

// Orchestrator 同步编排器。配置构造时注入，核心逻辑不读任何环境状态。
// 同一账号可安全重跑：所有写入都是按自然键的幂等 upsert，进度只作报告用。
type Orchestrator struct {
	Cfg      config.SyncLimits
	Flags    config.Flags
	Provider provider.API
	Stores   Stores
	Notify   Notifier // 可为 nil
}

func NewOrchestrator(cfg config.Sync, api provider.API, stores Stores, notify Notifier) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		Cfg:      cfg.Limits,
		Flags:    cfg.Flags,
		Provider: api,
		Stores:   stores,
		Notify:   notify,
	}, nil
}

// RunHistorical 对一个账号做整库历史同步：翻页拉会话，每个会话拉参与者和
// 消息，受 MaxChats / MaxMessagesPerChat 封顶。单条失败记日志跳过，
// provider 级失败把账号置为 error 并返回。跑完广播 account.synced。
func (o *Orchestrator) RunHistorical(ctx context.Context, accountID primitive.ObjectID) error {
	acct, err := o.Stores.Accounts.FindByID(ctx, accountID, model.VisibleActive)
	if err != nil {
		return err
	}
	ref := provider.AccountRef{AccountExternalID: acct.ExternalID, Token: acct.Token}

	progress := model.SyncProgress{Step: model.SyncStepChats, StartedAt: time.Now()}
	if err := o.Stores.Accounts.SetStatus(ctx, acct.ID, model.AccountStatusSyncing, ""); err != nil {
		return err
	}
	_ = o.Stores.Accounts.UpdateProgress(ctx, acct.ID, progress)

	cursor := ""
	for progress.ChatsProcessed < o.Cfg.MaxChats {
		pageSize := o.Cfg.PageSize
		if rest := o.Cfg.MaxChats - progress.ChatsProcessed; pageSize > rest {
			pageSize = rest
		}
		page, err := o.Provider.ListChats(ctx, ref, cursor, pageSize)
		if err != nil {
			// provider 级失败：账号置 error，本轮终止。重跑从头扫，
			// 幂等写入保证不会产生重复数据。
			_ = o.Stores.Accounts.SetStatus(ctx, acct.ID, model.AccountStatusError, err.Error())
			return err
		}
		for _, item := range page.Items {
			if err := o.syncChat(ctx, acct, ref, item, &progress); err != nil {
				// 单个会话失败不拖垮整批
				logger.Warnf("sync chat %s skipped: %v", item.ID, err)
			}
			progress.ChatsProcessed++
			_ = o.Stores.Accounts.UpdateProgress(ctx, acct.ID, progress)
		}
		if page.Cursor == "" || len(page.Items) == 0 {
			break
		}
		cursor = page.Cursor
	}

	progress.Step = model.SyncStepDone
	_ = o.Stores.Accounts.UpdateProgress(ctx, acct.ID, progress)
	if err := o.Stores.Accounts.SetStatus(ctx, acct.ID, model.AccountStatusConnected, ""); err != nil {
		return err
	}
	o.notifySynced(ctx, acct, progress)
	return nil
}

func (o *Orchestrator) notifySynced(ctx context.Context, acct *model.Account, p model.SyncProgress) {
	if o.Notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"account_id":    acct.ID.Hex(),
		"owner_user_id": acct.OwnerUserID,
		"chats":         p.ChatsProcessed,
		"messages":      p.MessagesProcessed,
	})
	if err := o.Notify.Publish(ctx, SubjectAccountSynced, payload, map[string]string{
		"Nats-Msg-Id": "synced-" + acct.ID.Hex() + "-" + ids.GenerateString(),
	}); err != nil {
		logger.Warnf("publish %s failed: %v", SubjectAccountSynced, err)
	}
}

func (o *Orchestrator) syncChat(ctx context.Context, acct *model.Account, ref provider.AccountRef, item provider.ChatItem, progress *model.SyncProgress) error {
	if !o.Flags.IncludeCompanyMessages && classify.IsCompanyChat(item.SenderID, item.AttendeeIDs) {
		logger.Debugf("chat %s classified as company traffic, skipped", item.ID)
		return nil
	}

	chat, err := o.Stores.Chats.Upsert(ctx, acct.ID, acct.OwnerUserID, item.ID, store.ChatPatch{
		Provider:      &acct.Provider,
		Type:          &item.Type,
		Name:          &item.Name,
		LastMessageAt: &item.LastMessageAt,
		UnreadCount:   &item.UnreadCount,
		ReadOnly:      &item.ReadOnly,
	})
	if err != nil {
		return err
	}

	o.syncAttendees(ctx, acct, ref, chat, progress)
	return o.syncMessages(ctx, acct, ref, chat, progress)
}

// syncAttendees 参与者 + 联系人解析。失败只降级，不影响消息摄取。
func (o *Orchestrator) syncAttendees(ctx context.Context, acct *model.Account, ref provider.AccountRef, chat *model.Chat, progress *model.SyncProgress) {
	items, err := o.Provider.ListAttendees(ctx, ref, chat.ExternalID)
	if err != nil {
		logger.Warnf("list attendees of chat %s failed: %v", chat.ExternalID, err)
		return
	}
	for _, it := range items {
		patch := store.AttendeePatch{
			IsSelf:      &it.IsSelf,
			Hidden:      &it.Hidden,
			DisplayName: &it.Name,
			ProfileURL:  &it.ProfileURL,
			PictureURL:  &it.PictureURL,
		}
		if !it.IsSelf {
			if contact := o.resolveContact(ctx, acct, ref, it); contact != nil {
				patch.ContactID = &contact.ID
			}
		}
		if _, err := o.Stores.Attendees.Upsert(ctx, chat.ID, acct.ID, it.ID, patch); err != nil {
			logger.Warnf("upsert attendee %s failed: %v", it.ID, err)
			continue
		}
		progress.AttendeesProcessed++
	}
}

// resolveContact 参与者 → 联系人行。档案补全按开关走 GetProfile，
// 拉不到就用参与者自带的字段，从不因此报错。
func (o *Orchestrator) resolveContact(ctx context.Context, acct *model.Account, ref provider.AccountRef, it provider.AttendeeItem) *model.Contact {
	first, last := splitName(it.Name)
	patch := store.ContactPatch{
		FirstName:  &first,
		LastName:   &last,
		PictureURL: &it.PictureURL,
		ProfileURL: &it.ProfileURL,
	}
	if o.Flags.EnableProfileEnrichment {
		if p, err := o.Provider.GetProfile(ctx, ref, it.ID); err != nil {
			logger.Debugf("profile enrichment for %s failed: %v", it.ID, err)
		} else {
			patch.FirstName = &p.FirstName
			patch.LastName = &p.LastName
			patch.Headline = &p.Headline
			patch.Occupation = &p.Occupation
			patch.Location = &p.Location
			patch.NetworkDistance = &p.NetworkDistance
			patch.Info = &model.ContactInfo{Emails: p.Emails, Phones: p.Phones, Socials: p.Socials}
			if p.PictureURL != "" {
				patch.PictureURL = &p.PictureURL
			}
			if p.ProfileURL != "" {
				patch.ProfileURL = &p.ProfileURL
			}
		}
	}
	contact, err := o.Stores.Contacts.Upsert(ctx, acct.ID, acct.OwnerUserID, it.ID, patch)
	if err != nil {
		logger.Warnf("upsert contact %s failed: %v", it.ID, err)
		return nil
	}
	return contact
}

func (o *Orchestrator) syncMessages(ctx context.Context, acct *model.Account, ref provider.AccountRef, chat *model.Chat, progress *model.SyncProgress) error {
	progress.Step = model.SyncStepMessages
	cursor := ""
	got := 0
	for got < o.Cfg.MaxMessagesPerChat {
		batch := o.Cfg.MessageBatchSize
		if rest := o.Cfg.MaxMessagesPerChat - got; batch > rest {
			batch = rest
		}
		page, err := o.Provider.ListMessages(ctx, ref, chat.ExternalID, cursor, batch)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if !o.Flags.IncludeCompanyMessages && classify.IsCompanyID(item.SenderID) {
				continue
			}
			if err := o.ingestMessage(ctx, acct, chat, item, false); err != nil {
				logger.Warnf("ingest message %s skipped: %v", item.ID, err)
			}
			got++
			progress.MessagesProcessed++
		}
		_ = o.Stores.Accounts.UpdateProgress(ctx, acct.ID, *progress)
		if page.Cursor == "" || len(page.Items) == 0 {
			break
		}
		cursor = page.Cursor
	}
	return nil
}

// ingestMessage 单条消息落库，webhook 和历史同步共用。
// bumpUnread 只有 webhook 实时来信才置 true；历史同步的未读数
// 以会话条目自带的计数为准，不在这里累加。
func (o *Orchestrator) ingestMessage(ctx context.Context, acct *model.Account, chat *model.Chat, item provider.MessageItem, bumpUnread bool) error {
	direction := model.DirectionIncoming
	if item.IsSender {
		direction = model.DirectionOutgoing
	}

	// 发出消息回流：先尝试并入本地占位行（见 MessageDAO.ReconcileLocal）
	if item.IsSender && !ids.IsLocalMessageID(item.ID) {
		merged, err := o.Stores.Messages.ReconcileLocal(ctx, acct.ID, chat.ID, item.ID, item.Body, item.SentAt)
		if err != nil {
			return err
		}
		if merged {
			return nil
		}
	}

	isLocal := ids.IsLocalMessageID(item.ID)
	msg, err := o.Stores.Messages.Upsert(ctx, acct.ID, chat.ID, item.ID, store.MessagePatch{
		Direction:        &direction,
		Type:             &item.Type,
		Body:             &item.Body,
		SentAt:           &item.SentAt,
		Seen:             &item.Seen,
		Delivered:        &item.Delivered,
		Edited:           &item.Edited,
		Deleted:          &item.Deleted,
		SenderExternalID: &item.SenderID,
		IsLocal:          &isLocal,
	})
	if err != nil {
		return err
	}

	for _, att := range item.Attachments {
		if _, err := o.Stores.Attachments.Upsert(ctx, msg.ID, acct.ID, att.ID, store.AttachmentPatch{
			Mime:                 &att.Mime,
			Filename:             &att.Filename,
			Size:                 &att.Size,
			InlineData:           &att.InlineData,
			ProviderURL:          &att.URL,
			ProviderURLExpiresAt: &att.URLExpiresAt,
			Media: &model.AttachmentMedia{
				Width:       att.Width,
				Height:      att.Height,
				DurationSec: att.DurationSec,
				IsSticker:   att.IsSticker,
				IsGif:       att.IsGif,
				IsVoice:     att.IsVoice,
			},
		}); err != nil {
			// 附件引用丢了不阻塞消息
			logger.Warnf("upsert attachment %s failed: %v", att.ID, err)
		}
	}

	if direction == model.DirectionIncoming && item.SenderID != "" {
		if _, err := o.Stores.Contacts.Upsert(ctx, acct.ID, acct.OwnerUserID, item.SenderID, store.ContactPatch{
			InteractionAt: &item.SentAt,
		}); err != nil {
			logger.Debugf("touch contact %s failed: %v", item.SenderID, err)
		}
	}

	delta := 0
	if bumpUnread && direction == model.DirectionIncoming {
		delta = 1
	}
	return o.Stores.Chats.TouchLastMessage(ctx, chat.ID, item.SentAt, delta)
}

// splitName 参与者只有整名时拆 first/last，兜底全放 first。
func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
