package sync

import (
	"context"
	"time"

	"LinkProject/logger"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	"LinkProject/tools/errs"
	"LinkProject/tools/ids"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sender 用户侧变更路径：发消息、标记已读。
// 所有校验都在碰 provider 之前完成，被限额遮蔽的会话一次 provider 调用都不发生。
type Sender struct {
	Provider provider.API
	Stores   Stores
	Limit    ObfuscationChecker
}

func NewSender(api provider.API, stores Stores, limit ObfuscationChecker) *Sender {
	return &Sender{Provider: api, Stores: stores, Limit: limit}
}

// guardChat 归属 → 遮蔽复查。两类拒绝都是同步返回的稳定错误码。
func (s *Sender) guardChat(ctx context.Context, ownerUserID string, chatID primitive.ObjectID) (*model.Chat, *model.Account, error) {
	chat, err := s.Stores.Chats.FindByID(ctx, chatID, model.VisibleActive)
	if err != nil {
		return nil, nil, err
	}
	if chat.OwnerUserID != ownerUserID {
		return nil, nil, errs.ErrNoPermission.WrapMsg("chat not owned by caller", "chatID", chatID.Hex())
	}
	obfuscated, err := s.Limit.IsChatObfuscated(ctx, ownerUserID, chat.ID)
	if err != nil {
		return nil, nil, err
	}
	if obfuscated {
		return nil, nil, errs.ErrContactLimit.WrapMsg("chat obfuscated by contact limit", "chatID", chatID.Hex())
	}
	acct, err := s.Stores.Accounts.FindByID(ctx, chat.AccountID, model.VisibleActive)
	if err != nil {
		return nil, nil, err
	}
	return chat, acct, nil
}

// SendMessage 发一条消息并本地先行落库。
// provider 回了ID直接用；没回就生成 local_ 占位ID，之后同步回流时由
// ReconcileLocal 并入。发送失败如实返回；发送成功后本地落库失败只记
// 日志，不把成功的发送报成失败。
func (s *Sender) SendMessage(ctx context.Context, ownerUserID string, chatID primitive.ObjectID, body string, attachments []provider.AttachmentItem) (*model.Message, error) {
	if body == "" && len(attachments) == 0 {
		return nil, errs.ErrArgs.WrapMsg("empty message")
	}
	chat, acct, err := s.guardChat(ctx, ownerUserID, chatID)
	if err != nil {
		return nil, err
	}
	if chat.ReadOnly {
		return nil, errs.ErrChatReadOnly.WrapMsg("chat is read only", "chatID", chatID.Hex())
	}

	ref := provider.AccountRef{AccountExternalID: acct.ExternalID, Token: acct.Token}
	res, err := s.Provider.SendMessage(ctx, ref, chat.ExternalID, body, attachments)
	if err != nil {
		return nil, errs.ErrSendRejected.WrapMsg("provider send failed", "chatID", chat.ExternalID, "err", err)
	}

	externalID := res.ProviderID
	isLocal := false
	if externalID == "" {
		externalID = ids.LocalMessageID()
		isLocal = true
	}
	now := time.Now()
	direction := model.DirectionOutgoing
	msg, err := s.Stores.Messages.Upsert(ctx, acct.ID, chat.ID, externalID, store.MessagePatch{
		Direction: &direction,
		Body:      &body,
		SentAt:    &now,
		IsLocal:   &isLocal,
	})
	if err != nil {
		// 发送已经成功，本地记录尽力而为
		logger.Warnf("send succeeded but local record failed, chat=%s: %v", chat.ExternalID, err)
		return &model.Message{
			AccountID:  acct.ID,
			ChatID:     chat.ID,
			ExternalID: externalID,
			Direction:  direction,
			Body:       body,
			SentAt:     now,
			IsLocal:    isLocal,
		}, nil
	}
	if err := s.Stores.Chats.TouchLastMessage(ctx, chat.ID, now, 0); err != nil {
		logger.Debugf("touch chat %s failed: %v", chat.ExternalID, err)
	}
	return msg, nil
}

// MarkChatRead 标记会话已读：provider 侧 patch 成功后本地未读清零。
func (s *Sender) MarkChatRead(ctx context.Context, ownerUserID string, chatID primitive.ObjectID) error {
	chat, acct, err := s.guardChat(ctx, ownerUserID, chatID)
	if err != nil {
		return err
	}
	ref := provider.AccountRef{AccountExternalID: acct.ExternalID, Token: acct.Token}
	if _, err := s.Provider.PatchChat(ctx, ref, chat.ExternalID, provider.PatchMarkRead); err != nil {
		return err
	}
	return s.Stores.Chats.MarkRead(ctx, chat.ID)
}
