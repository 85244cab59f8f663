package sync

import (
	"context"
	"time"

	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 编排器消费的存储能力面，按 store 各 DAO 的签名声明，测试用替身实现。

type AccountStore interface {
	Upsert(ctx context.Context, ownerUserID, provider, externalID string) (*model.Account, error)
	FindByID(ctx context.Context, id primitive.ObjectID, vis model.Visibility) (*model.Account, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status, lastErr string) error
	SetToken(ctx context.Context, id primitive.ObjectID, token string) error
	UpdateProgress(ctx context.Context, id primitive.ObjectID, p model.SyncProgress) error
	SoftDelete(ctx context.Context, id primitive.ObjectID) error
}

type ChatStore interface {
	Upsert(ctx context.Context, accountID primitive.ObjectID, ownerUserID, externalID string, patch store.ChatPatch) (*model.Chat, error)
	FindByID(ctx context.Context, id primitive.ObjectID, vis model.Visibility) (*model.Chat, error)
	FindByExternalID(ctx context.Context, accountID primitive.ObjectID, externalID string) (*model.Chat, error)
	TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time, incomingDelta int) error
	MarkRead(ctx context.Context, id primitive.ObjectID) error
}

type AttendeeStore interface {
	Upsert(ctx context.Context, chatID, accountID primitive.ObjectID, externalID string, patch store.AttendeePatch) (*model.Attendee, error)
	FindPrimary(ctx context.Context, chatID primitive.ObjectID) (*model.Attendee, error)
}

type ContactStore interface {
	Upsert(ctx context.Context, accountID primitive.ObjectID, ownerUserID, externalID string, patch store.ContactPatch) (*model.Contact, error)
}

type MessageStore interface {
	Upsert(ctx context.Context, accountID, chatID primitive.ObjectID, externalID string, patch store.MessagePatch) (*model.Message, error)
	FindByExternalID(ctx context.Context, accountID primitive.ObjectID, externalID string) (*model.Message, error)
	ReconcileLocal(ctx context.Context, accountID, chatID primitive.ObjectID, providerID, body string, sentAt time.Time) (bool, error)
	AddReaction(ctx context.Context, accountID primitive.ObjectID, externalID string, r model.Reaction) error
}

type AttachmentStore interface {
	Upsert(ctx context.Context, messageID, accountID primitive.ObjectID, externalID string, patch store.AttachmentPatch) (*model.Attachment, error)
}

type ProfileViewStore interface {
	Upsert(ctx context.Context, ownerUserID, viewerExternalID string, viewedAt time.Time) error
}

// Stores 编排器/事件应用器共享的存储句柄集。
type Stores struct {
	Accounts     AccountStore
	Chats        ChatStore
	Attendees    AttendeeStore
	Contacts     ContactStore
	Messages     MessageStore
	Attachments  AttachmentStore
	ProfileViews ProfileViewStore
}

// StoresFrom 把 mongo DAO 聚合适配成能力面。
func StoresFrom(s *store.Store) Stores {
	return Stores{
		Accounts:     s.Accounts,
		Chats:        s.Chats,
		Attendees:    s.Attendees,
		Contacts:     s.Contacts,
		Messages:     s.Messages,
		Attachments:  s.Attachments,
		ProfileViews: s.ProfileViews,
	}
}

// Notifier 同步完成后的事件广播（natsx 生产端实现）。
type Notifier interface {
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
}

// ObfuscationChecker 变更路径的遮蔽复查（limit 引擎实现）。
type ObfuscationChecker interface {
	IsChatObfuscated(ctx context.Context, ownerUserID string, chatID primitive.ObjectID) (bool, error)
}
