package sync

import (
	"context"
	"time"

	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	"LinkProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 内存版存储替身，按自然键模拟 mongo upsert 的合并语义。

type memDB struct {
	accounts    map[primitive.ObjectID]*model.Account
	chats       map[string]*model.Chat       // accountHex|externalID
	messages    map[string]*model.Message    // accountHex|externalID
	attendees   map[string]*model.Attendee   // chatHex|externalID
	contacts    map[string]*model.Contact    // accountHex|externalID
	attachments map[string]*model.Attachment // messageHex|externalID
	views       map[string]time.Time         // owner|viewer
	reactions   map[string][]model.Reaction  // accountHex|externalID
}

func newMemDB() *memDB {
	return &memDB{
		accounts:    map[primitive.ObjectID]*model.Account{},
		chats:       map[string]*model.Chat{},
		messages:    map[string]*model.Message{},
		attendees:   map[string]*model.Attendee{},
		contacts:    map[string]*model.Contact{},
		attachments: map[string]*model.Attachment{},
		views:       map[string]time.Time{},
		reactions:   map[string][]model.Reaction{},
	}
}

func memStores(db *memDB) Stores {
	return Stores{
		Accounts:     &memAccounts{db},
		Chats:        &memChats{db},
		Attendees:    &memAttendees{db},
		Contacts:     &memContacts{db},
		Messages:     &memMessages{db},
		Attachments:  &memAttachments{db},
		ProfileViews: &memViews{db},
	}
}

func key(a, b string) string { return a + "|" + b }

type memAccounts struct{ db *memDB }

func (m *memAccounts) Upsert(_ context.Context, owner, prov, externalID string) (*model.Account, error) {
	for _, a := range m.db.accounts {
		if a.OwnerUserID == owner && a.Provider == prov && a.ExternalID == externalID {
			return a, nil
		}
	}
	a := &model.Account{
		ID: primitive.NewObjectID(), OwnerUserID: owner, Provider: prov,
		ExternalID: externalID, Status: model.AccountStatusConnected, State: model.StateActive,
	}
	m.db.accounts[a.ID] = a
	return a, nil
}

func (m *memAccounts) FindByID(_ context.Context, id primitive.ObjectID, vis model.Visibility) (*model.Account, error) {
	a, ok := m.db.accounts[id]
	if !ok || (vis == model.VisibleActive && a.State == model.StateDeleted) {
		return nil, errs.ErrRecordNotFound.WrapMsg("account not found")
	}
	return a, nil
}

func (m *memAccounts) SetStatus(_ context.Context, id primitive.ObjectID, status, lastErr string) error {
	a, ok := m.db.accounts[id]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("account not found")
	}
	a.Status = status
	if lastErr != "" {
		a.Progress.LastError = lastErr
	}
	return nil
}

func (m *memAccounts) SetToken(_ context.Context, id primitive.ObjectID, token string) error {
	if a, ok := m.db.accounts[id]; ok {
		a.Token = token
	}
	return nil
}

func (m *memAccounts) UpdateProgress(_ context.Context, id primitive.ObjectID, p model.SyncProgress) error {
	if a, ok := m.db.accounts[id]; ok {
		a.Progress = p
	}
	return nil
}

func (m *memAccounts) SoftDelete(_ context.Context, id primitive.ObjectID) error {
	if a, ok := m.db.accounts[id]; ok {
		a.State = model.StateDeleted
		a.Status = model.AccountStatusDisconnected
	}
	return nil
}

type memChats struct{ db *memDB }

func (m *memChats) Upsert(_ context.Context, accountID primitive.ObjectID, owner, externalID string, patch store.ChatPatch) (*model.Chat, error) {
	k := key(accountID.Hex(), externalID)
	c, ok := m.db.chats[k]
	if !ok {
		c = &model.Chat{
			ID: primitive.NewObjectID(), AccountID: accountID,
			OwnerUserID: owner, ExternalID: externalID, State: model.StateActive,
		}
		m.db.chats[k] = c
	}
	if patch.Provider != nil {
		c.Provider = *patch.Provider
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.LastMessageAt != nil {
		c.LastMessageAt = *patch.LastMessageAt
	}
	if patch.UnreadCount != nil {
		c.UnreadCount = *patch.UnreadCount
	}
	if patch.ReadOnly != nil {
		c.ReadOnly = *patch.ReadOnly
	}
	return c, nil
}

func (m *memChats) FindByID(_ context.Context, id primitive.ObjectID, _ model.Visibility) (*model.Chat, error) {
	for _, c := range m.db.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("chat not found")
}

func (m *memChats) FindByExternalID(_ context.Context, accountID primitive.ObjectID, externalID string) (*model.Chat, error) {
	if c, ok := m.db.chats[key(accountID.Hex(), externalID)]; ok {
		return c, nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("chat not found")
}

func (m *memChats) TouchLastMessage(_ context.Context, id primitive.ObjectID, at time.Time, delta int) error {
	for _, c := range m.db.chats {
		if c.ID == id {
			if at.After(c.LastMessageAt) {
				c.LastMessageAt = at
			}
			c.UnreadCount += delta
			return nil
		}
	}
	return errs.ErrRecordNotFound.WrapMsg("chat not found")
}

func (m *memChats) MarkRead(_ context.Context, id primitive.ObjectID) error {
	for _, c := range m.db.chats {
		if c.ID == id {
			c.UnreadCount = 0
			return nil
		}
	}
	return nil
}

type memAttendees struct{ db *memDB }

func (m *memAttendees) Upsert(_ context.Context, chatID, accountID primitive.ObjectID, externalID string, patch store.AttendeePatch) (*model.Attendee, error) {
	k := key(chatID.Hex(), externalID)
	a, ok := m.db.attendees[k]
	if !ok {
		a = &model.Attendee{ID: primitive.NewObjectID(), ChatID: chatID, AccountID: accountID, ExternalID: externalID}
		m.db.attendees[k] = a
	}
	if patch.IsSelf != nil {
		a.IsSelf = *patch.IsSelf
	}
	if patch.DisplayName != nil {
		a.DisplayName = *patch.DisplayName
	}
	if patch.ContactID != nil {
		a.ContactID = patch.ContactID
	}
	return a, nil
}

func (m *memAttendees) FindPrimary(_ context.Context, chatID primitive.ObjectID) (*model.Attendee, error) {
	for _, a := range m.db.attendees {
		if a.ChatID == chatID && !a.IsSelf {
			return a, nil
		}
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("no primary attendee")
}

type memContacts struct{ db *memDB }

func (m *memContacts) Upsert(_ context.Context, accountID primitive.ObjectID, owner, externalID string, patch store.ContactPatch) (*model.Contact, error) {
	k := key(accountID.Hex(), externalID)
	c, ok := m.db.contacts[k]
	if !ok {
		c = &model.Contact{ID: primitive.NewObjectID(), AccountID: accountID, OwnerUserID: owner, ExternalID: externalID}
		m.db.contacts[k] = c
	}
	if patch.FirstName != nil {
		c.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		c.LastName = *patch.LastName
	}
	if patch.InteractionAt != nil && patch.InteractionAt.After(c.LastInteractionAt) {
		c.LastInteractionAt = *patch.InteractionAt
	}
	return c, nil
}

type memMessages struct{ db *memDB }

func (m *memMessages) Upsert(_ context.Context, accountID, chatID primitive.ObjectID, externalID string, patch store.MessagePatch) (*model.Message, error) {
	k := key(accountID.Hex(), externalID)
	msg, ok := m.db.messages[k]
	if !ok {
		msg = &model.Message{ID: primitive.NewObjectID(), AccountID: accountID, ChatID: chatID, ExternalID: externalID}
		m.db.messages[k] = msg
	}
	if patch.Direction != nil {
		msg.Direction = *patch.Direction
	}
	if patch.Body != nil {
		msg.Body = *patch.Body
	}
	if patch.SentAt != nil {
		msg.SentAt = *patch.SentAt
	}
	if patch.Edited != nil {
		msg.Edited = *patch.Edited
	}
	if patch.Deleted != nil {
		msg.Deleted = *patch.Deleted
	}
	if patch.SenderExternalID != nil {
		msg.SenderExternalID = *patch.SenderExternalID
	}
	if patch.IsLocal != nil {
		msg.IsLocal = *patch.IsLocal
	}
	return msg, nil
}

func (m *memMessages) FindByExternalID(_ context.Context, accountID primitive.ObjectID, externalID string) (*model.Message, error) {
	if msg, ok := m.db.messages[key(accountID.Hex(), externalID)]; ok {
		return msg, nil
	}
	return nil, errs.ErrRecordNotFound.WrapMsg("message not found")
}

func (m *memMessages) ReconcileLocal(_ context.Context, accountID, chatID primitive.ObjectID, providerID, body string, sentAt time.Time) (bool, error) {
	for k, msg := range m.db.messages {
		if msg.AccountID != accountID || msg.ChatID != chatID || !msg.IsLocal ||
			msg.Direction != model.DirectionOutgoing || msg.Body != body {
			continue
		}
		d := msg.SentAt.Sub(sentAt)
		if d < 0 {
			d = -d
		}
		if d > 90*time.Second {
			continue
		}
		pk := key(accountID.Hex(), providerID)
		if _, exists := m.db.messages[pk]; exists {
			delete(m.db.messages, k) // provider 行已在，占位行是重复
			return true, nil
		}
		delete(m.db.messages, k)
		msg.ExternalID = providerID
		msg.IsLocal = false
		msg.SentAt = sentAt
		m.db.messages[pk] = msg
		return true, nil
	}
	return false, nil
}

func (m *memMessages) AddReaction(_ context.Context, accountID primitive.ObjectID, externalID string, r model.Reaction) error {
	k := key(accountID.Hex(), externalID)
	for _, have := range m.db.reactions[k] {
		if have == r {
			return nil
		}
	}
	m.db.reactions[k] = append(m.db.reactions[k], r)
	return nil
}

type memAttachments struct{ db *memDB }

func (m *memAttachments) Upsert(_ context.Context, messageID, accountID primitive.ObjectID, externalID string, patch store.AttachmentPatch) (*model.Attachment, error) {
	k := key(messageID.Hex(), externalID)
	a, ok := m.db.attachments[k]
	if !ok {
		a = &model.Attachment{ID: primitive.NewObjectID(), MessageID: messageID, AccountID: accountID, ExternalID: externalID}
		m.db.attachments[k] = a
	}
	if patch.ProviderURL != nil {
		a.ProviderURL = *patch.ProviderURL
	}
	if patch.InlineData != nil {
		a.InlineData = *patch.InlineData
	}
	return a, nil
}

type memViews struct{ db *memDB }

func (m *memViews) Upsert(_ context.Context, owner, viewer string, viewedAt time.Time) error {
	k := key(owner, viewer)
	if old, ok := m.db.views[k]; !ok || viewedAt.After(old) {
		m.db.views[k] = viewedAt
	}
	return nil
}

// fakeAPI 可编程的 provider 替身。翻页用单页模拟：一次吐完，Cursor 为空。
type fakeAPI struct {
	chats     []provider.ChatItem
	messages  map[string][]provider.MessageItem  // chat external id → 消息
	attendees map[string][]provider.AttendeeItem // chat external id → 参与者

	listChatsErr error
	sendResult   *provider.SendResult
	sendErr      error

	sendCalls  int
	patchCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages:  map[string][]provider.MessageItem{},
		attendees: map[string][]provider.AttendeeItem{},
	}
}

func (f *fakeAPI) ListChats(_ context.Context, _ provider.AccountRef, _ string, limit int) (*provider.ChatPage, error) {
	if f.listChatsErr != nil {
		return nil, f.listChatsErr
	}
	items := f.chats
	if len(items) > limit {
		items = items[:limit]
	}
	return &provider.ChatPage{Items: items}, nil
}

func (f *fakeAPI) ListMessages(_ context.Context, _ provider.AccountRef, chatID, _ string, limit int) (*provider.MessagePage, error) {
	items := f.messages[chatID]
	if len(items) > limit {
		items = items[:limit]
	}
	return &provider.MessagePage{Items: items}, nil
}

func (f *fakeAPI) ListAttendees(_ context.Context, _ provider.AccountRef, chatID string) ([]provider.AttendeeItem, error) {
	return f.attendees[chatID], nil
}

func (f *fakeAPI) GetProfile(_ context.Context, _ provider.AccountRef, personID string) (*provider.Profile, error) {
	return &provider.Profile{ID: personID, FirstName: "Enriched", LastName: "Profile"}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, _ provider.AccountRef, _, _ string, _ []provider.AttachmentItem) (*provider.SendResult, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return &provider.SendResult{Status: "sent"}, nil
}

func (f *fakeAPI) PatchChat(_ context.Context, _ provider.AccountRef, _ string, _ provider.PatchAction) (*provider.PatchResult, error) {
	f.patchCalls++
	return &provider.PatchResult{Success: true}, nil
}

func (f *fakeAPI) DownloadAttachment(context.Context, provider.AccountRef, string) ([]byte, error) {
	return nil, errs.ErrProviderGone.WrapMsg("not in fake")
}

// fakeChecker 固定答案的遮蔽复查替身。
type fakeChecker struct{ obfuscated bool }

func (f *fakeChecker) IsChatObfuscated(context.Context, string, primitive.ObjectID) (bool, error) {
	return f.obfuscated, nil
}

// fakeNotifier 记录广播。
type fakeNotifier struct{ subjects []string }

func (f *fakeNotifier) Publish(_ context.Context, subject string, _ []byte, _ map[string]string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func seededAccount(db *memDB) *model.Account {
	a := &model.Account{
		ID: primitive.NewObjectID(), OwnerUserID: "user-1", Provider: "linkedin",
		ExternalID: "acct-ext-1", Token: "tok", Status: model.AccountStatusConnected,
		State: model.StateActive,
	}
	db.accounts[a.ID] = a
	return a
}
