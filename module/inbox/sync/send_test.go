package sync

import (
	"context"
	"errors"
	"testing"

	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/module/inbox/store"
	"LinkProject/tools/errs"
	"LinkProject/tools/ids"
)

func seededChat(db *memDB, acct *model.Account, readOnly bool) *model.Chat {
	c, _ := (&memChats{db}).Upsert(context.Background(), acct.ID, acct.OwnerUserID, "chat-1",
		store.ChatPatch{ReadOnly: &readOnly})
	return c
}

func TestSendToObfuscatedChatRejected(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	api := newFakeAPI()
	s := NewSender(api, memStores(db), &fakeChecker{obfuscated: true})

	_, err := s.SendMessage(context.Background(), acct.OwnerUserID, chat.ID, "hello", nil)
	if !errors.Is(err, errs.ErrContactLimit) {
		t.Fatalf("want contact-limit rejection, got %v", err)
	}
	if api.sendCalls != 0 {
		t.Error("rejected send must not reach the provider")
	}
}

func TestSendNotOwnerRejected(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	api := newFakeAPI()
	s := NewSender(api, memStores(db), &fakeChecker{})

	_, err := s.SendMessage(context.Background(), "someone-else", chat.ID, "hello", nil)
	if !errors.Is(err, errs.ErrNoPermission) {
		t.Fatalf("want ownership rejection, got %v", err)
	}
	if api.sendCalls != 0 {
		t.Error("rejected send must not reach the provider")
	}
}

func TestSendReadOnlyRejected(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, true)
	api := newFakeAPI()
	s := NewSender(api, memStores(db), &fakeChecker{})

	_, err := s.SendMessage(context.Background(), acct.OwnerUserID, chat.ID, "hello", nil)
	if !errors.Is(err, errs.ErrChatReadOnly) {
		t.Fatalf("want read-only rejection, got %v", err)
	}
	if api.sendCalls != 0 {
		t.Error("rejected send must not reach the provider")
	}
}

func TestSendWithProviderID(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	api := newFakeAPI()
	api.sendResult = &provider.SendResult{ProviderID: "prov-77", Status: "sent"}
	s := NewSender(api, memStores(db), &fakeChecker{})

	msg, err := s.SendMessage(context.Background(), acct.OwnerUserID, chat.ID, "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ExternalID != "prov-77" || msg.IsLocal {
		t.Errorf("provider id must be used directly: %+v", msg)
	}
}

func TestSendWithoutProviderIDThenReconcile(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	api := newFakeAPI()
	api.sendResult = &provider.SendResult{Status: "sent"} // provider 没回ID
	s := NewSender(api, memStores(db), &fakeChecker{})
	ctx := context.Background()

	msg, err := s.SendMessage(ctx, acct.OwnerUserID, chat.ID, "hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsLocal || !ids.IsLocalMessageID(msg.ExternalID) {
		t.Fatalf("want local placeholder id, got %+v", msg)
	}

	// provider ID 之后经同步回流，应并入占位行而不是再落一行
	api.chats = []provider.ChatItem{{ID: chat.ExternalID}}
	api.messages[chat.ExternalID] = []provider.MessageItem{
		{ID: "prov-88", IsSender: true, Body: "hello", SentAt: msg.SentAt},
	}
	o := newTestOrchestrator(t, api, db, testCfg(), nil)
	if err := o.RunHistorical(ctx, acct.ID); err != nil {
		t.Fatal(err)
	}

	if len(db.messages) != 1 {
		t.Fatalf("placeholder must merge with provider row, got %d rows", len(db.messages))
	}
	got, err := (&memMessages{db}).FindByExternalID(ctx, acct.ID, "prov-88")
	if err != nil {
		t.Fatal(err)
	}
	if got.IsLocal {
		t.Error("reconciled row must not stay local")
	}
}

func TestSendProviderFailureSurfaces(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	api := newFakeAPI()
	api.sendErr = errs.ErrProviderTransient.WrapMsg("timeout")
	s := NewSender(api, memStores(db), &fakeChecker{})

	_, err := s.SendMessage(context.Background(), acct.OwnerUserID, chat.ID, "hello", nil)
	if !errors.Is(err, errs.ErrSendRejected) {
		t.Fatalf("failed send must be reported as failed, got %v", err)
	}
	if len(db.messages) != 0 {
		t.Error("failed send must not leave a local row")
	}
}

func TestMarkChatRead(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	chat := seededChat(db, acct, false)
	chat.UnreadCount = 4
	api := newFakeAPI()
	s := NewSender(api, memStores(db), &fakeChecker{})

	if err := s.MarkChatRead(context.Background(), acct.OwnerUserID, chat.ID); err != nil {
		t.Fatal(err)
	}
	if api.patchCalls != 1 {
		t.Errorf("want 1 provider patch, got %d", api.patchCalls)
	}
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", chat.UnreadCount)
	}
}
