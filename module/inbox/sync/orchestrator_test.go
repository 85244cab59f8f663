package sync

import (
	"context"
	"testing"
	"time"

	"LinkProject/config"
	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/provider"
	"LinkProject/tools/errs"
)

func testCfg() config.Sync {
	return config.Sync{
		Limits: config.SyncLimits{
			MaxChats:           10,
			PageSize:           5,
			MaxMessagesPerChat: 10,
			MessageBatchSize:   5,
		},
	}
}

func newTestOrchestrator(t *testing.T, api *fakeAPI, db *memDB, cfg config.Sync, notify Notifier) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, api, memStores(db), notify)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestNewOrchestratorRejectsBadConfig(t *testing.T) {
	bad := testCfg()
	bad.Limits.PageSize = bad.Limits.MaxChats + 1
	if _, err := NewOrchestrator(bad, newFakeAPI(), memStores(newMemDB()), nil); err == nil {
		t.Fatal("pageSize > maxChats must be rejected at construction")
	}
}

func TestRunHistoricalIdempotent(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	api := newFakeAPI()
	api.chats = []provider.ChatItem{{ID: "chat-1", Type: "direct", Name: "Alice", LastMessageAt: time.Now()}}
	api.attendees["chat-1"] = []provider.AttendeeItem{
		{ID: "me", IsSelf: true},
		{ID: "alice", Name: "Alice Liddell"},
	}
	api.messages["chat-1"] = []provider.MessageItem{
		{ID: "m1", SenderID: "alice", Body: "hi", SentAt: time.Now().Add(-2 * time.Minute)},
		{ID: "m2", SenderID: "alice", Body: "there", SentAt: time.Now().Add(-time.Minute)},
	}
	notify := &fakeNotifier{}
	o := newTestOrchestrator(t, api, db, testCfg(), notify)

	for i := 0; i < 2; i++ {
		if err := o.RunHistorical(context.Background(), acct.ID); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if len(db.chats) != 1 {
		t.Errorf("want 1 chat after re-run, got %d", len(db.chats))
	}
	if len(db.messages) != 2 {
		t.Errorf("want 2 messages after re-run, got %d", len(db.messages))
	}
	if len(db.contacts) != 1 {
		t.Errorf("want 1 contact after re-run, got %d", len(db.contacts))
	}
	if acct.Status != model.AccountStatusConnected {
		t.Errorf("account status = %q, want connected", acct.Status)
	}
	if acct.Progress.Step != model.SyncStepDone {
		t.Errorf("progress step = %q, want done", acct.Progress.Step)
	}
	if len(notify.subjects) != 2 || notify.subjects[0] != SubjectAccountSynced {
		t.Errorf("want account.synced broadcast per run, got %v", notify.subjects)
	}
}

func TestRunHistoricalRespectsChatCap(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	api := newFakeAPI()
	api.chats = []provider.ChatItem{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}

	cfg := testCfg()
	cfg.Limits.MaxChats = 2
	cfg.Limits.PageSize = 2
	o := newTestOrchestrator(t, api, db, cfg, nil)

	if err := o.RunHistorical(context.Background(), acct.ID); err != nil {
		t.Fatal(err)
	}
	if len(db.chats) != 2 {
		t.Errorf("cap=2 but stored %d chats", len(db.chats))
	}
}

func TestRunHistoricalSkipsCompanyChats(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	api := newFakeAPI()
	api.chats = []provider.ChatItem{
		{ID: "personal", SenderID: "urn:li:person:1"},
		{ID: "corp", SenderID: "urn:li:company:9"},
	}
	o := newTestOrchestrator(t, api, db, testCfg(), nil)

	if err := o.RunHistorical(context.Background(), acct.ID); err != nil {
		t.Fatal(err)
	}
	if len(db.chats) != 1 {
		t.Fatalf("want company chat dropped at ingest, got %d chats", len(db.chats))
	}
	for _, c := range db.chats {
		if c.ExternalID != "personal" {
			t.Errorf("stored wrong chat %q", c.ExternalID)
		}
	}
}

func TestRunHistoricalProviderFailureMarksAccount(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	api := newFakeAPI()
	api.listChatsErr = errs.ErrProviderAuth.WrapMsg("token revoked")
	o := newTestOrchestrator(t, api, db, testCfg(), nil)

	if err := o.RunHistorical(context.Background(), acct.ID); err == nil {
		t.Fatal("provider failure must surface")
	}
	if acct.Status != model.AccountStatusError {
		t.Errorf("account status = %q, want error", acct.Status)
	}
	if acct.Progress.LastError == "" {
		t.Error("last error must be recorded on progress")
	}
}

func TestRunHistoricalMessageCap(t *testing.T) {
	db := newMemDB()
	acct := seededAccount(db)
	api := newFakeAPI()
	api.chats = []provider.ChatItem{{ID: "c1"}}
	for i := 0; i < 8; i++ {
		api.messages["c1"] = append(api.messages["c1"], provider.MessageItem{
			ID: string(rune('a' + i)), SenderID: "alice", Body: "x", SentAt: time.Now(),
		})
	}
	cfg := testCfg()
	cfg.Limits.MaxMessagesPerChat = 3
	cfg.Limits.MessageBatchSize = 3
	o := newTestOrchestrator(t, api, db, cfg, nil)

	if err := o.RunHistorical(context.Background(), acct.ID); err != nil {
		t.Fatal(err)
	}
	if len(db.messages) != 3 {
		t.Errorf("cap=3 but stored %d messages", len(db.messages))
	}
}
