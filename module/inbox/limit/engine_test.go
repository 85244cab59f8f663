package limit

import (
	"math"
	"testing"
	"time"

	"LinkProject/module/inbox/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPlanLimit(t *testing.T) {
	cases := []struct {
		plan string
		want int
	}{
		{PlanFree, 10},
		{PlanStarter, 100},
		{PlanPro, 500},
		{PlanUnlimited, math.MaxInt},
		{"", 10},       // 没有订阅行 => 最低档
		{"legacy", 10}, // 未知套餐 => 最低档
	}
	for _, c := range cases {
		if got := PlanLimit(c.plan); got != c.want {
			t.Errorf("PlanLimit(%q) = %d, want %d", c.plan, got, c.want)
		}
	}
}

func TestComputeStatus(t *testing.T) {
	st := ComputeStatus(100, 150)
	if !st.IsExceeded || st.Remaining != 0 {
		t.Errorf("150/100: want exceeded with 0 remaining, got %+v", st)
	}
	st = ComputeStatus(100, 50)
	if st.IsExceeded || st.Remaining != 50 {
		t.Errorf("50/100: want not exceeded with 50 remaining, got %+v", st)
	}
	st = ComputeStatus(100, 100)
	if st.IsExceeded || st.Remaining != 0 {
		t.Errorf("100/100: exactly at limit must not exceed, got %+v", st)
	}
}

func twoChats() ([]model.Chat, map[primitive.ObjectID][]model.Attendee) {
	newer := model.Chat{ID: primitive.NewObjectID(), Name: "Alice", LastMessageAt: time.Now()}
	older := model.Chat{ID: primitive.NewObjectID(), Name: "Bob", LastMessageAt: time.Now().Add(-time.Hour)}
	atts := map[primitive.ObjectID][]model.Attendee{
		newer.ID: {
			{ChatID: newer.ID, IsSelf: true, ExternalID: "me"},
			{ChatID: newer.ID, ExternalID: "alice", DisplayName: "Alice", PictureURL: "p", ProfileURL: "u"},
		},
		older.ID: {
			{ChatID: older.ID, IsSelf: true, ExternalID: "me"},
			{ChatID: older.ID, ExternalID: "bob", DisplayName: "Bob", PictureURL: "p", ProfileURL: "u"},
		},
	}
	return []model.Chat{newer, older}, atts
}

func TestObfuscateChatsDeterminism(t *testing.T) {
	chats, atts := twoChats()
	st := ComputeStatus(1, 2) // limit=1，两个联系人

	out := ObfuscateChats(chats, atts, st)
	if len(out) != 2 {
		t.Fatalf("want 2 views, got %d", len(out))
	}
	if out[0].Obfuscated {
		t.Error("newer chat must stay visible")
	}
	if !out[1].Obfuscated {
		t.Fatal("older chat must be obfuscated")
	}
	if out[1].Chat.Name != Placeholder {
		t.Errorf("obfuscated chat name = %q, want placeholder", out[1].Chat.Name)
	}
	for _, a := range out[1].Attendees {
		if a.IsSelf {
			continue
		}
		if a.DisplayName != Placeholder || a.PictureURL != "" || a.ProfileURL != "" || a.ExternalID != "" {
			t.Errorf("obfuscated attendee leaks identity: %+v", a)
		}
	}

	// 交换输入顺序，可见的那个要跟着翻转
	swapped := []model.Chat{chats[1], chats[0]}
	out = ObfuscateChats(swapped, atts, st)
	if out[0].Obfuscated || !out[1].Obfuscated {
		t.Error("swapping input order must flip which contact is visible")
	}
}

func TestObfuscateChatsUnderLimitUnchanged(t *testing.T) {
	chats, atts := twoChats()
	out := ObfuscateChats(chats, atts, ComputeStatus(10, 2))
	for i, v := range out {
		if v.Obfuscated {
			t.Errorf("chat %d obfuscated under limit", i)
		}
		if v.Chat.Name != chats[i].Name {
			t.Errorf("chat %d mutated under limit", i)
		}
	}
}

func TestObfuscateChatsRepeatContactStaysVisible(t *testing.T) {
	// 同一联系人的第二个会话出现在限额之后也要保持可见
	a := model.Chat{ID: primitive.NewObjectID(), Name: "A1"}
	b := model.Chat{ID: primitive.NewObjectID(), Name: "B"}
	a2 := model.Chat{ID: primitive.NewObjectID(), Name: "A2"}
	atts := map[primitive.ObjectID][]model.Attendee{
		a.ID:  {{ExternalID: "alice"}},
		b.ID:  {{ExternalID: "bob"}},
		a2.ID: {{ExternalID: "alice"}},
	}
	out := ObfuscateChats([]model.Chat{a, b, a2}, atts, ComputeStatus(1, 2))
	if out[0].Obfuscated {
		t.Error("first alice chat must be visible")
	}
	if !out[1].Obfuscated {
		t.Error("bob chat must be obfuscated")
	}
	if out[2].Obfuscated {
		t.Error("second alice chat must stay visible, contact already counted")
	}
}

func TestObfuscateMessages(t *testing.T) {
	id := primitive.NewObjectID()
	msgs := []model.Message{{Body: "secret", SenderExternalID: "alice", SenderAttendeeID: &id}}
	out := ObfuscateMessages(msgs)
	if out[0].Body != UpsellBody || out[0].SenderExternalID != "" || out[0].SenderAttendeeID != nil {
		t.Errorf("message not fully obfuscated: %+v", out[0])
	}
	if msgs[0].Body != "secret" {
		t.Error("input slice must not be mutated")
	}
}
