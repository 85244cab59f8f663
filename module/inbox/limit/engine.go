package limit

import (
	"context"
	"math"

	"LinkProject/module/inbox/model"
	"LinkProject/module/inbox/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 套餐档位
const (
	PlanFree      = "free"
	PlanStarter   = "starter"
	PlanPro       = "pro"
	PlanUnlimited = "unlimited"
)

// 遮蔽展示用的占位文案。底层数据不动，只在读路径替换。
const (
	Placeholder = "LinkedIn Member"
	UpsellBody  = "Upgrade your subscription to see this conversation."
)

// planLimits 固定档位表。未知/缺失套餐按最低档。
var planLimits = map[string]int{
	PlanFree:      10,
	PlanStarter:   100,
	PlanPro:       500,
	PlanUnlimited: math.MaxInt,
}

// PlanLimit 套餐名 → 联系人上限。
func PlanLimit(plan string) int {
	if n, ok := planLimits[plan]; ok {
		return n
	}
	return planLimits[PlanFree]
}

// Status 限额状态。派生值，每次请求现算，从不持久化或缓存。
type Status struct {
	Limit      int  `json:"limit"`
	Count      int  `json:"count"`
	IsExceeded bool `json:"is_exceeded"`
	Remaining  int  `json:"remaining_contacts"`
}

// ComputeStatus 纯算术部分，单独拆出来便于测。
func ComputeStatus(limit, count int) Status {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Limit:      limit,
		Count:      count,
		IsExceeded: count > limit,
		Remaining:  remaining,
	}
}

// 引擎消费的存储能力面，按 store 各 DAO 的方法签名声明，方便测试替身。
type accountSource interface {
	ListByOwner(ctx context.Context, ownerUserID string, vis model.Visibility) ([]model.Account, error)
}

type senderSource interface {
	DistinctIncomingSenders(ctx context.Context, accountIDs []primitive.ObjectID) ([]string, error)
}

type viewerSource interface {
	DistinctViewers(ctx context.Context, ownerUserID string) ([]string, error)
}

type planSource interface {
	FindPlan(ctx context.Context, ownerUserID string) (string, error)
}

type chatSource interface {
	ListByOwner(ctx context.Context, ownerUserID string, vis model.Visibility, cursor string, limit int) (*store.Page[model.Chat], error)
}

type attendeeSource interface {
	ListByChats(ctx context.Context, chatIDs []primitive.ObjectID) (map[primitive.ObjectID][]model.Attendee, error)
}

// Engine 联系人限额引擎。无内部状态，全部依赖注入。
type Engine struct {
	Accounts  accountSource
	Messages  senderSource
	Views     viewerSource
	Plans     planSource
	Chats     chatSource
	Attendees attendeeSource
}

// ContactSet 联系人集合 = 来信发信人 ∪ 档案访客（并集去重，不是相加）。
// 软删账号不参与统计。
func (e *Engine) ContactSet(ctx context.Context, ownerUserID string) (map[string]struct{}, error) {
	accounts, err := e.Accounts.ListByOwner(ctx, ownerUserID, model.VisibleActive)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}

	set := map[string]struct{}{}
	senders, err := e.Messages.DistinctIncomingSenders(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range senders {
		set[s] = struct{}{}
	}
	viewers, err := e.Views.DistinctViewers(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	for _, v := range viewers {
		set[v] = struct{}{}
	}
	return set, nil
}

// Status 现算限额状态。联系人会随软删/新来信增减，所以必须是活视图。
func (e *Engine) Status(ctx context.Context, ownerUserID string) (Status, error) {
	plan, err := e.Plans.FindPlan(ctx, ownerUserID)
	if err != nil {
		return Status{}, err
	}
	set, err := e.ContactSet(ctx, ownerUserID)
	if err != nil {
		return Status{}, err
	}
	return ComputeStatus(PlanLimit(plan), len(set)), nil
}

// ChatView 限额引擎的输出行：会话 + 参与者 + 是否被遮蔽。
type ChatView struct {
	Chat       model.Chat       `json:"chat"`
	Attendees  []model.Attendee `json:"attendees"`
	Obfuscated bool             `json:"obfuscated"`
}

// primaryContactID 会话主联系人 = 第一个非本人参与者。识别不出来返回空串。
func primaryContactID(attendees []model.Attendee) string {
	for _, a := range attendees {
		if !a.IsSelf {
			return a.ExternalID
		}
	}
	return ""
}

// ObfuscateChats 纯函数，没有任何 IO。输入约定已按最近消息倒序；
// 并列保持输入顺序。前 Limit 个去重联系人的所有会话保持可见
// （不论出现在列表哪个位置），之后的新联系人整条遮蔽。
// 同样的 {limit, 会话列表} 永远得到同样的结果。
func ObfuscateChats(chats []model.Chat, attendees map[primitive.ObjectID][]model.Attendee, st Status) []ChatView {
	out := make([]ChatView, 0, len(chats))
	if !st.IsExceeded {
		for _, c := range chats {
			out = append(out, ChatView{Chat: c, Attendees: attendees[c.ID]})
		}
		return out
	}

	visible := map[string]struct{}{}
	for _, c := range chats {
		atts := attendees[c.ID]
		contact := primaryContactID(atts)
		if contact == "" {
			// 识别不出主联系人的会话不占配额，照常展示
			out = append(out, ChatView{Chat: c, Attendees: atts})
			continue
		}
		if _, ok := visible[contact]; ok {
			out = append(out, ChatView{Chat: c, Attendees: atts})
			continue
		}
		if len(visible) < st.Limit {
			visible[contact] = struct{}{}
			out = append(out, ChatView{Chat: c, Attendees: atts})
			continue
		}
		out = append(out, obfuscateChat(c, atts))
	}
	return out
}

func obfuscateChat(c model.Chat, attendees []model.Attendee) ChatView {
	c.Name = Placeholder
	masked := make([]model.Attendee, 0, len(attendees))
	for _, a := range attendees {
		if !a.IsSelf {
			a.DisplayName = Placeholder
			a.ProfileURL = ""
			a.PictureURL = ""
			a.ExternalID = ""
		}
		masked = append(masked, a)
	}
	return ChatView{Chat: c, Attendees: masked, Obfuscated: true}
}

// ObfuscateMessages 遮蔽会话的消息视图：正文换成引导文案，发信人清空。
func ObfuscateMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		m.Body = UpsellBody
		m.SenderExternalID = ""
		m.SenderAttendeeID = nil
		out = append(out, m)
	}
	return out
}

// isChatObfuscatedPageSize 遮蔽判定重走会话列表时的翻页大小。
const isChatObfuscatedPageSize = 50

// IsChatObfuscated 变更路径的独立复查：按当前状态重算目标会话的主联系人
// 是否在可见集合内。不复用任何读路径的结果。
func (e *Engine) IsChatObfuscated(ctx context.Context, ownerUserID string, chatID primitive.ObjectID) (bool, error) {
	st, err := e.Status(ctx, ownerUserID)
	if err != nil {
		return false, err
	}
	if !st.IsExceeded {
		return false, nil
	}

	atts, err := e.Attendees.ListByChats(ctx, []primitive.ObjectID{chatID})
	if err != nil {
		return false, err
	}
	target := primaryContactID(atts[chatID])
	if target == "" {
		return false, nil
	}

	// 按最近消息倒序重放会话列表，凑满 Limit 个可见联系人为止
	visible := map[string]struct{}{}
	cursor := ""
	for {
		page, err := e.Chats.ListByOwner(ctx, ownerUserID, model.VisibleActive, cursor, isChatObfuscatedPageSize)
		if err != nil {
			return false, err
		}
		ids := make([]primitive.ObjectID, 0, len(page.Items))
		for _, c := range page.Items {
			ids = append(ids, c.ID)
		}
		pageAtts, err := e.Attendees.ListByChats(ctx, ids)
		if err != nil {
			return false, err
		}
		for _, c := range page.Items {
			contact := primaryContactID(pageAtts[c.ID])
			if contact == "" {
				continue
			}
			if _, ok := visible[contact]; ok {
				continue
			}
			if len(visible) < st.Limit {
				visible[contact] = struct{}{}
				if contact == target {
					return false, nil
				}
				continue
			}
			// 可见集合已满，目标不在其中
			return true, nil
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	_, ok := visible[target]
	return !ok, nil
}
