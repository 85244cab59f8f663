package store

import (
	"context"
	"errors"
	"time"

	"LinkProject/module/inbox/model"
	"LinkProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageDAO struct{ DB *mongo.Database }

func (d *MessageDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Message{}).GetTableName())
}

// MessagePatch 合并语义：nil 不动，非 nil 覆盖。
type MessagePatch struct {
	Direction        *string
	Type             *string
	Body             *string
	SentAt           *time.Time
	Read             *bool
	Seen             *bool
	Delivered        *bool
	Edited           *bool
	Deleted          *bool
	SenderExternalID *string
	SenderAttendeeID *primitive.ObjectID
	IsLocal          *bool
}

func (p MessagePatch) set(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.Direction != nil {
		set["direction"] = *p.Direction
	}
	if p.Type != nil {
		set["type"] = *p.Type
	}
	if p.Body != nil {
		set["body"] = *p.Body
	}
	if p.SentAt != nil {
		set["sent_at"] = *p.SentAt
	}
	if p.Read != nil {
		set["read"] = *p.Read
	}
	if p.Seen != nil {
		set["seen"] = *p.Seen
	}
	if p.Delivered != nil {
		set["delivered"] = *p.Delivered
	}
	if p.Edited != nil {
		set["edited"] = *p.Edited
	}
	if p.Deleted != nil {
		set["deleted"] = *p.Deleted
	}
	if p.SenderExternalID != nil {
		set["sender_external_id"] = *p.SenderExternalID
	}
	if p.SenderAttendeeID != nil {
		set["sender_attendee_id"] = *p.SenderAttendeeID
	}
	if p.IsLocal != nil {
		set["is_local"] = *p.IsLocal
	}
	return set
}

// Upsert external_id 是唯一去重键：webhook 和历史同步先后写同一条消息时，
// 第二次写只会合并字段，不会出现第二行。
func (d *MessageDAO) Upsert(ctx context.Context, accountID, chatID primitive.ObjectID, externalID string, patch MessagePatch) (*model.Message, error) {
	now := time.Now()
	filter := bson.M{"account_id": accountID, "external_id": externalID}
	update := bson.M{
		"$set": patch.set(now),
		"$setOnInsert": bson.M{
			"account_id":  accountID,
			"chat_id":     chatID,
			"external_id": externalID,
			"created_at":  now,
		},
	}
	for attempt := 0; ; attempt++ {
		_, err := d.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			break
		}
		if mongo.IsDuplicateKeyError(err) && attempt == 0 {
			continue
		}
		return nil, errs.WrapMsg(err, "upsert message", "externalID", externalID)
	}
	var m model.Message
	if err := d.coll().FindOne(ctx, filter).Decode(&m); err != nil {
		return nil, errs.Wrap(err)
	}
	return &m, nil
}

func (d *MessageDAO) FindByExternalID(ctx context.Context, accountID primitive.ObjectID, externalID string) (*model.Message, error) {
	var m model.Message
	err := d.coll().FindOne(ctx, bson.M{"account_id": accountID, "external_id": externalID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &m, nil
}

// ListByChat 按发送时间倒序翻页。
func (d *MessageDAO) ListByChat(ctx context.Context, chatID primitive.ObjectID, cursor string, limit int) (*Page[model.Message], error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"chat_id": chatID}
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, errs.ErrArgs.WrapMsg("bad cursor")
		}
		filter["$or"] = cursorCond("sent_at", t, id)["$or"]
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := d.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var items []model.Message
	if err := cur.All(ctx, &items); err != nil {
		return nil, errs.Wrap(err)
	}
	page := &Page[model.Message]{}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(last.SentAt, last.ID)
	}
	page.Items = items
	return page, nil
}

// reconcileWindow 本地占位消息与 provider 回流消息的匹配时间窗。
const reconcileWindow = 90 * time.Second

// ReconcileLocal 合并策略（见 DESIGN.md）：同步带回 provider ID 的发出消息时，
// 先找同会话、同正文、发送时间在窗口内的 local_ 占位行。
//   - 找到且 provider ID 行尚不存在：把占位行的 external_id 改写成 provider ID；
//   - provider ID 行已存在（webhook 先到）：占位行是纯重复，直接删；
//   - 没找到：不动，调用方照常 Upsert，占位行作为本地独存记录留下。
//
// 返回 true 表示调用方无需再落这条消息。
func (d *MessageDAO) ReconcileLocal(ctx context.Context, accountID, chatID primitive.ObjectID, providerID, body string, sentAt time.Time) (bool, error) {
	filter := bson.M{
		"account_id": accountID,
		"chat_id":    chatID,
		"is_local":   true,
		"direction":  model.DirectionOutgoing,
		"body":       body,
		"sent_at": bson.M{
			"$gte": sentAt.Add(-reconcileWindow),
			"$lte": sentAt.Add(reconcileWindow),
		},
	}
	var local model.Message
	err := d.coll().FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "sent_at", Value: -1}})).Decode(&local)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(err)
	}

	_, err = d.coll().UpdateOne(ctx, bson.M{"_id": local.ID}, bson.M{"$set": bson.M{
		"external_id": providerID,
		"is_local":    false,
		"sent_at":     sentAt,
		"updated_at":  time.Now(),
	}})
	if mongo.IsDuplicateKeyError(err) {
		// provider ID 行已经在了，占位行是重复，删掉
		if _, derr := d.coll().DeleteOne(ctx, bson.M{"_id": local.ID}); derr != nil {
			return false, errs.Wrap(derr)
		}
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(err)
	}
	return true, nil
}

// AddReaction 表情回应。$addToSet 去重，重复投递无副作用。
func (d *MessageDAO) AddReaction(ctx context.Context, accountID primitive.ObjectID, externalID string, r model.Reaction) error {
	_, err := d.coll().UpdateOne(ctx,
		bson.M{"account_id": accountID, "external_id": externalID},
		bson.M{
			"$addToSet": bson.M{"reactions": r},
			"$set":      bson.M{"updated_at": time.Now()},
		})
	return errs.WrapMsg(err, "add reaction", "externalID", externalID)
}

// DistinctIncomingSenders 这些账号收到过消息的去重发信人集合。
// 每次请求现算，不缓存（联系人会随软删/新消息增减）。
func (d *MessageDAO) DistinctIncomingSenders(ctx context.Context, accountIDs []primitive.ObjectID) ([]string, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"account_id":         bson.M{"$in": accountIDs},
		"direction":          model.DirectionIncoming,
		"sender_external_id": bson.M{"$ne": ""},
	}
	vals, err := d.coll().Distinct(ctx, "sender_external_id", filter)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
