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

type ChatDAO struct{ DB *mongo.Database }

func (d *ChatDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Chat{}).GetTableName())
}

// ChatPatch 合并语义：nil 字段不动，非 nil 覆盖。
type ChatPatch struct {
	Provider      *string
	Type          *string
	Name          *string
	LastMessageAt *time.Time
	UnreadCount   *int
	ReadOnly      *bool
}

func (p ChatPatch) set(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.Provider != nil {
		set["provider"] = *p.Provider
	}
	if p.Type != nil {
		set["type"] = *p.Type
	}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.LastMessageAt != nil {
		set["last_message_at"] = *p.LastMessageAt
	}
	if p.UnreadCount != nil {
		set["unread_count"] = *p.UnreadCount
	}
	if p.ReadOnly != nil {
		set["read_only"] = *p.ReadOnly
	}
	return set
}

// Upsert 按 (account_id, external_id) 幂等落会话：重复摄取只更新，不产生第二行。
// 唯一键冲突（并发 webhook + 历史同步首插撞车）重试一次即收敛。
func (d *ChatDAO) Upsert(ctx context.Context, accountID primitive.ObjectID, ownerUserID, externalID string, patch ChatPatch) (*model.Chat, error) {
	now := time.Now()
	filter := bson.M{"account_id": accountID, "external_id": externalID}
	update := bson.M{
		"$set": patch.set(now),
		"$setOnInsert": bson.M{
			"account_id":    accountID,
			"owner_user_id": ownerUserID,
			"external_id":   externalID,
			"state":         model.StateActive,
			"created_at":    now,
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
		return nil, errs.WrapMsg(err, "upsert chat", "externalID", externalID)
	}
	return d.findOne(ctx, filter)
}

func (d *ChatDAO) findOne(ctx context.Context, filter bson.M) (*model.Chat, error) {
	var c model.Chat
	err := d.coll().FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("chat not found")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &c, nil
}

func (d *ChatDAO) FindByID(ctx context.Context, id primitive.ObjectID, vis model.Visibility) (*model.Chat, error) {
	filter := stateFilter(vis)
	filter["_id"] = id
	return d.findOne(ctx, filter)
}

func (d *ChatDAO) FindByExternalID(ctx context.Context, accountID primitive.ObjectID, externalID string) (*model.Chat, error) {
	return d.findOne(ctx, bson.M{"account_id": accountID, "external_id": externalID})
}

// ListByOwner 按最近消息时间倒序翻页。limit+1 探测 HasMore。
func (d *ChatDAO) ListByOwner(ctx context.Context, ownerUserID string, vis model.Visibility, cursor string, limit int) (*Page[model.Chat], error) {
	if limit <= 0 {
		limit = 20
	}
	filter := stateFilter(vis)
	filter["owner_user_id"] = ownerUserID
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, errs.ErrArgs.WrapMsg("bad cursor")
		}
		filter["$or"] = cursorCond("last_message_at", t, id)["$or"]
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := d.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var items []model.Chat
	if err := cur.All(ctx, &items); err != nil {
		return nil, errs.Wrap(err)
	}

	page := &Page[model.Chat]{}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(last.LastMessageAt, last.ID)
	}
	page.Items = items
	return page, nil
}

// TouchLastMessage 新消息到达时抬升会话时间线；只在变大时更新，避免写放大。
func (d *ChatDAO) TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time, incomingDelta int) error {
	update := bson.M{
		"$max": bson.M{"last_message_at": at},
		"$set": bson.M{"updated_at": time.Now()},
	}
	if incomingDelta != 0 {
		update["$inc"] = bson.M{"unread_count": incomingDelta}
	}
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, update)
	return errs.Wrap(err)
}

// MarkRead 本地未读清零。
func (d *ChatDAO) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"unread_count": 0,
		"updated_at":   time.Now(),
	}})
	return errs.Wrap(err)
}

// SoftDelete 会话软删。
func (d *ChatDAO) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"state":      model.StateDeleted,
		"updated_at": time.Now(),
	}})
	return errs.Wrap(err)
}
