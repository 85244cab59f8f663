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

type AttachmentDAO struct{ DB *mongo.Database }

func (d *AttachmentDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Attachment{}).GetTableName())
}

// AttachmentPatch 摄取时带进来的可取引用；有什么存什么，不阻塞消息落库。
type AttachmentPatch struct {
	Mime                 *string
	Filename             *string
	Size                 *int64
	InlineData           *string
	ProviderURL          *string
	ProviderURLExpiresAt *time.Time
	Media                *model.AttachmentMedia
}

func (p AttachmentPatch) set(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.Mime != nil {
		set["mime"] = *p.Mime
	}
	if p.Filename != nil {
		set["filename"] = *p.Filename
	}
	if p.Size != nil {
		set["size"] = *p.Size
	}
	if p.InlineData != nil {
		set["inline_data"] = *p.InlineData
	}
	if p.ProviderURL != nil {
		set["provider_url"] = *p.ProviderURL
	}
	if p.ProviderURLExpiresAt != nil {
		set["provider_url_expires_at"] = *p.ProviderURLExpiresAt
	}
	if p.Media != nil {
		set["media"] = *p.Media
	}
	return set
}

// Upsert 按 (message_id, external_id) 幂等落附件行。
func (d *AttachmentDAO) Upsert(ctx context.Context, messageID, accountID primitive.ObjectID, externalID string, patch AttachmentPatch) (*model.Attachment, error) {
	now := time.Now()
	filter := bson.M{"message_id": messageID, "external_id": externalID}
	update := bson.M{
		"$set": patch.set(now),
		"$setOnInsert": bson.M{
			"message_id":  messageID,
			"account_id":  accountID,
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
		return nil, errs.WrapMsg(err, "upsert attachment", "externalID", externalID)
	}
	var a model.Attachment
	if err := d.coll().FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, errs.Wrap(err)
	}
	return &a, nil
}

func (d *AttachmentDAO) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Attachment, error) {
	var a model.Attachment
	err := d.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("attachment not found")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &a, nil
}

func (d *AttachmentDAO) ListByMessage(ctx context.Context, messageID primitive.ObjectID) ([]model.Attachment, error) {
	cur, err := d.coll().Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var out []model.Attachment
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Wrap(err)
	}
	return out, nil
}

// SetDurable 懒迁移写回。条件带 storage_url 为空：持久URL首写即权威，
// 并发迁移时只有第一个写入生效，后到的静默丢弃。
func (d *AttachmentDAO) SetDurable(ctx context.Context, id primitive.ObjectID, key, url string) error {
	now := time.Now()
	_, err := d.coll().UpdateOne(ctx,
		bson.M{"_id": id, "$or": bson.A{
			bson.M{"storage_url": ""},
			bson.M{"storage_url": bson.M{"$exists": false}},
		}},
		bson.M{"$set": bson.M{
			"storage_key": key,
			"storage_url": url,
			"uploaded_at": now,
			"updated_at":  now,
		}},
	)
	return errs.WrapMsg(err, "set durable url", "key", key)
}

// RefreshProviderURL 过期的 provider URL 刷新后写回（尽力而为）。
func (d *AttachmentDAO) RefreshProviderURL(ctx context.Context, id primitive.ObjectID, url string, expiresAt time.Time) error {
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"provider_url":            url,
		"provider_url_expires_at": expiresAt,
		"updated_at":              time.Now(),
	}})
	return errs.Wrap(err)
}
