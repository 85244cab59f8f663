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

type AttendeeDAO struct{ DB *mongo.Database }

func (d *AttendeeDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Attendee{}).GetTableName())
}

// AttendeePatch 合并语义同 ChatPatch。
type AttendeePatch struct {
	IsSelf      *bool
	Hidden      *bool
	ContactID   *primitive.ObjectID
	DisplayName *string
	ProfileURL  *string
	PictureURL  *string
}

func (p AttendeePatch) set(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.IsSelf != nil {
		set["is_self"] = *p.IsSelf
	}
	if p.Hidden != nil {
		set["hidden"] = *p.Hidden
	}
	if p.ContactID != nil {
		set["contact_id"] = *p.ContactID
	}
	if p.DisplayName != nil {
		set["display_name"] = *p.DisplayName
	}
	if p.ProfileURL != nil {
		set["profile_url"] = *p.ProfileURL
	}
	if p.PictureURL != nil {
		set["picture_url"] = *p.PictureURL
	}
	return set
}

// Upsert 按 (chat_id, external_id) 幂等刷新参与者。参与者从不硬删。
func (d *AttendeeDAO) Upsert(ctx context.Context, chatID, accountID primitive.ObjectID, externalID string, patch AttendeePatch) (*model.Attendee, error) {
	now := time.Now()
	filter := bson.M{"chat_id": chatID, "external_id": externalID}
	update := bson.M{
		"$set": patch.set(now),
		"$setOnInsert": bson.M{
			"chat_id":     chatID,
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
		return nil, errs.WrapMsg(err, "upsert attendee", "externalID", externalID)
	}
	var a model.Attendee
	if err := d.coll().FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, errs.Wrap(err)
	}
	return &a, nil
}

func (d *AttendeeDAO) ListByChat(ctx context.Context, chatID primitive.ObjectID) ([]model.Attendee, error) {
	cur, err := d.coll().Find(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var out []model.Attendee
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Wrap(err)
	}
	return out, nil
}

// ListByChats 一把拉多个会话的参与者（限额引擎遮蔽列表时用）。
func (d *AttendeeDAO) ListByChats(ctx context.Context, chatIDs []primitive.ObjectID) (map[primitive.ObjectID][]model.Attendee, error) {
	if len(chatIDs) == 0 {
		return map[primitive.ObjectID][]model.Attendee{}, nil
	}
	cur, err := d.coll().Find(ctx, bson.M{"chat_id": bson.M{"$in": chatIDs}})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var all []model.Attendee
	if err := cur.All(ctx, &all); err != nil {
		return nil, errs.Wrap(err)
	}
	out := make(map[primitive.ObjectID][]model.Attendee, len(chatIDs))
	for _, a := range all {
		out[a.ChatID] = append(out[a.ChatID], a)
	}
	return out, nil
}

// FindPrimary 会话的主联系人 = 第一个非本人参与者。
func (d *AttendeeDAO) FindPrimary(ctx context.Context, chatID primitive.ObjectID) (*model.Attendee, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	var a model.Attendee
	err := d.coll().FindOne(ctx, bson.M{"chat_id": chatID, "is_self": false}, opts).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("no primary attendee")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &a, nil
}
