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

type ContactDAO struct{ DB *mongo.Database }

func (d *ContactDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Contact{}).GetTableName())
}

// ContactPatch 档案补全与交互刷新共用的合并补丁。
type ContactPatch struct {
	FirstName       *string
	LastName        *string
	Headline        *string
	PictureURL      *string
	ProfileURL      *string
	Occupation      *string
	Location        *string
	NetworkDistance *string
	Info            *model.ContactInfo
	InteractionAt   *time.Time // last_interaction_at 只会向后推（$max）
}

func (p ContactPatch) set(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if p.FirstName != nil {
		set["first_name"] = *p.FirstName
	}
	if p.LastName != nil {
		set["last_name"] = *p.LastName
	}
	if p.Headline != nil {
		set["headline"] = *p.Headline
	}
	if p.PictureURL != nil {
		set["picture_url"] = *p.PictureURL
	}
	if p.ProfileURL != nil {
		set["profile_url"] = *p.ProfileURL
	}
	if p.Occupation != nil {
		set["occupation"] = *p.Occupation
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.NetworkDistance != nil {
		set["network_distance"] = *p.NetworkDistance
	}
	if p.Info != nil {
		set["info"] = *p.Info
	}
	return set
}

// Upsert 按 (account_id, external_id) 幂等落联系人；交互时间只前进不回退。
func (d *ContactDAO) Upsert(ctx context.Context, accountID primitive.ObjectID, ownerUserID, externalID string, patch ContactPatch) (*model.Contact, error) {
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
	if patch.InteractionAt != nil {
		update["$max"] = bson.M{"last_interaction_at": *patch.InteractionAt}
	}
	for attempt := 0; ; attempt++ {
		_, err := d.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err == nil {
			break
		}
		if mongo.IsDuplicateKeyError(err) && attempt == 0 {
			continue
		}
		return nil, errs.WrapMsg(err, "upsert contact", "externalID", externalID)
	}
	var c model.Contact
	err := d.coll().FindOne(ctx, filter).Decode(&c)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &c, nil
}

func (d *ContactDAO) FindByExternalID(ctx context.Context, accountID primitive.ObjectID, externalID string, vis model.Visibility) (*model.Contact, error) {
	filter := stateFilter(vis)
	filter["account_id"] = accountID
	filter["external_id"] = externalID
	var c model.Contact
	err := d.coll().FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("contact not found")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &c, nil
}

// ListByOwner 按最近交互倒序翻页。
func (d *ContactDAO) ListByOwner(ctx context.Context, ownerUserID string, vis model.Visibility, cursor string, limit int) (*Page[model.Contact], error) {
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
		filter["$or"] = cursorCond("last_interaction_at", t, id)["$or"]
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_interaction_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := d.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var items []model.Contact
	if err := cur.All(ctx, &items); err != nil {
		return nil, errs.Wrap(err)
	}
	page := &Page[model.Contact]{}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(last.LastInteractionAt, last.ID)
	}
	page.Items = items
	return page, nil
}
