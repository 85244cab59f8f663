package store

import (
	"context"
	"errors"
	"time"

	"LinkProject/module/inbox/model"
	"LinkProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProfileViewDAO struct{ DB *mongo.Database }

func (d *ProfileViewDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.ProfileView{}).GetTableName())
}

// Upsert 同一访客重复到访只推时间，不加行。
func (d *ProfileViewDAO) Upsert(ctx context.Context, ownerUserID, viewerExternalID string, viewedAt time.Time) error {
	filter := bson.M{"owner_user_id": ownerUserID, "viewer_external_id": viewerExternalID}
	update := bson.M{
		"$max":         bson.M{"viewed_at": viewedAt},
		"$setOnInsert": bson.M{"owner_user_id": ownerUserID, "viewer_external_id": viewerExternalID},
	}
	_, err := d.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return errs.WrapMsg(err, "upsert profile view", "viewer", viewerExternalID)
}

// DistinctViewers 去重访客集合（联系人并集的另一半）。
func (d *ProfileViewDAO) DistinctViewers(ctx context.Context, ownerUserID string) ([]string, error) {
	vals, err := d.coll().Distinct(ctx, "viewer_external_id", bson.M{"owner_user_id": ownerUserID})
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

type SubscriptionDAO struct{ DB *mongo.Database }

func (d *SubscriptionDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Subscription{}).GetTableName())
}

// FindPlan 用户套餐；没有订阅行返回空串，调用方按最低档处理。
func (d *SubscriptionDAO) FindPlan(ctx context.Context, ownerUserID string) (string, error) {
	var s model.Subscription
	err := d.coll().FindOne(ctx, bson.M{"owner_user_id": ownerUserID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err)
	}
	return s.Plan, nil
}
