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

type AccountDAO struct{ DB *mongo.Database }

func (d *AccountDAO) coll() *mongo.Collection {
	return d.DB.Collection((&model.Account{}).GetTableName())
}

// Upsert 按 (provider, external_id, owner_user_id) 落账号。
// 首次授权成功时插入，之后只刷新时间。
func (d *AccountDAO) Upsert(ctx context.Context, ownerUserID, provider, externalID string) (*model.Account, error) {
	now := time.Now()
	filter := bson.M{"provider": provider, "external_id": externalID, "owner_user_id": ownerUserID}
	update := bson.M{
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"owner_user_id": ownerUserID,
			"provider":      provider,
			"external_id":   externalID,
			"status":        model.AccountStatusConnected,
			"state":         model.StateActive,
			"created_at":    now,
		},
	}
	if _, err := d.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return nil, errs.WrapMsg(err, "upsert account", "externalID", externalID)
	}
	return d.findOne(ctx, filter)
}

func (d *AccountDAO) findOne(ctx context.Context, filter bson.M) (*model.Account, error) {
	var a model.Account
	err := d.coll().FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("account not found")
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &a, nil
}

func (d *AccountDAO) FindByID(ctx context.Context, id primitive.ObjectID, vis model.Visibility) (*model.Account, error) {
	filter := stateFilter(vis)
	filter["_id"] = id
	return d.findOne(ctx, filter)
}

// ListByOwner 用户名下的账号（历史同步的入口遍历用）。
func (d *AccountDAO) ListByOwner(ctx context.Context, ownerUserID string, vis model.Visibility) ([]model.Account, error) {
	filter := stateFilter(vis)
	filter["owner_user_id"] = ownerUserID
	cur, err := d.coll().Find(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	var out []model.Account
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Wrap(err)
	}
	return out, nil
}

// SetStatus 账号连接状态流转；lastErr 非空时一并记入进度快照。
func (d *AccountDAO) SetStatus(ctx context.Context, id primitive.ObjectID, status, lastErr string) error {
	now := time.Now()
	set := bson.M{"status": status, "updated_at": now, "progress.updated_at": now}
	if lastErr != "" {
		set["progress.last_error"] = lastErr
	}
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return errs.WrapMsg(err, "set account status", "status", status)
}

// UpdateProgress 同步推进时持续落进度，崩溃后能报告做到哪了。
func (d *AccountDAO) UpdateProgress(ctx context.Context, id primitive.ObjectID, p model.SyncProgress) error {
	p.UpdatedAt = time.Now()
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"progress":   p,
		"updated_at": p.UpdatedAt,
	}})
	return errs.WrapMsg(err, "update sync progress", "step", p.Step)
}

// SetToken 授权回流时更新 provider 调用凭证。
func (d *AccountDAO) SetToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"token":      token,
		"updated_at": time.Now(),
	}})
	return errs.Wrap(err)
}

// SoftDelete 断开连接时软删，历史数据保留。
func (d *AccountDAO) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	_, err := d.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"state":      model.StateDeleted,
		"status":     model.AccountStatusDisconnected,
		"updated_at": time.Now(),
	}})
	return errs.Wrap(err)
}
