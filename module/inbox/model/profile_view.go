package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfileView 谁看过我：provider 推送的档案访问记录。
// 访客ID参与联系人集合的并集统计（见 limit 引擎）。
// db.inbox_profile_view.createIndex({ owner_user_id:1, viewer_external_id:1 }, { unique:true })
type ProfileView struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"      json:"id,omitempty"`
	OwnerUserID      string             `bson:"owner_user_id"      json:"owner_user_id"`
	ViewerExternalID string             `bson:"viewer_external_id" json:"viewer_external_id"`
	ViewedAt         time.Time          `bson:"viewed_at"          json:"viewed_at"`
}

func (*ProfileView) GetTableName() string { return "inbox_profile_view" }

// Subscription 订阅行。由计费系统写入，这里只读；没有行视为最低档。
// db.inbox_subscription.createIndex({ owner_user_id:1 }, { unique:true })
type Subscription struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OwnerUserID string             `bson:"owner_user_id" json:"owner_user_id"`
	Plan        string             `bson:"plan"          json:"plan"`
	UpdatedAt   time.Time          `bson:"updated_at"    json:"updated_at"`
}

func (*Subscription) GetTableName() string { return "inbox_subscription" }
