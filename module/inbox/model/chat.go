package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 会话类型
const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"
)

// Chat 一个会话线程。
// (account_id, external_id) 全局唯一：重复摄取只会更新，不会出现第二行。
// db.inbox_chat.createIndex({ account_id:1, external_id:1 }, { unique:true })
// db.inbox_chat.createIndex({ owner_user_id:1, last_message_at:-1 })
type Chat struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"   json:"id,omitempty"`
	AccountID   primitive.ObjectID `bson:"account_id"      json:"account_id"`
	OwnerUserID string             `bson:"owner_user_id"   json:"owner_user_id"` // 冗余自账号，省一次连表
	ExternalID  string             `bson:"external_id"     json:"external_id"`

	Provider      string    `bson:"provider"        json:"provider"`
	Type          string    `bson:"type"            json:"type"` // direct/group
	Name          string    `bson:"name,omitempty"  json:"name,omitempty"`
	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
	UnreadCount   int       `bson:"unread_count"    json:"unread_count"`
	ReadOnly      bool      `bson:"read_only"       json:"read_only"`

	State     State     `bson:"state"           json:"state"`
	CreatedAt time.Time `bson:"created_at"      json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"      json:"updated_at"`
}

func (*Chat) GetTableName() string { return "inbox_chat" }
