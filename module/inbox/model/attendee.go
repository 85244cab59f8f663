package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Attendee 会话参与者。每次同步到会话都会刷新，从不硬删。
// db.inbox_attendee.createIndex({ chat_id:1, external_id:1 }, { unique:true })
type Attendee struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"        json:"id,omitempty"`
	ChatID     primitive.ObjectID `bson:"chat_id"              json:"chat_id"`
	AccountID  primitive.ObjectID `bson:"account_id"           json:"account_id"`
	ExternalID string             `bson:"external_id"          json:"external_id"`

	IsSelf      bool                `bson:"is_self"              json:"is_self"` // 是否账号本人
	Hidden      bool                `bson:"hidden"               json:"hidden"`
	ContactID   *primitive.ObjectID `bson:"contact_id,omitempty" json:"contact_id,omitempty"`
	DisplayName string              `bson:"display_name,omitempty" json:"display_name,omitempty"`
	ProfileURL  string              `bson:"profile_url,omitempty"  json:"profile_url,omitempty"`
	PictureURL  string              `bson:"picture_url,omitempty"  json:"picture_url,omitempty"`

	CreatedAt time.Time `bson:"created_at"           json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"           json:"updated_at"`
}

func (*Attendee) GetTableName() string { return "inbox_attendee" }
