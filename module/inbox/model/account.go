package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 账号连接状态
const (
	AccountStatusConnected    = "connected"
	AccountStatusSyncing      = "syncing"
	AccountStatusError        = "error"
	AccountStatusDisconnected = "disconnected"
)

// 历史同步进行到的阶段
const (
	SyncStepChats     = "chats"
	SyncStepMessages  = "messages"
	SyncStepAttendees = "attendees"
	SyncStepDone      = "done"
)

// SyncProgress 历史同步的进度快照，挂在账号上。
// 同步推进时持续落库，崩溃重跑时至少能报告做到哪一步了。
type SyncProgress struct {
	Step               string    `bson:"step,omitempty"`
	ChatsProcessed     int       `bson:"chats_processed"`
	MessagesProcessed  int       `bson:"messages_processed"`
	AttendeesProcessed int       `bson:"attendees_processed"`
	StartedAt          time.Time `bson:"started_at,omitempty"`
	UpdatedAt          time.Time `bson:"updated_at,omitempty"`
	LastError          string    `bson:"last_error,omitempty"`
}

// Account 一个外部消息平台身份，归属唯一用户。
// db.inbox_account.createIndex({ owner_user_id:1 })
// db.inbox_account.createIndex({ provider:1, external_id:1, owner_user_id:1 }, { unique:true })
type Account struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"  json:"id,omitempty"`
	OwnerUserID string             `bson:"owner_user_id"  json:"owner_user_id"` // 归属用户
	Provider    string             `bson:"provider"       json:"provider"`      // 平台名，如 "linkedin"
	ExternalID  string             `bson:"external_id"    json:"external_id"`   // provider 侧账号ID
	Token       string             `bson:"token,omitempty" json:"-"`            // provider 调用凭证，不下发

	Status   string       `bson:"status"         json:"status"` // connected/syncing/error/disconnected
	Progress SyncProgress `bson:"progress"       json:"progress"`

	State     State     `bson:"state"          json:"state"`
	CreatedAt time.Time `bson:"created_at"     json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"     json:"updated_at"`
}

func (*Account) GetTableName() string { return "inbox_account" }
