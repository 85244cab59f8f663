package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 消息方向
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message 一条会话消息。
// external_id 是唯一去重键：webhook 和历史同步两条路径写同一个 external_id
// 时必须收敛到一行。本地先行落库的发出消息用 local_ 前缀占位ID（见 tools/ids），
// provider ID 之后通过同步出现时由 ReconcileLocal 合并。
// db.inbox_message.createIndex({ account_id:1, external_id:1 }, { unique:true })
// db.inbox_message.createIndex({ chat_id:1, sent_at:-1 })
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"  json:"id,omitempty"`
	AccountID  primitive.ObjectID `bson:"account_id"     json:"account_id"`
	ChatID     primitive.ObjectID `bson:"chat_id"        json:"chat_id"`
	ExternalID string             `bson:"external_id"    json:"external_id"`

	Direction string    `bson:"direction"      json:"direction"` // incoming/outgoing
	Type      string    `bson:"type,omitempty" json:"type,omitempty"`
	Body      string    `bson:"body"           json:"body"`
	SentAt    time.Time `bson:"sent_at"        json:"sent_at"`

	Read      bool `bson:"read"      json:"read"`
	Seen      bool `bson:"seen"      json:"seen"`
	Delivered bool `bson:"delivered" json:"delivered"`
	Edited    bool `bson:"edited"    json:"edited"`
	Deleted   bool `bson:"deleted"   json:"deleted"`

	SenderExternalID string              `bson:"sender_external_id,omitempty" json:"sender_external_id,omitempty"`
	SenderAttendeeID *primitive.ObjectID `bson:"sender_attendee_id,omitempty" json:"sender_attendee_id,omitempty"`
	IsLocal          bool                `bson:"is_local"                     json:"is_local"` // 占位ID尚未被 provider ID 替换

	Reactions []Reaction `bson:"reactions,omitempty" json:"reactions,omitempty"`

	CreatedAt time.Time `bson:"created_at"     json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"     json:"updated_at"`
}

func (*Message) GetTableName() string { return "inbox_message" }

// Reaction 消息表情回应。$addToSet 去重，同人同表情只记一次。
type Reaction struct {
	SenderExternalID string `bson:"sender_external_id" json:"sender_external_id"`
	Emoji            string `bson:"emoji"              json:"emoji"`
}

// AttachmentMedia 媒体附加信息。
type AttachmentMedia struct {
	Width       int  `bson:"width,omitempty"    json:"width,omitempty"`
	Height      int  `bson:"height,omitempty"   json:"height,omitempty"`
	DurationSec int  `bson:"duration_sec,omitempty" json:"duration_sec,omitempty"`
	IsSticker   bool `bson:"is_sticker,omitempty"   json:"is_sticker,omitempty"`
	IsGif       bool `bson:"is_gif,omitempty"       json:"is_gif,omitempty"`
	IsVoice     bool `bson:"is_voice,omitempty"     json:"is_voice,omitempty"`
}

// Attachment 消息附件。可用性约束：storage_url / provider_url / inline_data
// 至少一个存在才算可取。storage_url 一经写入即为权威来源，不再重推导。
// db.inbox_attachment.createIndex({ message_id:1, external_id:1 }, { unique:true })
type Attachment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	MessageID  primitive.ObjectID `bson:"message_id"    json:"message_id"`
	AccountID  primitive.ObjectID `bson:"account_id"    json:"account_id"`
	ExternalID string             `bson:"external_id"   json:"external_id"`

	Mime     string `bson:"mime,omitempty"     json:"mime,omitempty"`
	Filename string `bson:"filename,omitempty" json:"filename,omitempty"`
	Size     int64  `bson:"size,omitempty"     json:"size,omitempty"`

	InlineData           string    `bson:"inline_data,omitempty"             json:"inline_data,omitempty"` // base64
	ProviderURL          string    `bson:"provider_url,omitempty"            json:"provider_url,omitempty"`
	ProviderURLExpiresAt time.Time `bson:"provider_url_expires_at,omitempty" json:"provider_url_expires_at,omitempty"`
	StorageKey           string    `bson:"storage_key,omitempty"             json:"storage_key,omitempty"`
	StorageURL           string    `bson:"storage_url,omitempty"             json:"storage_url,omitempty"`
	UploadedAt           time.Time `bson:"uploaded_at,omitempty"             json:"uploaded_at,omitempty"`

	Media AttachmentMedia `bson:"media,omitempty" json:"media,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (*Attachment) GetTableName() string { return "inbox_attachment" }

// Available 附件是否有任何可取来源。
func (a *Attachment) Available() bool {
	return a.StorageURL != "" || a.ProviderURL != "" || a.InlineData != ""
}
