package provider

import "time"

// AccountRef provider 侧账号句柄（调用鉴权用）。
type AccountRef struct {
	AccountExternalID string
	Token             string
}

// ChatItem provider 返回的会话条目。
type ChatItem struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"` // direct/group
	Name          string    `json:"name"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count"`
	ReadOnly      bool      `json:"read_only"`
	SenderID      string    `json:"sender_id,omitempty"`    // 最近发信人（机构判定用）
	AttendeeIDs   []string  `json:"attendee_ids,omitempty"` // 参与者ID（机构判定用）
}

// ChatPage 分页返回；Cursor 为空表示没有下一页。条目数可能少于请求数。
type ChatPage struct {
	Items  []ChatItem `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}

// AttendeeItem 会话参与者。
type AttendeeItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsSelf     bool   `json:"is_self"`
	Hidden     bool   `json:"hidden"`
	ProfileURL string `json:"profile_url,omitempty"`
	PictureURL string `json:"picture_url,omitempty"`
}

// AttachmentItem 消息附件引用。provider URL 有时效。
type AttachmentItem struct {
	ID           string    `json:"id"`
	Mime         string    `json:"mime"`
	Filename     string    `json:"filename,omitempty"`
	Size         int64     `json:"size,omitempty"`
	URL          string    `json:"url,omitempty"`
	URLExpiresAt time.Time `json:"url_expires_at,omitempty"`
	InlineData   string    `json:"inline_data,omitempty"` // base64，小附件内联
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	DurationSec  int       `json:"duration_sec,omitempty"`
	IsSticker    bool      `json:"is_sticker,omitempty"`
	IsGif        bool      `json:"is_gif,omitempty"`
	IsVoice      bool      `json:"is_voice,omitempty"`
}

// MessageItem 一条消息。IsSender 表示账号本人发出。
type MessageItem struct {
	ID          string           `json:"id"`
	ChatID      string           `json:"chat_id"`
	SenderID    string           `json:"sender_id"`
	IsSender    bool             `json:"is_sender"`
	Type        string           `json:"type,omitempty"`
	Body        string           `json:"body"`
	SentAt      time.Time        `json:"sent_at"`
	Seen        bool             `json:"seen,omitempty"`
	Delivered   bool             `json:"delivered,omitempty"`
	Edited      bool             `json:"edited,omitempty"`
	Deleted     bool             `json:"deleted,omitempty"`
	Attachments []AttachmentItem `json:"attachments,omitempty"`
}

type MessagePage struct {
	Items  []MessageItem `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}

// Profile 档案补全返回。
type Profile struct {
	ID              string   `json:"id"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Headline        string   `json:"headline,omitempty"`
	PictureURL      string   `json:"picture_url,omitempty"`
	ProfileURL      string   `json:"profile_url,omitempty"`
	Occupation      string   `json:"occupation,omitempty"`
	Location        string   `json:"location,omitempty"`
	NetworkDistance string   `json:"network_distance,omitempty"`
	Emails          []string `json:"emails,omitempty"`
	Phones          []string `json:"phones,omitempty"`
	Socials         []string `json:"socials,omitempty"`
}

// SendResult 发送确认。provider 偶尔不回消息ID，调用方要兜底占位ID。
type SendResult struct {
	ProviderID string `json:"provider_id,omitempty"`
	Status     string `json:"status"`
}

// PatchAction 会话操作。
type PatchAction string

const (
	PatchMarkRead   PatchAction = "mark_read"
	PatchMarkUnread PatchAction = "mark_unread"
	PatchArchive    PatchAction = "archive"
)

// PatchResult patch 返回。
type PatchResult struct {
	Success bool           `json:"success"`
	Fields  map[string]any `json:"fields,omitempty"`
}
