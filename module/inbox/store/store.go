package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"LinkProject/module/inbox/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store 聚合所有实体 DAO，句柄注入一次。
type Store struct {
	Accounts      *AccountDAO
	Chats         *ChatDAO
	Attendees     *AttendeeDAO
	Contacts      *ContactDAO
	Messages      *MessageDAO
	Attachments   *AttachmentDAO
	ProfileViews  *ProfileViewDAO
	Subscriptions *SubscriptionDAO
}

func New(db *mongo.Database) *Store {
	return &Store{
		Accounts:      &AccountDAO{DB: db},
		Chats:         &ChatDAO{DB: db},
		Attendees:     &AttendeeDAO{DB: db},
		Contacts:      &ContactDAO{DB: db},
		Messages:      &MessageDAO{DB: db},
		Attachments:   &AttachmentDAO{DB: db},
		ProfileViews:  &ProfileViewDAO{DB: db},
		Subscriptions: &SubscriptionDAO{DB: db},
	}
}

// Page 游标分页结果。
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func ptr[T any](v T) *T { return &v }

// stateFilter 把可见性过滤翻译成查询条件。所有列表/查询显式传 Visibility。
func stateFilter(vis model.Visibility) bson.M {
	switch vis {
	case model.VisibleActive:
		return bson.M{"state": model.StateActive}
	case model.VisibleDeleted:
		return bson.M{"state": model.StateDeleted}
	default:
		return bson.M{}
	}
}

// encodeCursor 游标 = base64("<时间纳秒>|<_id hex>")，对调用方不透明。
func encodeCursor(t time.Time, id primitive.ObjectID) string {
	raw := fmt.Sprintf("%d|%s", t.UnixNano(), id.Hex())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, primitive.ObjectID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, primitive.NilObjectID, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, primitive.NilObjectID, fmt.Errorf("bad cursor")
	}
	var ns int64
	if _, err := fmt.Sscanf(parts[0], "%d", &ns); err != nil {
		return time.Time{}, primitive.NilObjectID, err
	}
	id, err := primitive.ObjectIDFromHex(parts[1])
	if err != nil {
		return time.Time{}, primitive.NilObjectID, err
	}
	return time.Unix(0, ns), id, nil
}

// cursorCond 组合 (field < t) OR (field == t AND _id < id) 的翻页条件。
func cursorCond(field string, t time.Time, id primitive.ObjectID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{field: bson.M{"$lt": t}},
		bson.M{field: t, "_id": bson.M{"$lt": id}},
	}}
}
