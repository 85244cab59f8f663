package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContactInfo 结构化联系方式（档案补全时从 provider 拉到）。
type ContactInfo struct {
	Emails  []string `bson:"emails,omitempty"  json:"emails,omitempty"`
	Phones  []string `bson:"phones,omitempty"  json:"phones,omitempty"`
	Socials []string `bson:"socials,omitempty" json:"socials,omitempty"`
}

// Contact 账号已知的一个外部档案。
// 由参与者/发信人解析产生；档案补全异步进行；每次交互都会刷新 last_interaction_at。
// db.inbox_contact.createIndex({ account_id:1, external_id:1 }, { unique:true })
// db.inbox_contact.createIndex({ owner_user_id:1, last_interaction_at:-1 })
type Contact struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"   json:"id,omitempty"`
	AccountID   primitive.ObjectID `bson:"account_id"      json:"account_id"`
	OwnerUserID string             `bson:"owner_user_id"   json:"owner_user_id"`
	ExternalID  string             `bson:"external_id"     json:"external_id"`

	FirstName       string      `bson:"first_name,omitempty"       json:"first_name,omitempty"`
	LastName        string      `bson:"last_name,omitempty"        json:"last_name,omitempty"`
	Headline        string      `bson:"headline,omitempty"         json:"headline,omitempty"`
	PictureURL      string      `bson:"picture_url,omitempty"      json:"picture_url,omitempty"`
	ProfileURL      string      `bson:"profile_url,omitempty"      json:"profile_url,omitempty"`
	Occupation      string      `bson:"occupation,omitempty"       json:"occupation,omitempty"`
	Location        string      `bson:"location,omitempty"         json:"location,omitempty"`
	NetworkDistance string      `bson:"network_distance,omitempty" json:"network_distance,omitempty"` // FIRST/SECOND/THIRD/OUT_OF_NETWORK
	Info            ContactInfo `bson:"info,omitempty"             json:"info,omitempty"`

	LastInteractionAt time.Time `bson:"last_interaction_at" json:"last_interaction_at"`

	State     State     `bson:"state"           json:"state"`
	CreatedAt time.Time `bson:"created_at"      json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"      json:"updated_at"`
}

func (*Contact) GetTableName() string { return "inbox_contact" }
