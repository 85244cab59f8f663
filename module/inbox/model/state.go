package model

// State 实体生命周期状态。软删不散落 bool 字段，统一用状态列。
type State string

const (
	StateActive  State = "active"
	StateDeleted State = "deleted"
)

// Visibility 仓储查询的可见性过滤，所有查询显式携带。
type Visibility int

const (
	VisibleActive  Visibility = iota // 只看 active
	VisibleDeleted                   // 只看 deleted
	VisibleAny                       // 不过滤
)
