package models

import (
	"fmt"
	"time"
)

// CallType 呼叫类型
type CallType string

const (
	CallTypeEmergency   CallType = "Emergency"   // 紧急呼叫（拉绳/紧急按钮）
	CallTypeStaffAssist CallType = "StaffAssist" // 员工协助
	CallTypeNormal      CallType = "Normal"      // 普通呼叫
)

// Priority 呼叫类型对应的优先级序号（1 最高）
func (t CallType) Priority() int {
	switch t {
	case CallTypeEmergency:
		return 1
	case CallTypeStaffAssist:
		return 2
	default:
		return 3
	}
}

// CallTypeFromPriority 根据优先级序号还原呼叫类型
func CallTypeFromPriority(priority int) CallType {
	switch priority {
	case 1:
		return CallTypeEmergency
	case 2:
		return CallTypeStaffAssist
	default:
		return CallTypeNormal
	}
}

// RoomKey 构建房间键（站点内唯一：房间 + 呼叫类型）
// 同一物理事件的多播副本必须落到同一个键上
func RoomKey(room string, callType CallType) string {
	return fmt.Sprintf("%s:%s", room, callType)
}

// ActiveCall 当前未解除的呼叫
// 不变量：同一站点内每个 room_key 最多一条活跃记录
type ActiveCall struct {
	SiteID      string    `json:"site_id"`
	RoomKey     string    `json:"room_key"`
	CallType    CallType  `json:"call_type"`
	Priority    int       `json:"priority"`
	StartTime   time.Time `json:"start_time"`
	EventID     string    `json:"event_id,omitempty"` // 上游事件关联 ID（可选）
	DisplayText string    `json:"display_text"`
	Subtext     string    `json:"subtext,omitempty"`
	ColorHint   string    `json:"color_hint,omitempty"` // 上游下发的颜色（可选）
}

// CallHistoryRecord 呼叫历史记录（不可变，归档时写入一次）
type CallHistoryRecord struct {
	SiteID          string    `json:"site_id"`
	RoomKey         string    `json:"room_key"`
	CallType        CallType  `json:"call_type"`
	Priority        int       `json:"priority"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	EventID         string    `json:"event_id,omitempty"`
	DisplayText     string    `json:"display_text"`
	Subtext         string    `json:"subtext,omitempty"`
}

// DecoratedCall 读取时装饰后的活跃呼叫（附带已等待时间与紧急度）
type DecoratedCall struct {
	ActiveCall
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	UrgencyLevel   string `json:"urgency_level"`
}

// CallEvent 协议适配器产出的归一化呼叫事件
type CallEvent struct {
	Room      string    `json:"room"`
	CallType  CallType  `json:"call_type"`
	Priority  int       `json:"priority"`
	StartTime time.Time `json:"start_time"`
	EventID   string    `json:"event_id,omitempty"`
	Text      string    `json:"text"`
	Subtext   string    `json:"subtext,omitempty"`
	Color     string    `json:"color,omitempty"`
}
