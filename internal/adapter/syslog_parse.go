package adapter

import (
	"regexp"
	"strings"

	"carecall-monitor/internal/models"
)

// Syslog 帧格式（设施寻呼网关的自由文本 UDP 报文）：
//
//	Message "<payload>" has been dispatched to <display group>
//	<payload> := (Cancelled: )?[<room>] (EMERGENCY|CALL) #<n>( Staff Assist)?
//
// 非 "dispatched" 框架的报文（如 "completed successfully"、"purged due to ..."）
// 不是错误，直接忽略
var (
	dispatchedRe = regexp.MustCompile(`Message "(.*)" has been dispatched`)
	payloadRe    = regexp.MustCompile(`^(Cancelled: )?\[([^\]]+)\] (EMERGENCY|CALL) #\d+( Staff Assist)?`)
)

// ParsedCall Syslog 报文解析结果
type ParsedCall struct {
	Room      string
	CallType  models.CallType
	Priority  int
	Cancelled bool
}

// ExtractDispatchedPayload 从 "dispatched" 包装中提取引号内的载荷
func ExtractDispatchedPayload(raw string) (string, bool) {
	m := dispatchedRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParsePayload 解析载荷：Cancelled 前缀、方括号房间标记、类型标记
// 未知类型视为无法识别，丢弃
func ParsePayload(payload string) (ParsedCall, bool) {
	m := payloadRe.FindStringSubmatch(payload)
	if m == nil {
		return ParsedCall{}, false
	}

	parsed := ParsedCall{
		Room:      strings.TrimSpace(m[2]),
		Cancelled: m[1] != "",
	}

	switch {
	case m[3] == "EMERGENCY":
		parsed.CallType = models.CallTypeEmergency
	case m[4] != "": // CALL ... Staff Assist
		parsed.CallType = models.CallTypeStaffAssist
	default: // CALL
		parsed.CallType = models.CallTypeNormal
	}
	parsed.Priority = parsed.CallType.Priority()

	return parsed, true
}

// ParseSyslogFrame 完整解析一条 UDP 报文
func ParseSyslogFrame(raw string) (ParsedCall, bool) {
	payload, ok := ExtractDispatchedPayload(raw)
	if !ok {
		return ParsedCall{}, false
	}
	return ParsePayload(payload)
}
