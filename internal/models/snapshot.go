package models

import "time"

// MonitorSnapshot 站点监控器诊断快照（供 CRUD/API 层轮询）
type MonitorSnapshot struct {
	SiteID          string    `json:"site_id"`
	SiteName        string    `json:"site_name"`
	AdapterKind     string    `json:"adapter_kind"`
	MonitorState    string    `json:"monitor_state"` // standby / active / failed / stopped
	ConnState       string    `json:"conn_state"`    // disconnected / connecting / listening / stopped
	LastError       string    `json:"last_error,omitempty"`
	EventsReceived  uint64    `json:"events_received"`
	EventsProcessed uint64    `json:"events_processed"`
	EventsCancelled uint64    `json:"events_cancelled"`
	ParseDrops      uint64    `json:"parse_drops"`
	DedupDrops      uint64    `json:"dedup_drops"`
	StartedAt       time.Time `json:"started_at,omitempty"`
}

// AggregatedCalls 跨站点聚合结果
type AggregatedCalls struct {
	Sites       []SiteMeta                 `json:"sites"`
	CallsBySite map[string][]DecoratedCall `json:"calls_by_site"`
	TotalCount  int                        `json:"total_count"`
}

// SiteMeta 聚合结果中的站点元信息
type SiteMeta struct {
	SiteID    string `json:"site_id"`
	SiteName  string `json:"site_name"`
	CallCount int    `json:"call_count"`
}
