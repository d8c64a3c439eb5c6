package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "carecall_"

// 包加载时注册到默认 registry，经 promhttp 暴露
var (
	// EventsReceived 适配器收到的报文数（按站点）
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "events_received_total",
			Help: "Raw adapter events received by site",
		},
		[]string{"site"},
	)
	// EventsProcessed 去重后处理的 raise 事件数
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "events_processed_total",
			Help: "Raise events processed after dedup by site",
		},
		[]string{"site"},
	)
	// EventsCancelled 去重后处理的 cancel 事件数
	EventsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "events_cancelled_total",
			Help: "Cancel events processed after dedup by site",
		},
		[]string{"site"},
	)
	// DedupDrops 去重窗口内被抑制的重复事件数
	DedupDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "dedup_drops_total",
			Help: "Duplicate events suppressed within the dedup window by site",
		},
		[]string{"site"},
	)
	// ParseDrops 无法解析而被丢弃的报文数（适配器不感知站点，按协议维度计）
	ParseDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "parse_drops_total",
			Help: "Unparsable wire messages dropped by adapter kind",
		},
		[]string{"adapter"},
	)
	// NotificationsSent 推送成功的通知数
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "notifications_sent_total",
			Help: "Push notifications delivered by site",
		},
		[]string{"site"},
	)
	// NotificationsPruned 因令牌失效被清理的令牌数
	NotificationsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "notifications_pruned_total",
			Help: "Stale device tokens pruned by site",
		},
		[]string{"site"},
	)
)
