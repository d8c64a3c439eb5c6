package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"carecall-monitor/internal/adapter"
)

// 适配器类型取值
const (
	AdapterAuto        = "auto"
	AdapterSyslog      = "syslog"
	AdapterEventStream = "eventstream"
)

// SiteConfig 单个站点的接入配置
// Adapter 为 auto 时按已填写的协议段自动判别
type SiteConfig struct {
	ID          string                     `yaml:"id"`
	SiteName    string                     `yaml:"site_name"`
	IsActive    bool                       `yaml:"is_active"`
	Adapter     string                     `yaml:"adapter,omitempty"`
	Syslog      *adapter.SyslogConfig      `yaml:"syslog,omitempty"`
	EventStream *adapter.EventStreamConfig `yaml:"eventstream,omitempty"`
}

// ResolveAdapterKind 确定站点使用的适配器类型
// 显式指定优先；auto 按 Syslog → EventStream 顺序取第一个已配置的协议段
func (s SiteConfig) ResolveAdapterKind() (string, error) {
	kind := s.Adapter
	if kind == "" {
		kind = AdapterAuto
	}
	switch kind {
	case AdapterSyslog:
		if s.Syslog == nil {
			return "", fmt.Errorf("site %s: syslog adapter requested but no syslog config", s.ID)
		}
		return AdapterSyslog, nil
	case AdapterEventStream:
		if s.EventStream == nil {
			return "", fmt.Errorf("site %s: eventstream adapter requested but no eventstream config", s.ID)
		}
		return AdapterEventStream, nil
	case AdapterAuto:
		if s.Syslog != nil {
			return AdapterSyslog, nil
		}
		if s.EventStream != nil {
			return AdapterEventStream, nil
		}
		return "", fmt.Errorf("site %s: no adapter config present", s.ID)
	default:
		return "", fmt.Errorf("site %s: unknown adapter kind %q", s.ID, kind)
	}
}

type sitesFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// LoadSites 从 YAML 文件加载站点清单
func LoadSites(path string) ([]SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}
	for i, s := range f.Sites {
		if s.ID == "" {
			return nil, fmt.Errorf("sites[%d]: id is required", i)
		}
		if s.SiteName == "" {
			return nil, fmt.Errorf("sites[%d]: site_name is required", i)
		}
	}
	return f.Sites, nil
}
