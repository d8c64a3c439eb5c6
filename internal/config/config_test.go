package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecall-monitor/internal/adapter"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "carecall", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sites.yaml", cfg.SitesFile)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "carecall",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=carecall sslmode=disable",
		c.GetDSN())
}

func writeSitesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSites(t *testing.T) {
	path := writeSitesFile(t, `
sites:
  - id: site-1
    site_name: Hilltop House
    is_active: true
    syslog:
      listen_addr: 0.0.0.0
      listen_port: 30514
  - id: site-2
    site_name: Lakeview Lodge
    is_active: true
    eventstream:
      host: 10.0.0.20
      port: 8443
      device_id: monitor-01
  - id: site-3
    site_name: Dormant Site
    is_active: false
`)

	sites, err := LoadSites(path)
	require.NoError(t, err)
	require.Len(t, sites, 3)

	assert.Equal(t, "site-1", sites[0].ID)
	assert.NotNil(t, sites[0].Syslog)
	assert.Equal(t, 30514, sites[0].Syslog.ListenPort)
	assert.Nil(t, sites[0].EventStream)

	assert.NotNil(t, sites[1].EventStream)
	assert.Equal(t, "monitor-01", sites[1].EventStream.DeviceID)

	assert.False(t, sites[2].IsActive)
}

func TestLoadSitesMissingID(t *testing.T) {
	path := writeSitesFile(t, `
sites:
  - site_name: Nameless
    is_active: true
`)

	_, err := LoadSites(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestLoadSitesMissingFile(t *testing.T) {
	_, err := LoadSites(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func syslogConfig() *adapter.SyslogConfig {
	return &adapter.SyslogConfig{ListenAddr: "0.0.0.0", ListenPort: 30514}
}

func eventStreamConfig() *adapter.EventStreamConfig {
	return &adapter.EventStreamConfig{Host: "10.0.0.20", Port: 8443, DeviceID: "monitor-01"}
}

func TestResolveAdapterKind(t *testing.T) {
	tests := []struct {
		name    string
		site    SiteConfig
		want    string
		wantErr bool
	}{
		{
			name: "auto picks syslog",
			site: SiteConfig{ID: "s1", Syslog: syslogConfig()},
			want: AdapterSyslog,
		},
		{
			name: "auto picks eventstream",
			site: SiteConfig{ID: "s2", EventStream: eventStreamConfig()},
			want: AdapterEventStream,
		},
		{
			name: "explicit syslog",
			site: SiteConfig{ID: "s3", Adapter: AdapterSyslog, Syslog: syslogConfig()},
			want: AdapterSyslog,
		},
		{
			name:    "explicit but unconfigured",
			site:    SiteConfig{ID: "s4", Adapter: AdapterEventStream},
			wantErr: true,
		},
		{
			name:    "auto with nothing configured",
			site:    SiteConfig{ID: "s5"},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			site:    SiteConfig{ID: "s6", Adapter: "carrier-pigeon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := tt.site.ResolveAdapterKind()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}
