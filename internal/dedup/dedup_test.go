package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess_SuppressWithinTTL(t *testing.T) {
	engine := NewEngine(5 * time.Second)
	now := time.Now()

	assert.True(t, engine.ShouldProcess("RM 12 BED:Normal", "raise", now))
	assert.False(t, engine.ShouldProcess("RM 12 BED:Normal", "raise", now.Add(2*time.Second)))

	// TTL 过后再次放行
	assert.True(t, engine.ShouldProcess("RM 12 BED:Normal", "raise", now.Add(6*time.Second)))
}

func TestShouldProcess_ActionsIndependent(t *testing.T) {
	engine := NewEngine(5 * time.Second)
	now := time.Now()

	assert.True(t, engine.ShouldProcess("RM 12 BED:Normal", "raise", now))
	assert.True(t, engine.ShouldProcess("RM 12 BED:Normal", "cancel", now.Add(time.Second)))
}

func TestShouldProcess_KeysIndependent(t *testing.T) {
	engine := NewEngine(5 * time.Second)
	now := time.Now()

	assert.True(t, engine.ShouldProcess("RM 12 BED:Normal", "raise", now))
	assert.True(t, engine.ShouldProcess("RM 14 BED:Normal", "raise", now))
}

func TestShouldProcess_PurgesExpiredEntries(t *testing.T) {
	engine := NewEngine(time.Second)
	now := time.Now()

	engine.ShouldProcess("a", "raise", now)
	engine.ShouldProcess("b", "raise", now)

	// 过期清理后内部表不再保留旧键
	engine.ShouldProcess("c", "raise", now.Add(3*time.Second))

	engine.mu.Lock()
	size := len(engine.lastSeen)
	engine.mu.Unlock()
	assert.Equal(t, 1, size)
}

func TestReset(t *testing.T) {
	engine := NewEngine(time.Minute)
	now := time.Now()

	assert.True(t, engine.ShouldProcess("a", "raise", now))
	engine.Reset()
	assert.True(t, engine.ShouldProcess("a", "raise", now.Add(time.Second)))
}

func TestNewEngine_DefaultTTL(t *testing.T) {
	engine := NewEngine(0)
	assert.Equal(t, DefaultTTL, engine.ttl)
}
