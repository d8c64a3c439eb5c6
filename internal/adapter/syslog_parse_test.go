package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecall-monitor/internal/models"
)

func TestParseSyslogFrame_Emergency(t *testing.T) {
	raw := `Message "[RM 12 BED] EMERGENCY #3" has been dispatched to Group A`

	parsed, ok := ParseSyslogFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "RM 12 BED", parsed.Room)
	assert.Equal(t, models.CallTypeEmergency, parsed.CallType)
	assert.Equal(t, 1, parsed.Priority)
	assert.False(t, parsed.Cancelled)
}

func TestParseSyslogFrame_NormalCall(t *testing.T) {
	raw := `Message "[RM 7] CALL #12" has been dispatched to All Displays`

	parsed, ok := ParseSyslogFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "RM 7", parsed.Room)
	assert.Equal(t, models.CallTypeNormal, parsed.CallType)
	assert.Equal(t, 3, parsed.Priority)
	assert.False(t, parsed.Cancelled)
}

func TestParseSyslogFrame_StaffAssist(t *testing.T) {
	raw := `Message "[RM 3 ENSUITE] CALL #5 Staff Assist" has been dispatched to Group B`

	parsed, ok := ParseSyslogFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "RM 3 ENSUITE", parsed.Room)
	assert.Equal(t, models.CallTypeStaffAssist, parsed.CallType)
	assert.Equal(t, 2, parsed.Priority)
}

func TestParseSyslogFrame_Cancelled(t *testing.T) {
	raw := `Message "Cancelled: [RM 12 BED] EMERGENCY #3" has been dispatched to Group A`

	parsed, ok := ParseSyslogFrame(raw)
	require.True(t, ok)
	assert.True(t, parsed.Cancelled)
	assert.Equal(t, "RM 12 BED", parsed.Room)
	assert.Equal(t, models.CallTypeEmergency, parsed.CallType)
}

func TestParseSyslogFrame_IgnoresNonDispatchedFrames(t *testing.T) {
	for _, raw := range []string{
		`Message "[RM 12 BED] CALL #3" completed successfully`,
		`Message "[RM 12 BED] CALL #3" purged due to timeout`,
		`heartbeat from gateway 10.0.0.5`,
		``,
	} {
		_, ok := ParseSyslogFrame(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestParseSyslogFrame_IgnoresUnknownPayloads(t *testing.T) {
	for _, raw := range []string{
		`Message "system test in progress" has been dispatched to Group A`,
		`Message "[RM 12 BED] DOORBELL #1" has been dispatched to Group A`,
		`Message "RM 12 BED CALL #3" has been dispatched to Group A`,
	} {
		_, ok := ParseSyslogFrame(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestExtractDispatchedPayload(t *testing.T) {
	payload, ok := ExtractDispatchedPayload(`Message "Cancelled: [RM 1] CALL #9" has been dispatched to X`)
	require.True(t, ok)
	assert.Equal(t, "Cancelled: [RM 1] CALL #9", payload)
}
