package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchwatch/internal/config"
)

func TestRenderNotes(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2023, time.June, 6, 12, 0, 0, 0, time.UTC)
	oldText := "BUGFIX: old fix\n"
	newText := "BUGFIX: old fix\nBUGFIX: new fix\nMODDING: new hook\n"

	rich, err := RenderNotes(cfg, oldText, newText, false, now)
	require.NoError(t, err)
	require.Len(t, rich, 1)
	assert.True(t, strings.HasPrefix(rich[0], "# RELEASE NOTES - Jun 6 2023"))
	assert.Contains(t, rich[0], "**BUG FIXES**\n- BUGFIX: new fix\n")
	assert.Contains(t, rich[0], "**MODDING**\n- MODDING: new hook\n")
	assert.NotContains(t, rich[0], "old fix")

	plain, err := RenderNotes(cfg, oldText, newText, true, now)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Contains(t, plain[0], "*BUG FIXES*\nBUGFIX: new fix\n")
}

func TestRenderNotesChunks(t *testing.T) {
	cfg := config.Default()
	cfg.Notifier.MaxMessageLength = 60
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("a fairly long general line number ")
		b.WriteByte(byte('0' + i))
		b.WriteByte('\n')
	}
	parts, err := RenderNotes(cfg, "", b.String(), false, time.Now())
	require.NoError(t, err)
	assert.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 60)
	}
}

func TestRenderNotesBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Classifier.Policy = "most_matches"
	_, err := RenderNotes(cfg, "", "x\n", false, time.Now())
	assert.Error(t, err)
}
