package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"shorturl/pkg/logger"
)

func TestLogAuditor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewLogAuditor(logger.NewFromCore(core))

	a.Log(context.Background(), "user-1", ActionRename, EntityShortLink, "old -> new")

	entries := logs.FilterMessage("Audit").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, ActionRename, fields["action"])
	assert.Equal(t, EntityShortLink, fields["entity_type"])
	assert.Equal(t, "audit", fields["component"])
}
