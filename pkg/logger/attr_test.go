package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestIdentifierAttrs(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	assert.Equal(t, "tenant_id", logger.TenantID(id).Key)
	assert.Equal(t, id.String(), logger.TenantID(id).Value.String())
	assert.Equal(t, "user_id", logger.UserID(id).Key)
	assert.Equal(t, "subscription_id", logger.SubscriptionID(id).Key)
	assert.Equal(t, "plan", logger.PlanSlug("pro").Key)
	assert.Equal(t, int64(3), logger.Quantity(3).Value.Int64())
}

func TestNewWritesConfiguredFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithJSONFormat(),
		logger.WithOutput(&buf),
		logger.WithAttr(logger.Component("billing")),
	)
	log.Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"component":"billing"`)
}
