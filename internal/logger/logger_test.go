package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("success - production logger without sentry", func(t *testing.T) {
		l, err := New(Config{})
		require.NoError(t, err)
		require.NotNil(t, l.Zap())
		assert.Nil(t, l.sentry)
		l.Flush(time.Millisecond)
	})

	t.Run("success - debug logger enables debug level", func(t *testing.T) {
		l, err := New(Config{Debug: true})
		require.NoError(t, err)
		assert.NotNil(t, l.Zap().Check(-1, "debug entry"))
	})

	t.Run("error - malformed sentry dsn", func(t *testing.T) {
		_, err := New(Config{SentryDSN: "not a dsn"})
		require.Error(t, err)
	})
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
