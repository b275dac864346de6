package utils

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresignGetIsOffline(t *testing.T) {
	ctx := context.Background()
	c, err := NewR2Client(ctx, "acct123", "AKIDEXAMPLE", "secret", "premium")
	require.NoError(t, err)

	raw, err := c.PresignGet(ctx, "premium/quantum-basics-course/intro.mp4", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "acct123.r2.cloudflarestorage.com", u.Host)
	assert.Equal(t, "/premium/premium/quantum-basics-course/intro.mp4", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
