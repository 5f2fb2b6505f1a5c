package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient()

	require.NoError(t, c.Upload(ctx, "docs", "incoming/1/a.pdf", "application/pdf", strings.NewReader("hello")))
	assert.Equal(t, 1, c.Len())

	rc, err := c.Download(ctx, "docs", "incoming/1/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	link, err := c.GetPresignedURL(ctx, "docs", "incoming/1/a.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "expires=60")

	require.NoError(t, c.Delete(ctx, "docs", "incoming/1/a.pdf"))
	_, err = c.Download(ctx, "docs", "incoming/1/a.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
