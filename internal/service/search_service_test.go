package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPostsInRankOrder(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()
	u := e.user(t, "john")
	weak, err := e.posts.Publish(ctx, u.ID, "one galaxy")
	require.NoError(t, err)
	strong, err := e.posts.Publish(ctx, u.ID, "galaxy galaxy galaxy")
	require.NoError(t, err)
	_, err = e.posts.Publish(ctx, u.ID, "nothing to see")
	require.NoError(t, err)

	page, err := e.search.SearchPosts(ctx, "galaxy", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, strong.ID, page.Items[0].ID)
	assert.Equal(t, weak.ID, page.Items[1].ID)
	assert.Equal(t, int64(2), page.Total)
}

func TestSearchSkipsStaleHits(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()
	// a document whose row never existed
	require.NoError(t, e.engine.Upsert(ctx, "post", "404", map[string]any{"body": "ghost galaxy"}))
	require.NoError(t, e.engine.Upsert(ctx, "post", "not-a-number", map[string]any{"body": "galaxy"}))

	page, err := e.search.SearchPosts(ctx, "galaxy", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(2), page.Total)
}

func TestSearchDisabledOrBlank(t *testing.T) {
	e := newEnv(t, envOpts{noSearch: true})
	ctx := context.Background()
	u := e.user(t, "john")
	for i := 0; i < 3; i++ {
		_, err := e.posts.Publish(ctx, u.ID, fmt.Sprintf("galaxy %d", i))
		require.NoError(t, err)
	}

	page, err := e.search.SearchPosts(ctx, "galaxy", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)

	page, err = e.search.SearchPosts(ctx, "   ", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
