package bolt_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/voicechat/internal/adapters/storage/bolt"
	"github.com/PabloGalante/voicechat/internal/domain"
)

func openStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "conv", "voicechat.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreRoundTripKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	conv, err := store.CreateConversation(ctx, map[string]string{"topic": "voicechat"})
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		_, err := store.AddItem(ctx, conv.ID, domain.NewItem{Role: domain.RoleUser, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	items, err := store.GetItems(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, items, 300)
	for i, item := range items {
		require.Equal(t, fmt.Sprintf("m%d", i), item.Content)
	}
}

func TestBoltStoreUnknownAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.AddItem(ctx, "conv_missing", domain.NewItem{Role: domain.RoleUser, Content: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	deleted, err := store.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.DeleteConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = store.GetItems(ctx, conv.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBoltStoreRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	_, err = store.AddItem(ctx, conv.ID, domain.NewItem{Role: "", Content: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidRole)

	items, err := store.GetItems(ctx, conv.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}
