package kv

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("key not found")

// Store is the durable key-value interface backing the collection snapshots.
// Values are opaque JSON blobs; absence is reported as ErrNotFound so callers
// can tell an empty store from a transport failure.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Key formats used by the collection store.
const (
	KeyCart     = "cart:%s"     // cart:{user_id}
	KeyWishlist = "wishlist:%s" // wishlist:{user_id}
)

func CartKey(userID string) string     { return fmt.Sprintf(KeyCart, userID) }
func WishlistKey(userID string) string { return fmt.Sprintf(KeyWishlist, userID) }
