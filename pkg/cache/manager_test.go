package cache

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running. tests/integration covers the same paths against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func pageKey(class string, page int) CacheKey {
	return CacheKey{
		Endpoint: "class/" + class,
		QueryParams: url.Values{
			"pageNo":   []string{strconv.Itoa(page)},
			"pageSize": []string{"100"},
		},
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("Dati_Compatibilita", 1)
	entry := NewEntry([]byte(`{"records":[{"id":1}],"totalCount":1}`), 200, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want within (0, 5m]", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), pageKey("Dati_Compatibilita", 9))
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("Dati_Compatibilita", 1)
	entry := &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("Dati_Compatibilita", 1)
	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err == nil || err == ErrCacheMiss {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := pageKey("Dati_Compatibilita", 1)

	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), 200, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Purge(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	for _, key := range []CacheKey{
		pageKey("Dati_Compatibilita", 1),
		pageKey("Dati_Compatibilita", 2),
		pageKey("Dati_Prodotto_Compatibilita", 1),
	} {
		if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), 200, time.Minute)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	n, err := manager.Purge(ctx, "class/Dati_Compatibilita")
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() deleted %d keys, want 2", n)
	}

	if _, err := manager.Get(ctx, pageKey("Dati_Prodotto_Compatibilita", 1)); err != nil {
		t.Errorf("other class was purged: %v", err)
	}

	n, err = manager.Purge(ctx, "")
	if err != nil {
		t.Fatalf("Purge(all) failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge(all) deleted %d keys, want 1", n)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)

	err := manager.Set(context.Background(), pageKey("Dati_Compatibilita", 1), nil)
	if err == nil {
		t.Error("Set with nil entry should return error")
	}
}
