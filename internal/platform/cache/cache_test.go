package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// failingCache errors on every call.
type failingCache struct {
	mu    sync.Mutex
	calls int
}

func (f *failingCache) hit() error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("connection refused")
}

func (f *failingCache) Get(context.Context, string) ([]byte, error) { return nil, f.hit() }
func (f *failingCache) Set(context.Context, string, []byte) error   { return f.hit() }
func (f *failingCache) Delete(context.Context, ...string) error     { return f.hit() }
func (f *failingCache) DeletePrefix(context.Context, string) error  { return f.hit() }

func TestLRU_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, time.Minute)

	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("empty cache err = %v, want ErrCacheMiss", err)
	}
	c.Set(ctx, "a", []byte("1"))
	got, err := c.Get(ctx, "a")
	if err != nil || string(got) != "1" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	c.Delete(ctx, "a")
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("after delete err = %v, want ErrCacheMiss", err)
	}
}

func TestLRU_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, time.Minute)
	buf := []byte("abc")
	c.Set(ctx, "k", buf)
	buf[0] = 'z'
	if got, _ := c.Get(ctx, "k"); string(got) != "abc" {
		t.Errorf("cached value changed with caller buffer: %q", got)
	}
}

func TestLRU_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, 20*time.Millisecond)
	c.Set(ctx, "a", []byte("1"))
	time.Sleep(60 * time.Millisecond)
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired entry err = %v, want ErrCacheMiss", err)
	}
}

func TestLRU_Capacity(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)
	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Set(ctx, "c", []byte("3"))
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Error("oldest entry should have been evicted")
	}
}

func TestLRU_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, time.Minute)
	c.Set(ctx, "patient:u1:1", []byte("x"))
	c.Set(ctx, "patient:u1:2", []byte("x"))
	c.Set(ctx, "patient:u2:1", []byte("x"))
	c.DeletePrefix(ctx, "patient:u1:")
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if _, err := c.Get(ctx, "patient:u2:1"); err != nil {
		t.Errorf("unrelated key removed: %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(10, time.Minute)

	type item struct {
		Name string `json:"name"`
	}
	if err := SetJSON(ctx, c, "i", item{Name: "Rahim"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	got, ok := GetJSON[item](ctx, c, "i")
	if !ok || got.Name != "Rahim" {
		t.Errorf("GetJSON = %+v, %v", got, ok)
	}

	c.Set(ctx, "bad", []byte("{not json"))
	if _, ok := GetJSON[item](ctx, c, "bad"); ok {
		t.Error("corrupt entry should read as a miss")
	}
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	if err := c.Set(ctx, "a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Nop.Get err = %v", err)
	}
}

func TestTiered_RemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	remote := &failingCache{}
	c := NewTiered(NewLRU(10, time.Minute), remote, zerolog.Nop())

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set must not fail on remote error: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("Get = %q, %v; want v", got, err)
	}
	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("remote failure err = %v, want ErrCacheMiss", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete must not fail on remote error: %v", err)
	}
	if err := c.DeletePrefix(ctx, "k"); err != nil {
		t.Errorf("DeletePrefix must not fail on remote error: %v", err)
	}
	if remote.calls != 4 {
		t.Errorf("remote calls = %d, want 4", remote.calls)
	}
}

func TestTiered_RemoteHitFillsLocal(t *testing.T) {
	ctx := context.Background()
	local := NewLRU(10, time.Minute)
	remote := NewLRU(10, time.Minute)
	remote.Set(ctx, "k", []byte("v"))

	c := NewTiered(local, remote, zerolog.Nop())
	if got, err := c.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if got, err := local.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Errorf("local not filled: %q, %v", got, err)
	}
}

func TestTiered_DeleteClearsBothTiers(t *testing.T) {
	ctx := context.Background()
	local := NewLRU(10, time.Minute)
	remote := NewLRU(10, time.Minute)
	c := NewTiered(local, remote, zerolog.Nop())

	c.Set(ctx, "patient:1", []byte("v"))
	c.DeletePrefix(ctx, "patient:")
	if local.Len() != 0 || remote.Len() != 0 {
		t.Errorf("tiers not cleared: local=%d remote=%d", local.Len(), remote.Len())
	}
}

func TestRedis_BreakerOpensWhenServerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
		PoolSize:    1,
	})
	defer client.Close()

	r := NewRedis(client, "test:", time.Minute, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := r.Get(ctx, "k"); err == nil || errors.Is(err, ErrCacheMiss) {
			t.Fatalf("call %d: err = %v, want connection error", i, err)
		}
	}
	_, err := r.Get(ctx, "k")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if !strings.Contains(r.State(), "open") {
		t.Errorf("State = %s, want open", r.State())
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	if _, err := NewRedisClient("not-a-url"); err == nil {
		t.Error("expected parse error")
	}
}
