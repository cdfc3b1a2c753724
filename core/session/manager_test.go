package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConnectAndValidate(t *testing.T) {
	m := NewManager("secret", time.Minute, 4)

	token, sess, err := m.Connect("dev-1", "Living Room", "1.0", "android")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if token == "" || sess.ID == "" {
		t.Fatal("empty token or session id")
	}

	got, err := m.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.DeviceID != "dev-1" {
		t.Errorf("device = %q", got.DeviceID)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	m := NewManager("secret", 50*time.Millisecond, 4)
	token, _, err := m.Connect("dev-1", "d", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expired token: got %v, want ErrInvalidSession", err)
	}
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	m := NewManager("secret", 120*time.Millisecond, 4)
	token, _, err := m.Connect("dev-1", "d", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		time.Sleep(60 * time.Millisecond)
		if _, err := m.Heartbeat(token); err != nil {
			t.Fatalf("heartbeat %d: %v", i, err)
		}
	}
	if _, err := m.Validate(token); err != nil {
		t.Errorf("validate after heartbeats: %v", err)
	}
}

func TestDisconnectInvalidatesImmediately(t *testing.T) {
	m := NewManager("secret", time.Minute, 4)
	token, _, err := m.Connect("dev-1", "d", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Disconnect(token); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := m.Validate(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("token after disconnect: got %v, want ErrInvalidSession", err)
	}
	if err := m.Disconnect(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("second disconnect: got %v, want ErrInvalidSession", err)
	}
}

func TestReconnectReplacesOldToken(t *testing.T) {
	m := NewManager("secret", time.Minute, 4)
	oldToken, _, err := m.Connect("dev-1", "d", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}
	newToken, _, err := m.Connect("dev-1", "d", "1.1", "ios")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Validate(oldToken); !errors.Is(err, ErrInvalidSession) {
		t.Error("old token survived a reconnect")
	}
	if _, err := m.Validate(newToken); err != nil {
		t.Errorf("new token rejected: %v", err)
	}
}

func TestCapacityEvictsStalestHeartbeat(t *testing.T) {
	m := NewManager("secret", time.Minute, 2)

	first, _, err := m.Connect("dev-1", "one", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second, _, err := m.Connect("dev-2", "two", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	third, _, err := m.Connect("dev-3", "three", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Validate(first); !errors.Is(err, ErrInvalidSession) {
		t.Error("oldest session survived capacity eviction")
	}
	if _, err := m.Validate(second); err != nil {
		t.Errorf("second session evicted: %v", err)
	}
	if _, err := m.Validate(third); err != nil {
		t.Errorf("newest session evicted: %v", err)
	}
}

func TestGarbageTokensRejectedUniformly(t *testing.T) {
	m := NewManager("secret", time.Minute, 4)

	other := NewManager("other-secret", time.Minute, 4)
	forged, _, err := other.Connect("dev-1", "d", "1.0", "ios")
	if err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{"", "nonsense", forged} {
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("token %q: got %v, want ErrInvalidSession", token, err)
		}
	}
}

func TestSweepDropsExpired(t *testing.T) {
	m := NewManager("secret", 30*time.Millisecond, 8)
	if _, _, err := m.Connect("dev-1", "d", "1.0", "ios"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if dropped := m.Sweep(); dropped != 1 {
		t.Errorf("sweep dropped %d, want 1", dropped)
	}
	if m.Count() != 0 {
		t.Errorf("count = %d after sweep", m.Count())
	}
}

func TestConcurrentConnects(t *testing.T) {
	m := NewManager("secret", time.Minute, 64)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			token, _, err := m.Connect("", "device", "1.0", "linux")
			if err != nil {
				t.Errorf("connect: %v", err)
				return
			}
			if _, err := m.Heartbeat(token); err != nil {
				t.Errorf("heartbeat: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if m.Count() != 32 {
		t.Errorf("count = %d, want 32", m.Count())
	}
}
