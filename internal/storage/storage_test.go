package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"sort"
	"testing"
)

func TestMemDriverRoundTrip(t *testing.T) {
	d := NewMemDriver(0)

	if err := d.Write("a", []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	v, ok, err := d.Read("a")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ok || !bytes.Equal(v, []byte("hello")) {
		t.Errorf("read = %q, ok=%v; want hello, true", v, ok)
	}

	if _, ok, _ := d.Read("missing"); ok {
		t.Error("expected missing key to report ok=false")
	}

	if err := d.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := d.Read("a"); ok {
		t.Error("expected removed key to be absent")
	}
}

func TestMemDriverCapacity(t *testing.T) {
	d := NewMemDriver(10)

	// key "k" (1 byte) + 9 bytes = exactly 10: fits.
	if err := d.Write("k", []byte("123456789")); err != nil {
		t.Fatalf("write at capacity: %v", err)
	}

	// One more byte pushes past the ceiling.
	err := d.Write("k", []byte("1234567890"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("write over capacity = %v, want ErrCapacityExceeded", err)
	}

	// Replacing with a smaller value must not count the old value.
	if err := d.Write("k", []byte("12")); err != nil {
		t.Errorf("shrinking write: %v", err)
	}
}

func TestMemDriverUsage(t *testing.T) {
	d := NewMemDriver(0)
	if err := d.Write("ab", []byte("xyz")); err != nil {
		t.Fatal(err)
	}
	if err := d.Write("c", []byte("1")); err != nil {
		t.Fatal(err)
	}

	u, err := d.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.TotalBytes != 7 {
		t.Errorf("TotalBytes = %d, want 7", u.TotalBytes)
	}
	if u.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", u.ItemCount)
	}
}

func TestUsagePercent(t *testing.T) {
	u := Usage{TotalBytes: 450}
	if got := u.Percent(1000); got != 45 {
		t.Errorf("Percent = %v, want 45", got)
	}
	if got := u.Percent(0); got != 0 {
		t.Errorf("Percent with zero capacity = %v, want 0", got)
	}
}

func TestFileDriver(t *testing.T) {
	dir := t.TempDir()
	d, err := NewFileDriver(dir, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		if err := d.Write("easychat_chat_history", []byte(`[{"sender":"user"}]`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		v, ok, err := d.Read("easychat_chat_history")
		if err != nil || !ok {
			t.Fatalf("read: ok=%v err=%v", ok, err)
		}
		if string(v) != `[{"sender":"user"}]` {
			t.Errorf("value = %q", v)
		}
	})

	t.Run("keys round trip through encoding", func(t *testing.T) {
		if err := d.Write("weird key/with:chars", []byte("v")); err != nil {
			t.Fatalf("write: %v", err)
		}
		keys, err := d.Keys()
		if err != nil {
			t.Fatalf("keys: %v", err)
		}
		sort.Strings(keys)
		want := []string{"easychat_chat_history", "weird key/with:chars"}
		if len(keys) != len(want) {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
			}
		}
	})

	t.Run("capacity enforced", func(t *testing.T) {
		small, err := NewFileDriver(filepath.Join(dir, "small"), 8)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if err := small.Write("k", []byte("1234567")); err != nil {
			t.Fatalf("write at capacity: %v", err)
		}
		if err := small.Write("j", []byte("x")); !errors.Is(err, ErrCapacityExceeded) {
			t.Errorf("write over capacity = %v, want ErrCapacityExceeded", err)
		}
	})
}

func TestSQLiteDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	d, err := NewSQLiteDriver(path, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	if err := d.Write("a", []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Write("a", []byte("two")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	v, ok, err := d.Read("a")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if string(v) != "two" {
		t.Errorf("value = %q, want two", v)
	}

	u, err := d.Usage()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u.ItemCount != 1 || u.TotalBytes != 4 {
		t.Errorf("usage = %+v, want 1 item / 4 bytes", u)
	}

	if err := d.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := d.Read("a"); ok {
		t.Error("expected removed key to be absent")
	}
}

func TestSQLiteDriverCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	d, err := NewSQLiteDriver(path, 6)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	if err := d.Write("k", []byte("12345")); err != nil {
		t.Fatalf("write at capacity: %v", err)
	}
	if err := d.Write("j", []byte("1")); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("write over capacity = %v, want ErrCapacityExceeded", err)
	}
}
