package storage

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "arclight.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := openTestStore(t)
	accounts := store.Accounts()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		if _, err := accounts.Get("nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get on empty store: %v, want ErrNotFound", err)
		}
	})

	t.Run("set then get round trips", func(t *testing.T) {
		doc := NewAccountDocument("OVR-ORG-1", "tester")
		if err := accounts.Set("OVR-ORG-1", doc); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := accounts.Get("OVR-ORG-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var a, b interface{}
		json.Unmarshal(doc, &a)
		json.Unmarshal(got, &b)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("stored document differs: got %s", got)
		}
	})

	t.Run("set overwrites existing", func(t *testing.T) {
		if err := accounts.Set("OVR-ORG-1", json.RawMessage(`{"v":2}`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := accounts.Get("OVR-ORG-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(got, &doc); err != nil || doc["v"] != float64(2) {
			t.Errorf("overwrite failed: %s (%v)", got, err)
		}
	})

	t.Run("invalid json rejected", func(t *testing.T) {
		if err := accounts.Set("bad", json.RawMessage(`{not json`)); err == nil {
			t.Error("expected error storing invalid JSON")
		}
	})

	t.Run("keys are sorted", func(t *testing.T) {
		for _, k := range []string{"OVR-ORG-9", "OVR-ORG-3"} {
			if err := accounts.Set(k, json.RawMessage(`{}`)); err != nil {
				t.Fatalf("Set %s failed: %v", k, err)
			}
		}
		keys, err := accounts.Keys()
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		want := []string{"OVR-ORG-1", "OVR-ORG-3", "OVR-ORG-9"}
		if !reflect.DeepEqual(keys, want) {
			t.Errorf("Keys = %v, want %v", keys, want)
		}
	})

	t.Run("delete removes key", func(t *testing.T) {
		if err := accounts.Delete("OVR-ORG-3"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := accounts.Get("OVR-ORG-3"); !errors.Is(err, ErrNotFound) {
			t.Errorf("deleted key still readable: %v", err)
		}
		if err := accounts.Delete("OVR-ORG-3"); err != nil {
			t.Errorf("repeat delete should be a no-op: %v", err)
		}
	})

	t.Run("collections are isolated", func(t *testing.T) {
		if _, err := store.ChannelInfo().Get("OVR-ORG-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("account document leaked into channel_info: %v", err)
		}
	})

	t.Run("exists reflects contents", func(t *testing.T) {
		if !accounts.Exists() {
			t.Error("accounts should report existing documents")
		}
		if store.LoginSettings().Exists() {
			t.Error("empty collection should not report documents")
		}
	})
}

func TestSingletonHelpers(t *testing.T) {
	store := openTestStore(t)
	acl := store.AccessControlList()

	if _, err := GetSingleton(acl); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSingleton on empty resource: %v, want ErrNotFound", err)
	}
	if err := SetSingleton(acl, DefaultAccessControlDocument()); err != nil {
		t.Fatalf("SetSingleton failed: %v", err)
	}
	doc, err := GetSingleton(acl)
	if err != nil {
		t.Fatalf("GetSingleton failed: %v", err)
	}
	ok, err := CheckAccess(doc, "anyone")
	if err != nil || !ok {
		t.Errorf("stored default ACL should allow: ok=%v err=%v", ok, err)
	}
}
