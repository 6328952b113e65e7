package kvstore

import (
	"errors"
	"path/filepath"
	"testing"

	"shopledger/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func TestSetGetDelete(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	defer store.Close()

	if _, ok := store.Get("missing"); ok {
		t.Error("missing key reported present")
	}

	if err := store.Set("k", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set("k", "v2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, ok := store.Get("k"); !ok || v != "v2" {
		t.Errorf("Expected v2, got %q (%v)", v, ok)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scalars.db")

	store := openTestStore(t, path)
	if err := store.SetEarnings(decimal.NewFromInt(500)); err != nil {
		t.Fatalf("SetEarnings failed: %v", err)
	}
	store.Close()

	store = openTestStore(t, path)
	defer store.Close()

	if got := store.Earnings(); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected 500, got %s", got)
	}
}

func TestSetAfterCloseFails(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	store.Close()

	if err := store.Set("k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Error("closed store should read as absent")
	}
}

func TestEarningsIsLenient(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	defer store.Close()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"number", "123.45", "123.45"},
		{"garbage", "abc", "0"},
		{"negative", "-5", "0"},
		{"empty", "", "0"},
		{"nan", "NaN", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Set(KeyEarnings, tt.raw); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if got := store.Earnings(); got.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	if err := store.Delete(KeyEarnings); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := store.Earnings(); !got.IsZero() {
		t.Errorf("missing earnings should read as 0, got %s", got)
	}
}

func TestNavigation(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	defer store.Close()

	if got := store.Navigation(); got != domain.DefaultNavigationState() {
		t.Errorf("Expected default state, got %+v", got)
	}

	state := domain.NavigationState{View: domain.ViewCategory, SelectedCategoryID: "c1", SearchQuery: "wid"}
	if err := store.SetNavigation(state); err != nil {
		t.Fatalf("SetNavigation failed: %v", err)
	}
	if got := store.Navigation(); got != state {
		t.Errorf("Expected %+v, got %+v", state, got)
	}

	if err := store.Set(KeyNavigation, "{not json"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := store.Navigation(); got != domain.DefaultNavigationState() {
		t.Errorf("corrupt state should fall back to default, got %+v", got)
	}
}

func TestIdentity(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	defer store.Close()

	if _, ok := store.Identity(); ok {
		t.Error("no identity expected")
	}

	identity := domain.Identity{Email: "Owner@Shop.example", Name: "Owner"}
	if err := store.SetIdentity(identity); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	if got, ok := store.Identity(); !ok || got != identity {
		t.Errorf("Expected %+v, got %+v (%v)", identity, got, ok)
	}

	if err := store.ClearIdentity(); err != nil {
		t.Fatalf("ClearIdentity failed: %v", err)
	}
	if _, ok := store.Identity(); ok {
		t.Error("identity should be cleared")
	}

	if err := store.Set(KeyIdentity, `{"email":"  "}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := store.Identity(); ok {
		t.Error("blank email should not count as signed in")
	}
}

// Feature: shop-ledger, Property 4: Scalar writes read back unchanged
func TestProperty_ScalarWritesReadBack(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "scalars.db"))
	defer store.Close()

	properties := gopter.NewProperties(nil)

	properties.Property("get after set returns the last value written", prop.ForAll(
		func(key string, first string, second string) bool {
			if err := store.Set(key, first); err != nil {
				return false
			}
			if err := store.Set(key, second); err != nil {
				return false
			}
			got, ok := store.Get(key)
			return ok && got == second
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("earnings round trip for non-negative amounts", prop.ForAll(
		func(cents int64) bool {
			value := decimal.New(cents, -2)
			if err := store.SetEarnings(value); err != nil {
				return false
			}
			return store.Earnings().Equal(value)
		},
		gen.Int64Range(0, 1_000_000_000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
