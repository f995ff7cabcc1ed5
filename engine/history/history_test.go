package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/WessleyAI/vinwizard/engine/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingBackend struct {
	*MemoryBackend
	putErr error
	getErr error
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryBackend.Get(ctx, key)
}

func (f *failingBackend) Put(ctx context.Context, key string, value []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryBackend.Put(ctx, key, value)
}

func entry(vin, mk, model, year string) domain.HistoryEntry {
	return domain.HistoryEntry{VIN: vin, Make: mk, Model: model, Year: year}
}

func TestRecord_DedupeMovesToFront(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "", quiet)
	s.Load(ctx)

	if _, err := s.Record(ctx, entry("A", "Honda", "Accord", "2003")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, entry("B", "Ford", "F-150", "2015")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Record(ctx, entry("A", "Honda", "Accord EX", "2003"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].VIN != "A" || got[0].Model != "Accord EX" {
		t.Fatalf("expected updated A first, got %+v", got[0])
	}
	if got[1].VIN != "B" {
		t.Fatalf("expected B second, got %+v", got[1])
	}
}

func TestRecord_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "", quiet)
	var got []domain.HistoryEntry
	for i := 0; i < MaxEntries+1; i++ {
		var err error
		got, err = s.Record(ctx, entry(fmt.Sprintf("VIN%02d", i), "Make", "Model", "2020"))
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(got) != MaxEntries {
		t.Fatalf("expected %d entries, got %d", MaxEntries, len(got))
	}
	if got[0].VIN != "VIN10" {
		t.Fatalf("expected newest first, got %s", got[0].VIN)
	}
	for _, e := range got {
		if e.VIN == "VIN00" {
			t.Fatal("oldest entry should have been evicted")
		}
	}
}

func TestRecord_EmptyVIN(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "", quiet)
	_, err := s.Record(context.Background(), entry("", "Honda", "Civic", "2001"))
	if !errors.Is(err, domain.ErrEmptyVIN) {
		t.Fatalf("expected ErrEmptyVIN, got %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Fatal("expected no entries")
	}
}

func TestRecord_PersistFailureKeepsList(t *testing.T) {
	ctx := context.Background()
	b := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(b, "", quiet)
	if _, err := s.Record(ctx, entry("A", "", "", "")); err != nil {
		t.Fatal(err)
	}

	b.putErr = errors.New("disk full")
	if _, err := s.Record(ctx, entry("B", "", "", "")); !errors.Is(err, b.putErr) {
		t.Fatalf("expected disk full, got %v", err)
	}
	got := s.Entries()
	if len(got) != 1 || got[0].VIN != "A" {
		t.Fatalf("expected list unchanged, got %+v", got)
	}
}

func TestRecord_Persists(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := NewStore(b, "", quiet)
	if _, err := s.Record(ctx, entry("A", "Honda", "Accord", "2003")); err != nil {
		t.Fatal(err)
	}

	reloaded := NewStore(b, "", quiet).Load(ctx)
	if len(reloaded) != 1 || reloaded[0] != entry("A", "Honda", "Accord", "2003") {
		t.Fatalf("unexpected reloaded list %+v", reloaded)
	}
}

func TestLoad_Missing(t *testing.T) {
	got := NewStore(NewMemoryBackend(), "", quiet).Load(context.Background())
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	b.Put(ctx, DefaultKey, []byte("{not json"))
	got := NewStore(b, "", quiet).Load(ctx)
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestLoad_BackendError(t *testing.T) {
	b := &failingBackend{MemoryBackend: NewMemoryBackend(), getErr: errors.New("unreachable")}
	got := NewStore(b, "", quiet).Load(context.Background())
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestDecode_Sanitizes(t *testing.T) {
	data := []byte(`[{"vin":"A"},{"vin":""},{"vin":"A","make":"dup"},{"vin":"B"},` +
		`{"vin":"C"},{"vin":"D"},{"vin":"E"},{"vin":"F"},{"vin":"G"},{"vin":"H"},{"vin":"I"},{"vin":"J"},{"vin":"K"}]`)
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxEntries {
		t.Fatalf("expected %d, got %d", MaxEntries, len(got))
	}
	if got[0].VIN != "A" || got[0].Make != "" || got[1].VIN != "B" {
		t.Fatalf("unexpected head %+v", got[:2])
	}
}

func TestPush_DoesNotMutate(t *testing.T) {
	list := []domain.HistoryEntry{entry("A", "", "", ""), entry("B", "", "", "")}
	out := Push(list, entry("B", "x", "", ""), MaxEntries)
	if list[0].VIN != "A" || list[1].VIN != "B" || list[1].Make != "" {
		t.Fatalf("input mutated: %+v", list)
	}
	if len(out) != 2 || out[0].VIN != "B" || out[1].VIN != "A" {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestSelect(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "", quiet)
	if got := s.Select(entry("XYZ", "", "", "")); got != "XYZ" {
		t.Fatalf("expected XYZ, got %s", got)
	}
}

func TestStores_PerSession(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	stores, err := NewStores(b, 2, quiet)
	if err != nil {
		t.Fatal(err)
	}
	a := stores.For(ctx, "alice")
	if a.Key() != "searchHistory.alice" {
		t.Fatalf("unexpected key %s", a.Key())
	}
	if _, err := a.Record(ctx, entry("A", "", "", "")); err != nil {
		t.Fatal(err)
	}
	if stores.For(ctx, "alice") != a {
		t.Fatal("expected cached store")
	}
	if got := stores.For(ctx, "bob").Entries(); len(got) != 0 {
		t.Fatalf("bob should have no history, got %v", got)
	}

	// Evict alice then reload her list from the backend.
	stores.For(ctx, "carol")
	stores.For(ctx, "dave")
	if got := stores.For(ctx, "alice").Entries(); len(got) != 1 || got[0].VIN != "A" {
		t.Fatalf("expected alice reloaded, got %v", got)
	}
}

func TestKeyFor(t *testing.T) {
	if KeyFor("") != DefaultKey {
		t.Fatalf("expected default key, got %s", KeyFor(""))
	}
}

func TestRecord_SharedKeyKeepsOtherWriters(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	first := NewStore(b, "shared", quiet)
	second := NewStore(b, "shared", quiet)
	first.Load(ctx)
	second.Load(ctx)

	if _, err := first.Record(ctx, entry("A", "", "", "")); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Record(ctx, entry("B", "", "", "")); err != nil {
		t.Fatal(err)
	}
	got, err := first.Record(ctx, entry("C", "", "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if vins := vinsOf(got); vins != "C,B,A" {
		t.Fatalf("expected C,B,A, got %s", vins)
	}
	if vins := vinsOf(NewStore(b, "shared", quiet).Load(ctx)); vins != "C,B,A" {
		t.Fatalf("expected persisted C,B,A, got %s", vins)
	}
}

func TestRecord_UnreadableBackendUsesMemory(t *testing.T) {
	ctx := context.Background()
	b := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := NewStore(b, "", quiet)
	if _, err := s.Record(ctx, entry("A", "", "", "")); err != nil {
		t.Fatal(err)
	}
	b.getErr = errors.New("unreachable")
	got, err := s.Record(ctx, entry("B", "", "", ""))
	if err != nil {
		t.Fatal(err)
	}
	if vins := vinsOf(got); vins != "B,A" {
		t.Fatalf("expected B,A, got %s", vins)
	}
}

func vinsOf(list []domain.HistoryEntry) string {
	vins := make([]string, len(list))
	for i, e := range list {
		vins[i] = e.VIN
	}
	return strings.Join(vins, ",")
}
