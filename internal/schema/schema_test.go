package schema

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func worldFixture() Description {
	return Description{Tables: []Table{
		{
			Name:   "city",
			Schema: "public",
			Columns: []Column{
				{Name: "id", DataType: "integer", Nullable: BoolPtr(false), PrimaryKey: true},
				{Name: "name", DataType: "text", Nullable: BoolPtr(false)},
				{Name: "population", DataType: "integer", Format: "int4"},
			},
		},
		{
			Name:   "country",
			Schema: "public",
			Columns: []Column{
				{Name: "code", DataType: "character", PrimaryKey: true},
				{Name: "continent", DataType: "text"},
			},
		},
	}}
}

func TestBuildContextPreservesDeclaredOrder(t *testing.T) {
	got, err := BuildContext(worldFixture())
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	order := []string{`"city"`, `"id"`, `"name"`, `"population"`, `"country"`, `"code"`, `"continent"`}
	last := -1
	for _, token := range order {
		idx := strings.Index(got, token)
		if idx <= last {
			t.Fatalf("token %s out of order in:\n%s", token, got)
		}
		last = idx
	}
	if !strings.Contains(got, `"primary_key": true`) {
		t.Fatalf("expected primary key marker:\n%s", got)
	}
	if !strings.Contains(got, `"is_nullable": false`) {
		t.Fatalf("expected nullability:\n%s", got)
	}

	var decoded []Table
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("context is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Columns[2].DataType != "integer" {
		t.Fatalf("decoded = %#v", decoded)
	}
}

func TestBuildContextEmptyDescription(t *testing.T) {
	got, err := BuildContext(Description{})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if got != "" {
		t.Fatalf("BuildContext() = %q, want empty", got)
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	dupTable := Description{Tables: []Table{{Name: "city"}, {Name: "City"}}}
	if err := dupTable.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() error = %v, want ErrInvalid", err)
	}
	dupColumn := Description{Tables: []Table{{Name: "city", Columns: []Column{{Name: "id"}, {Name: "id"}}}}}
	if err := dupColumn.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() error = %v, want ErrInvalid", err)
	}
	unnamed := Description{Tables: []Table{{Name: " "}}}
	if err := unnamed.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() error = %v, want ErrInvalid", err)
	}
	if err := worldFixture().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestDescriptionLookup(t *testing.T) {
	desc := worldFixture()
	table, ok := desc.Table("CITY")
	if !ok || table.Name != "city" {
		t.Fatalf("Table() = %#v, %v", table, ok)
	}
	if _, ok := desc.Table("missing"); ok {
		t.Fatal("Table(missing) should not be found")
	}
	if got := strings.Join(desc.TableNames(), ","); got != "city,country" {
		t.Fatalf("TableNames() = %q", got)
	}
}

func TestParseAcceptsObjectAndArray(t *testing.T) {
	object := `{"tables":[{"name":"city","schema":"public","columns":[{"name":"id","data_type":"integer","is_nullable":false}]}]}`
	desc, err := Parse([]byte(object))
	if err != nil {
		t.Fatalf("Parse(object) error = %v", err)
	}
	if len(desc.Tables) != 1 || desc.Tables[0].Columns[0].Nullable == nil || *desc.Tables[0].Columns[0].Nullable {
		t.Fatalf("Parse(object) = %#v", desc)
	}

	array := `[{"name":"country","columns":[{"name":"code","data_type":"text"}]}]`
	desc, err = Parse([]byte(array))
	if err != nil {
		t.Fatalf("Parse(array) error = %v", err)
	}
	if desc.Tables[0].Name != "country" {
		t.Fatalf("Parse(array) = %#v", desc)
	}

	desc, err = Parse([]byte("  "))
	if err != nil || !desc.IsEmpty() {
		t.Fatalf("Parse(blank) = %#v, %v", desc, err)
	}

	if _, err := Parse([]byte(`[{"name":"a"},{"name":"a"}]`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse(duplicate) error = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	raw, _ := json.Marshal(worldFixture())
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	desc, err := FileLoader{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(desc.Tables) != 2 {
		t.Fatalf("tables = %d", len(desc.Tables))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("LoadFile(missing) expected error")
	}
}

type stubLoader struct {
	mu    sync.Mutex
	descs []Description
	err   error
	calls int
}

func (s *stubLoader) Load(context.Context) (Description, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Description{}, s.err
	}
	desc := s.descs[0]
	if len(s.descs) > 1 {
		s.descs = s.descs[1:]
	}
	return desc, nil
}

func TestCacheRefreshSwapsAndKeepsPreviousOnFailure(t *testing.T) {
	loader := &stubLoader{descs: []Description{worldFixture()}}
	cache := NewCache(loader, nil)
	if !cache.Current().IsEmpty() {
		t.Fatal("expected empty cache before refresh")
	}
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(cache.Current().Tables) != 2 {
		t.Fatalf("tables = %d", len(cache.Current().Tables))
	}
	if cache.LoadedAt().IsZero() {
		t.Fatal("LoadedAt() should be set")
	}

	loader.err = errors.New("connection refused")
	if err := cache.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error")
	}
	if len(cache.Current().Tables) != 2 {
		t.Fatal("failed refresh must keep previous description")
	}
	if cache.LastError() == nil {
		t.Fatal("LastError() should record failure")
	}
}

func TestCacheRejectsInvalidDescription(t *testing.T) {
	loader := &stubLoader{descs: []Description{{Tables: []Table{{Name: "a"}, {Name: "a"}}}}}
	cache := NewCache(loader, nil)
	if err := cache.Refresh(context.Background()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Refresh() error = %v, want ErrInvalid", err)
	}
}

func TestStaticCache(t *testing.T) {
	cache := NewStaticCache(worldFixture())
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(cache.Current().Tables) != 2 {
		t.Fatal("static cache lost its description")
	}
}

func TestCacheRunStopsOnCancel(t *testing.T) {
	cache := NewCache(&stubLoader{descs: []Description{worldFixture()}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		cache.Run(ctx, 1)
		close(done)
	}()
	<-done
}
