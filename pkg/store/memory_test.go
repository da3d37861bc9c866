package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
)

func strPtr(s string) *string { return &s }

func sampleRepos() []repo.Repo {
	return []repo.Repo{
		{ID: 1, Name: "material-ui", FullName: "mui/material-ui", URL: "https://github.com/mui/material-ui", Stars: 300, Forks: 30},
		{ID: 2, Name: "headless", FullName: "tailwind/headless", Description: strPtr("Unstyled UI components"), Stars: 200},
		{ID: 3, Name: "backend", FullName: "acme/backend", Description: strPtr("REST service"), Stars: 999},
		{ID: 4, Name: "ui-kit", FullName: "acme/ui-kit", Stars: 100, Language: strPtr("TypeScript")},
	}
}

func TestMemoryStore_QueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Upsert(ctx, sampleRepos()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.Query(ctx, Pattern("ui"), 0, 20)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	var ids []int64
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	want := []int64{1, 2, 4}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Query() ids = %v, want %v", ids, want)
	}

	count, err := s.Count(ctx, Pattern("ui"))
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
}

func TestMemoryStore_TieBreakByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Upsert(ctx, []repo.Repo{
		{ID: 10, Name: "beta", Stars: 5},
		{ID: 11, Name: "Alpha", Stars: 5},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := s.Query(ctx, "%%", 0, 20)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alpha" || got[1].Name != "beta" {
		t.Errorf("Query() order = %v, want [Alpha beta]", got)
	}
}

func TestMemoryStore_UpsertReplacesAllFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Upsert(ctx, []repo.Repo{{ID: 1, Name: "ui", Description: strPtr("old"), Stars: 1, Language: strPtr("Go")}})
	_ = s.Upsert(ctx, []repo.Repo{{ID: 1, Name: "ui", Stars: 2}})

	got, _ := s.Query(ctx, "%ui%", 0, 20)
	if len(got) != 1 {
		t.Fatalf("Query() returned %d repos, want 1", len(got))
	}
	if got[0].Description != nil || got[0].Language != nil {
		t.Error("Upsert should replace nullable fields with incoming nil values")
	}
	if got[0].Stars != 2 {
		t.Errorf("Stars = %d, want 2", got[0].Stars)
	}
}

func TestMemoryStore_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	once := NewMemoryStore()
	twice := NewMemoryStore()
	batch := sampleRepos()

	_ = once.Upsert(ctx, batch)
	_ = twice.Upsert(ctx, batch)
	_ = twice.Upsert(ctx, batch)

	a, _ := once.Query(ctx, "%%", 0, 100)
	b, _ := twice.Query(ctx, "%%", 0, 100)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("state after double upsert differs:\n once:  %v\n twice: %v", a, b)
	}
	if twice.Len() != len(batch) {
		t.Errorf("Len() = %d, want %d", twice.Len(), len(batch))
	}
}

func TestMemoryStore_QueryWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Upsert(ctx, sampleRepos())

	tests := []struct {
		name    string
		offset  int
		limit   int
		wantLen int
		wantErr bool
	}{
		{"first two", 0, 2, 2, false},
		{"tail", 3, 10, 1, false},
		{"past end", 10, 10, 0, false},
		{"negative offset", -1, 10, 0, true},
		{"zero limit", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, "%%", tt.offset, tt.limit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Query() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("Query() len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	if err := s.Upsert(ctx, sampleRepos()); err == nil {
		t.Error("Upsert() with cancelled context should fail")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
