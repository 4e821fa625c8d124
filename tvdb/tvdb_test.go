package tvdb

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tvalert/pkg/tvalert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPremieresToday(t *testing.T) {
	now := time.Date(2026, time.August, 28, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		nextAirDate string
		want        bool
	}{
		{
			name:        "date-only match",
			nextAirDate: "2026-08-28",
			want:        true,
		},
		{
			name:        "RFC3339 same UTC day, different hour",
			nextAirDate: "2026-08-28T02:00:00Z",
			want:        true,
		},
		{
			name:        "offset timestamp interpreted in UTC",
			nextAirDate: "2026-08-28T20:00:00-05:00", // 01:00 UTC next day
			want:        false,
		},
		{
			name:        "previous day",
			nextAirDate: "2026-08-27",
			want:        false,
		},
		{
			name:        "next day",
			nextAirDate: "2026-08-29",
			want:        false,
		},
		{
			name:        "no scheduled episode",
			nextAirDate: "",
			want:        false,
		},
		{
			name:        "unparseable date",
			nextAirDate: "soon",
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			show := &tvalert.ShowSummary{ID: "1", Name: "Test Show", NextAirDate: tt.nextAirDate}
			if got := PremieresToday(show, now); got != tt.want {
				t.Errorf("PremieresToday(%q) = %v, want %v", tt.nextAirDate, got, tt.want)
			}
		})
	}
}

func TestShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shows/tt100" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want bearer test-key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"tt100","name":"Severance","nextAiredDate":"2026-08-28"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", discardLogger())

	show, err := client.Show(context.Background(), "tt100")
	if err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if show.Name != "Severance" {
		t.Errorf("Show() name = %q, want Severance", show.Name)
	}
	if show.NextAirDate != "2026-08-28" {
		t.Errorf("Show() next air date = %q, want 2026-08-28", show.NextAirDate)
	}
}

// TestShowNotFound verifies a 404 fails immediately without burning retries.
func TestShowNotFound(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		http.Error(w, "no such show", http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(srv.URL, "", discardLogger())

	if _, err := client.Show(context.Background(), "tt404"); err == nil {
		t.Fatal("Show() error = nil, want failure for missing show")
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (4xx is unrecoverable)", hits)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "sever" {
			t.Errorf("query = %q, want sever", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`[{"id":"tt100","name":"Severance"},{"id":"tt200","name":"Severed Heads"}]`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "", discardLogger())

	shows, err := client.Search(context.Background(), "sever")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(shows) != 2 {
		t.Fatalf("Search() returned %d shows, want 2", len(shows))
	}
	if shows[0].Name != "Severance" {
		t.Errorf("Search()[0].Name = %q, want Severance", shows[0].Name)
	}
}
