package db

import (
	"context"
	"testing"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

func TestRestorable(t *testing.T) {
	base := coordinates.Geographic{Latitude: 40.0, Longitude: -74.0}
	rec := &ObserverLocation{
		Location: coordinates.Geographic{Latitude: 40.7, Longitude: -73.9},
		Base:     base,
	}

	tests := []struct {
		name       string
		rec        *ObserverLocation
		configured coordinates.Geographic
		expected   bool
	}{
		{"Same configured position", rec, base, true},
		{"Config moved the observer", rec, coordinates.Geographic{Latitude: 41.0, Longitude: -74.0}, false},
		{"Sub-tolerance difference", rec, coordinates.Geographic{Latitude: 40.0000005, Longitude: -74.0}, true},
		{"No report", nil, base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Restorable(tt.configured); got != tt.expected {
				t.Errorf("Restorable() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// TestLocationRepositoryIntegration exercises the location log against a real database.
func TestLocationRepositoryIntegration(t *testing.T) {
	db := testDB(t)
	repo := NewLocationRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	base := coordinates.Geographic{Latitude: 40, Longitude: -74}

	latest, err := repo.Latest(ctx)
	if err != nil || latest != nil {
		t.Fatalf("Expected no report, got %+v, err=%v", latest, err)
	}

	if _, err := repo.Save(ctx, coordinates.Geographic{Latitude: 95}, base, now); err == nil {
		t.Error("Expected error for invalid latitude")
	}

	first := coordinates.Geographic{Latitude: 40.5, Longitude: -74.1}
	second := coordinates.Geographic{Latitude: 40.6, Longitude: -74.2, Altitude: 12}
	if _, err := repo.Save(ctx, first, base, now); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	saved, err := repo.Save(ctx, second, base, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.ID == 0 {
		t.Error("Expected an ID")
	}

	latest, err = repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Location != second || !latest.Restorable(base) {
		t.Errorf("Unexpected latest: %+v", latest)
	}

	recent, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[1].Location != first {
		t.Errorf("Unexpected history: %+v", recent)
	}
}
