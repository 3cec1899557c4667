package db

import (
	"context"
	"testing"
	"time"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/notify"
)

// TestPositionsEqual tests the position equality logic.
func TestPositionsEqual(t *testing.T) {
	tests := []struct {
		name     string
		current  adsb.Aircraft
		prev     previousPosition
		expected bool
	}{
		{
			name: "Identical position, not moving",
			current: adsb.Aircraft{
				Latitude:    35.123456,
				Longitude:   -80.654321,
				Altitude:    10000.0,
				GroundSpeed: 0.5,
			},
			prev: previousPosition{
				Latitude:       35.123456,
				Longitude:      -80.654321,
				AltitudeFt:     10000.0,
				GroundSpeedKts: 0.5,
			},
			expected: true,
		},
		{
			name: "Identical position, currently moving",
			current: adsb.Aircraft{
				Latitude:    35.123456,
				Longitude:   -80.654321,
				Altitude:    10000.0,
				GroundSpeed: 150.0,
			},
			prev: previousPosition{
				Latitude:       35.123456,
				Longitude:      -80.654321,
				AltitudeFt:     10000.0,
				GroundSpeedKts: 0.5,
			},
			expected: false,
		},
		{
			name: "Position changed slightly",
			current: adsb.Aircraft{
				Latitude:  35.123458,
				Longitude: -80.654321,
				Altitude:  10000.0,
			},
			prev: previousPosition{
				Latitude:   35.123456,
				Longitude:  -80.654321,
				AltitudeFt: 10000.0,
			},
			expected: false,
		},
		{
			name: "Altitude changed",
			current: adsb.Aircraft{
				Latitude:  35.123456,
				Longitude: -80.654321,
				Altitude:  10005.0,
			},
			prev: previousPosition{
				Latitude:   35.123456,
				Longitude:  -80.654321,
				AltitudeFt: 10000.0,
			},
			expected: false,
		},
		{
			name: "Parked on the ramp",
			current: adsb.Aircraft{
				Latitude:  51.4700,
				Longitude: -0.4543,
				OnGround:  true,
			},
			prev: previousPosition{
				Latitude:  51.4700,
				Longitude: -0.4543,
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := positionsEqual(tt.current, tt.prev); got != tt.expected {
				t.Errorf("positionsEqual() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestNullString tests empty notification IDs become NULL.
func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("Expected empty string to be NULL")
	}
	if ns := nullString("abc"); !ns.Valid || ns.String != "abc" {
		t.Errorf("Unexpected %+v", ns)
	}
}

// TestSightingRepositoryIntegration exercises the log against a real database.
func TestSightingRepositoryIntegration(t *testing.T) {
	db := testDB(t)
	repo := NewSightingRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	sighting := detect.Sighting{
		Aircraft: adsb.Aircraft{
			ICAO:        "A1B2C3",
			Callsign:    "UAL123 ",
			TypeCode:    "B738",
			Latitude:    40.0,
			Longitude:   -74.0,
			Altitude:    11000,
			GroundSpeed: 250,
		},
		DistanceKm: 4.2,
		Bearing:    45,
		Direction:  "NE",
		SeenAt:     now,
	}

	n := notify.Compose([]detect.Sighting{sighting}, nil, now)
	if err := repo.RecordNotification(ctx, n); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}

	records, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ICAO != "a1b2c3" || rec.Callsign != "UAL123" || rec.NotificationID != n.ID {
		t.Errorf("Unexpected record: %+v", rec)
	}

	// Same position while stationary is skipped
	parked := sighting
	parked.Aircraft.GroundSpeed = 0
	parked.Aircraft.ICAO = "ffffff"
	parked.SeenAt = now.Add(time.Minute)
	if err := repo.Record(ctx, "", parked); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	parked.SeenAt = now.Add(2 * time.Minute)
	if err := repo.Record(ctx, "", parked); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Sightings != 2 || stats.DistinctAircraft != 2 || stats.Notifications != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	notifications, err := repo.RecentNotifications(ctx, 5)
	if err != nil {
		t.Fatalf("RecentNotifications failed: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Title != n.Title || len(notifications[0].Sightings) != 1 {
		t.Errorf("Unexpected notifications: %+v", notifications)
	}

	removed, err := db.CleanupOldData(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 rows removed, got %d", removed)
	}
}
