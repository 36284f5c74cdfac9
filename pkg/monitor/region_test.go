package monitor

import "testing"

func TestNearestRegion_NilGeoDefaultsToCanonical(t *testing.T) {
	if got := NearestRegion(nil, nil); got != CanonicalRegion {
		t.Fatalf("expected canonical region for nil geo, got %s", got)
	}
}

func TestNearestRegion_PicksClosestCentroid(t *testing.T) {
	lat, lon := 48.8566, 2.3522 // Paris
	got := NearestRegion(&lat, &lon)
	if got != RegionEUWest && got != RegionEUCentral {
		t.Fatalf("expected a European region for Paris coordinates, got %s", got)
	}
}

func TestAllRegions_IsFixedAndNonEmpty(t *testing.T) {
	regions := AllRegions()
	if len(regions) == 0 {
		t.Fatal("expected a non-empty fixed region set")
	}
	seen := map[Region]bool{}
	for _, r := range regions {
		if seen[r] {
			t.Fatalf("duplicate region in fixed set: %s", r)
		}
		seen[r] = true
	}
}
