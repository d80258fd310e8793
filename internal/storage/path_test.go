package storage

import (
	"testing"
	"time"
)

func TestBuildChartKeys(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	keys, err := BuildChartKeys(ts, "4b1f0c1e-8d1a-4c8e-9d7e-2f1a3b5c7d9e")
	if err != nil {
		t.Fatalf("BuildChartKeys() error = %v", err)
	}
	if keys.Image != "charts/2026/02/20/4b1f0c1e-8d1a-4c8e-9d7e-2f1a3b5c7d9e.png" {
		t.Fatalf("Image = %q", keys.Image)
	}
	if keys.Snapshot != "charts/2026/02/20/4b1f0c1e-8d1a-4c8e-9d7e-2f1a3b5c7d9e.parquet" {
		t.Fatalf("Snapshot = %q", keys.Snapshot)
	}
	if !IsChartKey(keys.Image) || !IsChartKey(keys.Snapshot) {
		t.Fatal("built keys should be recognized")
	}
	snapshot, err := SnapshotKey(keys.Image)
	if err != nil || snapshot != keys.Snapshot {
		t.Fatalf("SnapshotKey() = %q, %v", snapshot, err)
	}
}

func TestBuildChartKeysRejectsInvalidID(t *testing.T) {
	if _, err := BuildChartKeys(time.Now(), "../oops"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestIsChartKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"charts/2026/02/20/x.csv",
		"secrets/2026/02/20/x.png",
		"charts/2026/02/x.png",
		"charts/yyyy/02/20/x.png",
		"charts/2026/02/20/../x.png",
	} {
		if IsChartKey(key) {
			t.Fatalf("IsChartKey(%q) = true", key)
		}
	}
}
