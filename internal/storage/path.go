package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const chartRoot = "charts"

var artifactIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ChartKeys are the object keys of one archived chart: the rendered image and
// the result snapshot it was drawn from.
type ChartKeys struct {
	Image    string
	Snapshot string
}

// BuildChartKeys lays artifacts out as charts/<yyyy>/<mm>/<dd>/<id>.{png,parquet}
// using the UTC date of createdAt.
func BuildChartKeys(createdAt time.Time, id string) (ChartKeys, error) {
	if !artifactIDPattern.MatchString(id) {
		return ChartKeys{}, fmt.Errorf("invalid artifact id: %q", id)
	}
	ts := createdAt.UTC()
	dir := path.Join(chartRoot, fmt.Sprintf("%04d", ts.Year()), fmt.Sprintf("%02d", ts.Month()), fmt.Sprintf("%02d", ts.Day()))
	return ChartKeys{
		Image:    path.Join(dir, id+".png"),
		Snapshot: path.Join(dir, id+".parquet"),
	}, nil
}

// SnapshotKey returns the snapshot key that belongs to an image key.
func SnapshotKey(imageKey string) (string, error) {
	if !IsChartKey(imageKey) || !strings.HasSuffix(imageKey, ".png") {
		return "", fmt.Errorf("not a chart image key: %q", imageKey)
	}
	return strings.TrimSuffix(imageKey, ".png") + ".parquet", nil
}

// IsChartKey reports whether key has the layout produced by BuildChartKeys.
func IsChartKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != chartRoot {
		return false
	}
	for _, p := range parts[1:4] {
		if _, err := fmt.Sscanf(p, "%d", new(int)); err != nil {
			return false
		}
	}
	name := parts[4]
	ext := path.Ext(name)
	if ext != ".png" && ext != ".parquet" {
		return false
	}
	return artifactIDPattern.MatchString(strings.TrimSuffix(name, ext))
}
