package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

const (
	metaColumns   = "querylens.columns"
	metaSQL       = "querylens.sql"
	metaKind      = "querylens.chart_kind"
	metaTitle     = "querylens.chart_title"
	metaCreatedAt = "querylens.created_at"
)

// snapshotRow stores each result row as an ordered JSON object so any result
// shape fits one Parquet schema. Column order is kept in file metadata.
type snapshotRow struct {
	RowIndex    int64  `parquet:"row_index"`
	PayloadJSON string `parquet:"payload_json"`
}

func EncodeSnapshot(rec Record, createdAt time.Time) ([]byte, error) {
	columns, err := json.Marshal(rec.Result.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot columns: %w", err)
	}
	rows := make([]snapshotRow, 0, len(rec.Result.Rows))
	for i, row := range rec.Result.Rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot row %d: %w", i, err)
		}
		rows = append(rows, snapshotRow{RowIndex: int64(i), PayloadJSON: string(payload)})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[snapshotRow](buf,
		parquet.KeyValueMetadata(metaColumns, string(columns)),
		parquet.KeyValueMetadata(metaSQL, rec.SQL),
		parquet.KeyValueMetadata(metaKind, rec.Kind),
		parquet.KeyValueMetadata(metaTitle, rec.Title),
		parquet.KeyValueMetadata(metaCreatedAt, createdAt.UTC().Format(time.RFC3339)),
	)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot is a decoded result snapshot.
type Snapshot struct {
	SQL     string
	Kind    string
	Columns []string
	Rows    []map[string]any
}

func DecodeSnapshot(data []byte) (Snapshot, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	var snap Snapshot
	snap.SQL, _ = file.Lookup(metaSQL)
	snap.Kind, _ = file.Lookup(metaKind)
	if raw, ok := file.Lookup(metaColumns); ok {
		if err := json.Unmarshal([]byte(raw), &snap.Columns); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot columns: %w", err)
		}
	}

	reader := parquet.NewGenericReader[snapshotRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]snapshotRow, reader.NumRows())
	if len(rows) > 0 {
		if n, err := reader.Read(rows); err != nil && err != io.EOF {
			return Snapshot{}, fmt.Errorf("read snapshot rows: %w", err)
		} else {
			rows = rows[:n]
		}
	}
	for _, row := range rows {
		var values map[string]any
		if err := json.Unmarshal([]byte(row.PayloadJSON), &values); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot row %d: %w", row.RowIndex, err)
		}
		snap.Rows = append(snap.Rows, values)
	}
	return snap, nil
}
