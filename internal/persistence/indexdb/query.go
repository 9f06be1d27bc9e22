package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

// Reader runs read-only queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Reader returns a query handle sharing the index's connection.
func (s *SQLiteIndex) Reader() *Reader { return &Reader{db: s.db} }

// Ticks lists indexed ticks at or after from, oldest first.
func (r *Reader) Ticks(ctx context.Context, from uint64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,digest,buildings,connections,dangling,shortages,rebuilt,has_layout FROM ticks WHERE tick >= ? ORDER BY tick ASC LIMIT ?`,
		int64(from), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var (
			t                  TickRow
			tick               int64
			rebuilt, hasLayout int
		)
		if err := rows.Scan(&tick, &t.Digest, &t.Buildings, &t.Connections, &t.Dangling, &t.Shortages, &rebuilt, &hasLayout); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Tick = uint64(tick)
		t.Rebuilt = rebuilt != 0
		t.HasLayout = hasLayout != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Saves lists recorded saves, newest first.
func (r *Reader) Saves(ctx context.Context, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,save_id,path,buildings,connections,catalog_digest,recorded_at FROM saves ORDER BY tick DESC, recorded_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query saves: %w", err)
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var (
			s    SaveRow
			tick int64
		)
		if err := rows.Scan(&tick, &s.SaveID, &s.Path, &s.Buildings, &s.Connections, &s.CatalogDigest, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

type AuditRow struct {
	Tick       uint64 `json:"tick"`
	Seq        int    `json:"seq"`
	Action     string `json:"action"`
	BuildingID string `json:"building_id,omitempty"`
	Type       string `json:"type,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Audits lists audit rows, newest first, optionally for one building.
func (r *Reader) Audits(ctx context.Context, buildingID string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT tick,seq,action,COALESCE(building_id,''),COALESCE(type,''),COALESCE(reason,'') FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`
	args := []any{limit}
	if buildingID != "" {
		q = `SELECT tick,seq,action,COALESCE(building_id,''),COALESCE(type,''),COALESCE(reason,'') FROM audits WHERE building_id=? ORDER BY tick DESC, seq DESC LIMIT ?`
		args = []any{buildingID, limit}
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var (
			a    AuditRow
			tick int64
		)
		if err := rows.Scan(&tick, &a.Seq, &a.Action, &a.BuildingID, &a.Type, &a.Reason); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}

type CatalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func (r *Reader) Catalogs(ctx context.Context) ([]CatalogRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query catalogs: %w", err)
	}
	defer rows.Close()
	var out []CatalogRow
	for rows.Next() {
		var c CatalogRow
		if err := rows.Scan(&c.Name, &c.Digest, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
