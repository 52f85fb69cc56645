package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

// StatusRepo tracks per-business generation state. Writes here are
// diagnostic: callers log and swallow failures, the vector row stays
// authoritative.
type StatusRepo struct {
	db *DB
}

func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

func (r *StatusRepo) Upsert(ctx context.Context, st *model.EmbeddingStatus) error {
	data := map[string]interface{}{
		"business_id":    st.BusinessID,
		"version":        st.Version,
		"status":         st.Status,
		"has_embedding":  st.HasEmbedding,
		"last_generated": st.LastGenerated,
		"mtime":          st.Mtime,
		"error":          st.Error,
		"attempts":       st.Attempts,
	}
	sqlStr, args, err := builder.BuildInsert("embedding_status", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	if r.db.Driver == DriverPostgres {
		sqlStr += " ON CONFLICT (business_id, version) DO UPDATE SET status = EXCLUDED.status, has_embedding = EXCLUDED.has_embedding, last_generated = EXCLUDED.last_generated, mtime = EXCLUDED.mtime, error = EXCLUDED.error, attempts = EXCLUDED.attempts"
	} else {
		sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *StatusRepo) Get(ctx context.Context, businessID, version string) (*model.EmbeddingStatus, error) {
	where := map[string]interface{}{
		"business_id": businessID,
		"version":     version,
	}
	sqlStr, args, err := builder.BuildSelect("embedding_status", where,
		[]string{"business_id", "version", "status", "has_embedding", "last_generated", "mtime", "error", "attempts"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var st model.EmbeddingStatus
	err = row.Scan(&st.BusinessID, &st.Version, &st.Status, &st.HasEmbedding,
		&st.LastGenerated, &st.Mtime, &st.Error, &st.Attempts)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListCompletedIDs is a metadata-only scan: it answers "who already has a
// vector for this version" without loading a single embedding.
func (r *StatusRepo) ListCompletedIDs(ctx context.Context, version string) ([]string, error) {
	sqlStr, args := r.db.finalize(
		"SELECT business_id FROM embedding_status WHERE version = ? AND status = ?",
		[]interface{}{version, model.EmbeddingStatusCompleted})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *StatusRepo) CountByStatus(ctx context.Context, version string) (map[string]int, error) {
	sqlStr, args := r.db.finalize(
		"SELECT status, COUNT(1) FROM embedding_status WHERE version = ? GROUP BY status",
		[]interface{}{version})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
