package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

// EmbeddingRepo persists business vectors keyed by (business_id, version).
// On sqlite the vector is a JSON blob; on postgres it is a pgvector column.
// Save always fully overwrites the row.
type EmbeddingRepo struct {
	db *DB
}

func NewEmbeddingRepo(db *DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) encodeVector(vec []float32) (interface{}, error) {
	if r.db.Driver == DriverPostgres {
		return pgvector.NewVector(vec), nil
	}
	blob, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (r *EmbeddingRepo) Save(ctx context.Context, emb *model.BusinessEmbedding) error {
	encoded, err := r.encodeVector(emb.Vector)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"business_id": emb.BusinessID,
		"version":     emb.Version,
		"embedding":   encoded,
		"source_text": emb.SourceText,
		"mtime":       emb.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("business_embeddings", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	if r.db.Driver == DriverPostgres {
		sqlStr += " ON CONFLICT (business_id, version) DO UPDATE SET embedding = EXCLUDED.embedding, source_text = EXCLUDED.source_text, mtime = EXCLUDED.mtime"
	} else {
		sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingRepo) Get(ctx context.Context, businessID, version string) (*model.BusinessEmbedding, error) {
	where := map[string]interface{}{
		"business_id": businessID,
		"version":     version,
	}
	sqlStr, args, err := builder.BuildSelect("business_embeddings", where,
		[]string{"business_id", "version", "embedding", "source_text", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	emb, err := r.scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return emb, err
}

// ListByIDs loads the stored vectors for the given businesses under one
// version, in no particular order. Missing rows are simply absent from the
// result.
func (r *EmbeddingRepo) ListByIDs(ctx context.Context, ids []string, version string) ([]model.BusinessEmbedding, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{
		"business_id in": ids,
		"version":        version,
	}
	sqlStr, args, err := builder.BuildSelect("business_embeddings", where,
		[]string{"business_id", "version", "embedding", "source_text", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BusinessEmbedding
	for rows.Next() {
		emb, err := r.scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *emb)
	}
	return out, rows.Err()
}

// SampleVectorDim probes the dimension of any one stored vector for the
// version. Returns ErrNotFound on an empty catalog.
func (r *EmbeddingRepo) SampleVectorDim(ctx context.Context, version string) (int, error) {
	sqlStr, args := r.db.finalize("SELECT embedding FROM business_embeddings WHERE version = ? LIMIT 1", []interface{}{version})
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	vec, err := r.scanVector(row)
	if err == sql.ErrNoRows {
		return 0, appErr.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

func (r *EmbeddingRepo) scanEmbedding(row rowScanner) (*model.BusinessEmbedding, error) {
	var emb model.BusinessEmbedding
	if r.db.Driver == DriverPostgres {
		var vec pgvector.Vector
		if err := row.Scan(&emb.BusinessID, &emb.Version, &vec, &emb.SourceText, &emb.Mtime); err != nil {
			return nil, err
		}
		emb.Vector = vec.Slice()
		return &emb, nil
	}
	var blob []byte
	if err := row.Scan(&emb.BusinessID, &emb.Version, &blob, &emb.SourceText, &emb.Mtime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &emb.Vector); err != nil {
		return nil, err
	}
	return &emb, nil
}

func (r *EmbeddingRepo) scanVector(row rowScanner) ([]float32, error) {
	if r.db.Driver == DriverPostgres {
		var vec pgvector.Vector
		if err := row.Scan(&vec); err != nil {
			return nil, err
		}
		return vec.Slice(), nil
	}
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal(blob, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
