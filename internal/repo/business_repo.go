package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

var businessFields = []string{"id", "name", "description", "category", "subcategory", "tags", "city", "address", "lat", "lng", "rating", "ctime", "mtime"}

type BusinessRepo struct {
	db *DB
}

func NewBusinessRepo(db *DB) *BusinessRepo {
	return &BusinessRepo{db: db}
}

func (r *BusinessRepo) Create(ctx context.Context, b *model.Business) error {
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          b.ID,
		"name":        b.Name,
		"description": b.Description,
		"category":    b.Category,
		"subcategory": b.Subcategory,
		"tags":        string(tags),
		"city":        b.City,
		"address":     b.Address,
		"lat":         b.Lat,
		"lng":         b.Lng,
		"rating":      b.Rating,
		"ctime":       b.Ctime,
		"mtime":       b.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("businesses", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *BusinessRepo) Update(ctx context.Context, b *model.Business) error {
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return err
	}
	where := map[string]interface{}{"id": b.ID}
	update := map[string]interface{}{
		"name":        b.Name,
		"description": b.Description,
		"category":    b.Category,
		"subcategory": b.Subcategory,
		"tags":        string(tags),
		"city":        b.City,
		"address":     b.Address,
		"lat":         b.Lat,
		"lng":         b.Lng,
		"rating":      b.Rating,
		"mtime":       b.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("businesses", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *BusinessRepo) Get(ctx context.Context, id string) (*model.Business, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("businesses", where, businessFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	b, err := scanBusiness(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return b, err
}

func (r *BusinessRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Business, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	where := map[string]interface{}{"id in": ids}
	sqlStr, args, err := builder.BuildSelect("businesses", where, businessFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListIDs is the metadata-only scan the reconcile job diffs against
// completed statuses; it never touches vector columns.
func (r *BusinessRepo) ListIDs(ctx context.Context) ([]string, error) {
	sqlStr, args := r.db.finalize("SELECT id FROM businesses", nil)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBusiness(row rowScanner) (*model.Business, error) {
	var b model.Business
	var tags string
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Category, &b.Subcategory, &tags,
		&b.City, &b.Address, &b.Lat, &b.Lng, &b.Rating, &b.Ctime, &b.Mtime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, err
	}
	return &b, nil
}
