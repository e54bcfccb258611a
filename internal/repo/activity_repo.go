package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/dbutil"
)

type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

func (r *ActivityRepo) Insert(ctx context.Context, item *model.SearchActivity) error {
	data := map[string]interface{}{
		"id":           item.ID,
		"owner_id":     item.OwnerID,
		"query":        item.Query,
		"mode":         item.Mode,
		"result_count": item.ResultCount,
		"ctime":        item.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("search_activity", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ActivityRepo) Recent(ctx context.Context, ownerID string, limit uint) ([]model.SearchActivity, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
		"_orderby": "ctime desc",
		"_limit":   []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("search_activity", where,
		[]string{"id", "owner_id", "query", "mode", "result_count", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.SearchActivity, 0)
	for rows.Next() {
		var item model.SearchActivity
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Query, &item.Mode, &item.ResultCount, &item.Ctime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
