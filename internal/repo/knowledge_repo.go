package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/knowdhq/knowd/internal/model"
	"github.com/knowdhq/knowd/internal/pkg/dbutil"
	appErr "github.com/knowdhq/knowd/internal/pkg/errors"
)

var knowledgeColumns = []string{
	"id", "owner_id", "source_type", "category", "title", "content",
	"tags", "importance", "embedding", "ctime",
}

type KnowledgeRepo struct {
	db *sql.DB
}

func NewKnowledgeRepo(db *sql.DB) *KnowledgeRepo {
	return &KnowledgeRepo{db: db}
}

func (r *KnowledgeRepo) Create(ctx context.Context, rec *model.KnowledgeRecord) error {
	data := map[string]interface{}{
		"id":          rec.ID,
		"owner_id":    rec.OwnerID,
		"source_type": rec.SourceType,
		"category":    rec.Category,
		"title":       rec.Title,
		"content":     rec.Content,
		"tags":        pq.Array(rec.Tags),
		"importance":  rec.Importance,
		"ctime":       rec.Ctime,
	}
	if rec.HasEmbedding() {
		data["embedding"] = pgvector.NewVector(rec.Embedding)
	}
	sqlStr, args, err := builder.BuildInsert("knowledge_records", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *KnowledgeRepo) Get(ctx context.Context, ownerID, id string) (*model.KnowledgeRecord, error) {
	where := map[string]interface{}{
		"id":       id,
		"owner_id": ownerID,
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_records", where, knowledgeColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	rec, err := scanKnowledge(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *KnowledgeRepo) Delete(ctx context.Context, ownerID, id string) error {
	where := map[string]interface{}{
		"id":       id,
		"owner_id": ownerID,
	}
	sqlStr, args, err := builder.BuildDelete("knowledge_records", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListCandidates applies the equality/range filter set before any scoring.
// Tag filtering matches records whose tag array overlaps the requested set.
func (r *KnowledgeRepo) ListCandidates(ctx context.Context, ownerID string, f model.SearchFilter, limit uint) ([]model.KnowledgeRecord, error) {
	where := map[string]interface{}{
		"owner_id": ownerID,
	}
	if f.SourceType != "" {
		where["source_type"] = f.SourceType
	}
	if f.Category != "" {
		where["category"] = f.Category
	}
	if f.MinImportance > 0 {
		where["importance >="] = f.MinImportance
	}
	if f.CtimeFrom > 0 {
		where["ctime >="] = f.CtimeFrom
	}
	if f.CtimeTo > 0 {
		where["ctime <="] = f.CtimeTo
	}
	if len(f.Tags) > 0 {
		where["_custom_tags"] = builder.Custom("tags && ?", pq.Array(f.Tags))
	}
	where["_orderby"] = "ctime desc"
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_records", where, knowledgeColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.KnowledgeRecord
	for rows.Next() {
		rec, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

func (r *KnowledgeRepo) SetEmbedding(ctx context.Context, ownerID, id string, embedding []float32) error {
	const query = `
		UPDATE knowledge_records SET embedding = $1
		WHERE id = $2 AND owner_id = $3
	`
	_, err := r.db.ExecContext(ctx, query, pgvector.NewVector(embedding), id, ownerID)
	return err
}

// ListMissingEmbeddings feeds the backfill job: records stored without a
// vector, oldest first.
func (r *KnowledgeRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]model.KnowledgeRecord, error) {
	const query = `
		SELECT id, owner_id, source_type, category, title, content, tags, importance, embedding, ctime
		FROM knowledge_records
		WHERE embedding IS NULL
		ORDER BY ctime ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.KnowledgeRecord
	for rows.Next() {
		rec, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

func (r *KnowledgeRepo) Stats(ctx context.Context, ownerID string) (*model.KnowledgeStats, error) {
	stats := &model.KnowledgeStats{
		BySourceType: map[string]int64{},
		ByCategory:   map[string]int64{},
	}
	const bySource = `
		SELECT source_type, COUNT(*), COUNT(embedding)
		FROM knowledge_records
		WHERE owner_id = $1
		GROUP BY source_type
	`
	rows, err := r.db.QueryContext(ctx, bySource, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sourceType string
		var total, embedded int64
		if err := rows.Scan(&sourceType, &total, &embedded); err != nil {
			return nil, err
		}
		stats.BySourceType[sourceType] = total
		stats.Total += total
		stats.WithEmbedding += embedded
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	const byCategory = `
		SELECT category, COUNT(*)
		FROM knowledge_records
		WHERE owner_id = $1
		GROUP BY category
	`
	crows, err := r.db.QueryContext(ctx, byCategory, ownerID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var category string
		var total int64
		if err := crows.Scan(&category, &total); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = total
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.EmbeddingCoverage = float64(stats.WithEmbedding) / float64(stats.Total)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKnowledge(row rowScanner) (*model.KnowledgeRecord, error) {
	var rec model.KnowledgeRecord
	var tags pq.StringArray
	var embRaw []byte
	if err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.SourceType, &rec.Category, &rec.Title,
		&rec.Content, &tags, &rec.Importance, &embRaw, &rec.Ctime,
	); err != nil {
		return nil, err
	}
	rec.Tags = []string(tags)
	if len(embRaw) > 0 {
		var vec pgvector.Vector
		if err := vec.Scan(embRaw); err == nil {
			rec.Embedding = vec.Slice()
		}
	}
	return &rec, nil
}
