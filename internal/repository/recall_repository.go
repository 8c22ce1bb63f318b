package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/recallguard/recallguard-api/internal/models"
)

// RecallFilter narrows the recall feed queries exposed to partners/ops.
type RecallFilter struct {
	Query  string
	Source models.Source
	Limit  uint64
}

type RecallRepository interface {
	// Upsert inserts the recall or, when (source, external_id) already
	// exists, refreshes its mutable fields. The returned bool reports
	// whether the row was newly inserted. Safe under concurrent calls for
	// the same key; the unique constraint is the sole correctness
	// mechanism.
	Upsert(ctx context.Context, recall models.Recall) (models.Recall, bool, error)
	Exists(ctx context.Context, source models.Source, externalID string) (bool, error)
	GetByID(ctx context.Context, recallID string) (models.Recall, error)
	GetBySourceExternalID(ctx context.Context, source models.Source, externalID string) (models.Recall, error)
	// ListInsertedAfter scopes matching to rows newer than a watermark.
	// The id breaks ties between rows sharing an inserted_at, so paging
	// never skips a row that straddles the limit boundary; pass an empty
	// id to start from the bare time watermark.
	ListInsertedAfter(ctx context.Context, after time.Time, afterID string, limit int) ([]models.Recall, error)
	List(ctx context.Context, filter RecallFilter) ([]models.Recall, error)
	ListBySources(ctx context.Context, sources []models.Source) ([]models.Recall, error)
	AppendRemedyUpdate(ctx context.Context, recallID string, update models.RemedyUpdate) (int, error)
	Count(ctx context.Context) (int, error)
}

type recallRepository struct {
	db *sql.DB
}

func NewRecallRepository(db *sql.DB) RecallRepository {
	return &recallRepository{db: db}
}

const recallColumns = `id, source, external_id, product, brand, category, hazard,
	recall_date, details_url, upcs, vins, raw_payload, remedy_updates, fetched_at, inserted_at`

func (r *recallRepository) Upsert(ctx context.Context, recall models.Recall) (models.Recall, bool, error) {
	// Empty incoming fields never clobber previously known values; the
	// upstream APIs drop fields between fetches more often than they
	// correct them.
	const query = `
		INSERT INTO recalls (source, external_id, product, brand, category, hazard, recall_date, details_url, upcs, vins, raw_payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, external_id) DO UPDATE SET
			product     = CASE WHEN EXCLUDED.product <> '' THEN EXCLUDED.product ELSE recalls.product END,
			brand       = CASE WHEN EXCLUDED.brand <> '' THEN EXCLUDED.brand ELSE recalls.brand END,
			category    = CASE WHEN EXCLUDED.category <> '' THEN EXCLUDED.category ELSE recalls.category END,
			hazard      = CASE WHEN EXCLUDED.hazard <> '' THEN EXCLUDED.hazard ELSE recalls.hazard END,
			recall_date = COALESCE(EXCLUDED.recall_date, recalls.recall_date),
			details_url = CASE WHEN EXCLUDED.details_url <> '' THEN EXCLUDED.details_url ELSE recalls.details_url END,
			upcs        = CASE WHEN cardinality(EXCLUDED.upcs) > 0 THEN EXCLUDED.upcs ELSE recalls.upcs END,
			vins        = CASE WHEN cardinality(EXCLUDED.vins) > 0 THEN EXCLUDED.vins ELSE recalls.vins END,
			raw_payload = COALESCE(EXCLUDED.raw_payload, recalls.raw_payload),
			fetched_at  = EXCLUDED.fetched_at
		RETURNING ` + recallColumns + `, (xmax = 0) AS was_new
	`

	var payload interface{}
	if len(recall.RawPayload) > 0 {
		payload = []byte(recall.RawPayload)
	}

	row := r.db.QueryRowContext(ctx, query,
		recall.Source,
		recall.ExternalID,
		recall.Product,
		recall.Brand,
		recall.Category,
		recall.Hazard,
		nullTime(recall.RecallDate),
		recall.DetailsURL,
		pq.Array(normalizeList(recall.UPCs)),
		pq.Array(normalizeList(recall.VINs)),
		payload,
		recall.FetchedAt,
	)

	var (
		stored models.Recall
		wasNew bool
	)
	if err := scanRecall(row, &stored, &wasNew); err != nil {
		return models.Recall{}, false, fmt.Errorf("upsert recall %s/%s: %w", recall.Source, recall.ExternalID, err)
	}
	return stored, wasNew, nil
}

func (r *recallRepository) Exists(ctx context.Context, source models.Source, externalID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM recalls WHERE source = $1 AND external_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, source, externalID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *recallRepository) GetByID(ctx context.Context, recallID string) (models.Recall, error) {
	query := `SELECT ` + recallColumns + ` FROM recalls WHERE id = $1`
	var recall models.Recall
	row := r.db.QueryRowContext(ctx, query, recallID)
	if err := scanRecall(row, &recall, nil); err != nil {
		return models.Recall{}, err
	}
	return recall, nil
}

func (r *recallRepository) GetBySourceExternalID(ctx context.Context, source models.Source, externalID string) (models.Recall, error) {
	query := `SELECT ` + recallColumns + ` FROM recalls WHERE source = $1 AND external_id = $2`
	var recall models.Recall
	row := r.db.QueryRowContext(ctx, query, source, externalID)
	if err := scanRecall(row, &recall, nil); err != nil {
		return models.Recall{}, err
	}
	return recall, nil
}

func (r *recallRepository) ListInsertedAfter(ctx context.Context, after time.Time, afterID string, limit int) ([]models.Recall, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + recallColumns + ` FROM recalls WHERE (inserted_at, id) > ($1, $2) ORDER BY inserted_at ASC, id ASC LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectRecalls(rows)
}

func (r *recallRepository) List(ctx context.Context, filter RecallFilter) ([]models.Recall, error) {
	if filter.Limit == 0 || filter.Limit > 50 {
		filter.Limit = 50
	}

	builder := sq.Select(strings.Fields(strings.ReplaceAll(recallColumns, ",", " "))...).
		From("recalls").
		OrderBy("recall_date DESC NULLS LAST", "inserted_at DESC").
		Limit(filter.Limit).
		PlaceholderFormat(sq.Dollar)

	if q := strings.TrimSpace(filter.Query); q != "" {
		builder = builder.Where(sq.ILike{"product": "%" + q + "%"})
	}
	if filter.Source != "" {
		builder = builder.Where(sq.Eq{"source": filter.Source})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recall query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRecalls(rows)
}

func (r *recallRepository) ListBySources(ctx context.Context, sources []models.Source) ([]models.Recall, error) {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	query := `SELECT ` + recallColumns + ` FROM recalls WHERE source = ANY($1) AND details_url <> ''`
	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(names))
	if err != nil {
		return nil, err
	}
	return collectRecalls(rows)
}

// AppendRemedyUpdate appends one entry to the recall's remedy history and
// returns the new history length (the remedy sequence number).
func (r *recallRepository) AppendRemedyUpdate(ctx context.Context, recallID string, update models.RemedyUpdate) (int, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return 0, fmt.Errorf("marshal remedy update: %w", err)
	}

	const query = `
		UPDATE recalls
		SET remedy_updates = remedy_updates || $2::jsonb
		WHERE id = $1
		RETURNING jsonb_array_length(remedy_updates)
	`
	var seq int
	if err := r.db.QueryRowContext(ctx, query, recallID, payload).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *recallRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recalls`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func collectRecalls(rows *sql.Rows) ([]models.Recall, error) {
	defer rows.Close()

	var recalls []models.Recall
	for rows.Next() {
		var recall models.Recall
		if err := scanRecall(rows, &recall, nil); err != nil {
			return nil, err
		}
		recalls = append(recalls, recall)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recalls, nil
}

func scanRecall(scanner interface {
	Scan(dest ...interface{}) error
}, recall *models.Recall, wasNew *bool) error {
	var (
		recallDate sql.NullTime
		payload    []byte
		remedyRaw  []byte
		upcs       pq.StringArray
		vins       pq.StringArray
	)

	dest := []interface{}{
		&recall.ID,
		&recall.Source,
		&recall.ExternalID,
		&recall.Product,
		&recall.Brand,
		&recall.Category,
		&recall.Hazard,
		&recallDate,
		&recall.DetailsURL,
		&upcs,
		&vins,
		&payload,
		&remedyRaw,
		&recall.FetchedAt,
		&recall.InsertedAt,
	}
	if wasNew != nil {
		dest = append(dest, wasNew)
	}
	if err := scanner.Scan(dest...); err != nil {
		return err
	}

	if recallDate.Valid {
		t := recallDate.Time
		recall.RecallDate = &t
	}
	recall.UPCs = upcs
	recall.VINs = vins
	if len(payload) > 0 {
		recall.RawPayload = payload
	}
	if len(remedyRaw) > 0 {
		if err := json.Unmarshal(remedyRaw, &recall.RemedyHist); err != nil {
			return fmt.Errorf("decode remedy updates: %w", err)
		}
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func normalizeList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
