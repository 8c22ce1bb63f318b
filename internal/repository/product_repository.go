package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/recallguard/recallguard-api/internal/models"
)

// ProductRepository is read-only inside the pipeline; product CRUD belongs
// to the API layer.
type ProductRepository interface {
	ListByUPCs(ctx context.Context, upcs []string) ([]models.Product, error)
	ListByVINs(ctx context.Context, vins []string) ([]models.Product, error)
	ListByBrandCategory(ctx context.Context, brand, category string) ([]models.Product, error)
	// ListDistinctVINs feeds the VIN-specific recall adapter.
	ListDistinctVINs(ctx context.Context) ([]string, error)
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, user_id, name, upc, vin, brand, category, created_at`

func (r *productRepository) ListByUPCs(ctx context.Context, upcs []string) ([]models.Product, error) {
	if len(upcs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE upc = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(upcs))
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *productRepository) ListByVINs(ctx context.Context, vins []string) ([]models.Product, error) {
	if len(vins) == 0 {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE vin = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(vins))
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *productRepository) ListByBrandCategory(ctx context.Context, brand, category string) ([]models.Product, error) {
	brand = strings.TrimSpace(brand)
	category = strings.TrimSpace(category)
	if brand == "" || category == "" {
		return nil, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE lower(brand) = lower($1) AND lower(category) = lower($2)`
	rows, err := r.db.QueryContext(ctx, query, brand, category)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *productRepository) ListDistinctVINs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT vin FROM products WHERE vin <> '' ORDER BY vin`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vins []string
	for rows.Next() {
		var vin string
		if err := rows.Scan(&vin); err != nil {
			return nil, err
		}
		vins = append(vins, vin)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vins, nil
}

func collectProducts(rows *sql.Rows) ([]models.Product, error) {
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.UPC, &p.VIN, &p.Brand, &p.Category, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
