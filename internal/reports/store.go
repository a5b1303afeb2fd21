package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SavedRecipe is a saved combination of templates, window, and account
// that can be exported or analyzed. Immutable after creation.
type SavedRecipe struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TemplateIDs []string  `json:"template_ids"`
	WindowDays  int       `json:"window_days"`
	AdAccountID string    `json:"ad_account_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FileRecord tracks a produced report file for a recipe.
type FileRecord struct {
	ID         string    `json:"id"`
	RecipeID   string    `json:"recipe_id"`
	TemplateID string    `json:"template_id"`
	FilePath   string    `json:"file_path"`
	FileName   string    `json:"file_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store handles CRUD for saved_reports and report_files tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRecipe validates and inserts a recipe. Template ids must all
// exist in the catalog and the window must be at least one day.
func (s *Store) CreateRecipe(ctx context.Context, r *SavedRecipe) error {
	if r.Name == "" {
		return fmt.Errorf("recipe name required")
	}
	if len(r.TemplateIDs) == 0 {
		return fmt.Errorf("recipe needs at least one template")
	}
	for _, tid := range r.TemplateIDs {
		if _, ok := TemplateByID(tid); !ok {
			return fmt.Errorf("unknown template %q", tid)
		}
	}
	if r.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	templatesJSON, _ := json.Marshal(r.TemplateIDs)
	return s.db.QueryRowContext(ctx,
		`INSERT INTO saved_reports (id, name, template_ids, window_days, ad_account_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		r.ID, r.Name, templatesJSON, r.WindowDays, nullable(r.AdAccountID),
	).Scan(&r.CreatedAt)
}

// GetRecipe returns a recipe, or nil when absent.
func (s *Store) GetRecipe(ctx context.Context, id string) (*SavedRecipe, error) {
	var r SavedRecipe
	var templatesJSON []byte
	var account sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, template_ids, window_days, ad_account_id, created_at
		FROM saved_reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &templatesJSON, &r.WindowDays, &account, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal(templatesJSON, &r.TemplateIDs)
	r.AdAccountID = account.String
	return &r, nil
}

// ListRecipes returns recipes newest first.
func (s *Store) ListRecipes(ctx context.Context) ([]SavedRecipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, template_ids, window_days, ad_account_id, created_at
		FROM saved_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipes []SavedRecipe
	for rows.Next() {
		var r SavedRecipe
		var templatesJSON []byte
		var account sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &templatesJSON, &r.WindowDays, &account, &r.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal(templatesJSON, &r.TemplateIDs)
		r.AdAccountID = account.String
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

// DeleteRecipe removes a recipe and cascades to its file records.
func (s *Store) DeleteRecipe(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_files WHERE recipe_id = $1`, id); err != nil {
		return fmt.Errorf("deleting file records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM saved_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting recipe: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// AddFileRecord registers a produced file for a recipe.
func (s *Store) AddFileRecord(ctx context.Context, f *FileRecord) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return s.db.QueryRowContext(ctx,
		`INSERT INTO report_files (id, recipe_id, template_id, file_path, file_name)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		f.ID, f.RecipeID, f.TemplateID, f.FilePath, f.FileName,
	).Scan(&f.CreatedAt)
}

// ListFileRecords returns a recipe's produced files, newest first.
func (s *Store) ListFileRecords(ctx context.Context, recipeID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, template_id, file_path, file_name, created_at
		FROM report_files WHERE recipe_id = $1 ORDER BY created_at DESC`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.RecipeID, &f.TemplateID, &f.FilePath, &f.FileName, &f.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
