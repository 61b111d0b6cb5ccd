package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"resource-management-service/internal/core"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	uniqueViolation          = pq.ErrorCode("23505")
	characteristicUniqueName = "uk_resource_code_type"
)

const resourceColumns = `id, type, country_code, street_address, city, postal_code,
	location_country_code, created_at, updated_at, version`

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*core.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`

	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrap(err, "select resource")
	}
	return res, nil
}

func (r *Repository) FindByIDWithCharacteristics(ctx context.Context, id uuid.UUID) (*core.Resource, error) {
	res, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadCharacteristics(ctx, []*core.Resource{res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repository) FindAll(ctx context.Context, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(ctx, "", nil, page)
}

func (r *Repository) FindByCountryCode(ctx context.Context, countryCode string, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(ctx, "country_code = $1", []interface{}{countryCode}, page)
}

func (r *Repository) FindByType(ctx context.Context, t core.ResourceType, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(ctx, "type = $1", []interface{}{string(t)}, page)
}

func (r *Repository) FindByCountryCodeAndType(ctx context.Context, countryCode string, t core.ResourceType, page core.PageRequest) (*core.Page[*core.Resource], error) {
	return r.findPage(ctx, "country_code = $1 AND type = $2", []interface{}{countryCode, string(t)}, page)
}

func (r *Repository) FindAllWithCharacteristics(ctx context.Context) ([]*core.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "select resources")
	}
	list, err := scanResources(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadCharacteristics(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count resources")
	}
	return n, nil
}

// Save writes the resource row and replaces its characteristics in one transaction.
// Updates only succeed when the stored version still equals res.Version.
func (r *Repository) Save(ctx context.Context, res *core.Resource) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	prevID, prevCreated, prevUpdated, prevVersion := res.ID, res.CreatedAt, res.UpdatedAt, res.Version
	prevCharIDs := make([]uuid.UUID, len(res.Characteristics))
	for i, c := range res.Characteristics {
		prevCharIDs[i] = c.ID
	}
	defer func() {
		if err != nil {
			res.ID, res.CreatedAt, res.UpdatedAt, res.Version = prevID, prevCreated, prevUpdated, prevVersion
			for i, c := range res.Characteristics {
				c.ID = prevCharIDs[i]
			}
		}
	}()

	now := r.now()
	if res.IsNew() {
		err = r.insertResource(ctx, tx, res, now)
	} else {
		err = r.updateResource(ctx, tx, res, now)
	}
	if err != nil {
		return err
	}

	if err := r.replaceCharacteristics(ctx, tx, res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(err, "commit transaction")
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, res *core.Resource) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, res.ID)
	if err != nil {
		return errors.Wrap(err, "delete resource")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete resource")
	}
	if rows == 0 {
		return &core.NotFoundError{ID: res.ID}
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) insertResource(ctx context.Context, tx *sql.Tx, res *core.Resource, now time.Time) error {
	query := `
		INSERT INTO resources (id, type, country_code, street_address, city, postal_code,
			location_country_code, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, 0)`

	id := uuid.New()
	_, err := tx.ExecContext(ctx, query,
		id, string(res.Type), res.CountryCode,
		res.Location.StreetAddress, res.Location.City, res.Location.PostalCode, res.Location.CountryCode,
		now,
	)
	if err != nil {
		return mapWriteError(err, "insert resource")
	}

	res.ID = id
	res.CreatedAt = now
	res.UpdatedAt = now
	res.Version = 0
	return nil
}

func (r *Repository) updateResource(ctx context.Context, tx *sql.Tx, res *core.Resource, now time.Time) error {
	query := `
		UPDATE resources
		SET street_address = $1, city = $2, postal_code = $3, location_country_code = $4,
			updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING created_at, version`

	var (
		createdAt time.Time
		version   int64
	)
	err := tx.QueryRowContext(ctx, query,
		res.Location.StreetAddress, res.Location.City, res.Location.PostalCode, res.Location.CountryCode,
		now, res.ID, res.Version,
	).Scan(&createdAt, &version)

	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM resources WHERE id = $1)`, res.ID).Scan(&exists); err != nil {
			return errors.Wrap(err, "check resource existence")
		}
		if !exists {
			return &core.NotFoundError{ID: res.ID}
		}
		return core.ErrConcurrencyConflict
	}
	if err != nil {
		return mapWriteError(err, "update resource")
	}

	res.CreatedAt = createdAt
	res.UpdatedAt = now
	res.Version = version
	return nil
}

func (r *Repository) replaceCharacteristics(ctx context.Context, tx *sql.Tx, res *core.Resource) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM characteristics WHERE resource_id = $1`, res.ID); err != nil {
		return errors.Wrap(err, "clear characteristics")
	}

	query := `
		INSERT INTO characteristics (id, resource_id, code, type, value, position)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i, c := range res.Characteristics {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, query, c.ID, res.ID, c.Code, string(c.Type), c.Value, i); err != nil {
			return mapWriteError(err, "insert characteristic")
		}
	}
	return nil
}

func (r *Repository) findPage(ctx context.Context, where string, args []interface{}, page core.PageRequest) (*core.Page[*core.Resource], error) {
	page = page.Normalize()

	countQuery := `SELECT COUNT(*) FROM resources`
	selectQuery := `SELECT ` + resourceColumns + ` FROM resources`
	if where != "" {
		countQuery += ` WHERE ` + where
		selectQuery += ` WHERE ` + where
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, errors.Wrap(err, "count resources")
	}

	n := len(args)
	selectQuery += fmt.Sprintf(` ORDER BY %s, id LIMIT $%d OFFSET $%d`, orderBy(page), n+1, n+2)
	rows, err := r.db.QueryContext(ctx, selectQuery, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, errors.Wrap(err, "select resources")
	}
	list, err := scanResources(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadCharacteristics(ctx, list); err != nil {
		return nil, err
	}
	return core.NewPage(list, page, total), nil
}

// loadCharacteristics fetches the children of all given resources with one query.
func (r *Repository) loadCharacteristics(ctx context.Context, list []*core.Resource) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*core.Resource, len(list))
	ids := make([]string, 0, len(list))
	for _, res := range list {
		byID[res.ID] = res
		ids = append(ids, res.ID.String())
	}

	query := `
		SELECT id, resource_id, code, type, value
		FROM characteristics
		WHERE resource_id = ANY($1::uuid[])
		ORDER BY resource_id, position`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return errors.Wrap(err, "select characteristics")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c          core.Characteristic
			resourceID uuid.UUID
			charType   string
		)
		if err := rows.Scan(&c.ID, &resourceID, &c.Code, &charType, &c.Value); err != nil {
			return errors.Wrap(err, "scan characteristic")
		}
		c.Type = core.CharacteristicType(charType)
		if owner, ok := byID[resourceID]; ok {
			owner.AddCharacteristic(&c)
		}
	}
	return errors.Wrap(rows.Err(), "iterate characteristics")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (*core.Resource, error) {
	var (
		res     core.Resource
		resType string
	)
	err := row.Scan(
		&res.ID, &resType, &res.CountryCode,
		&res.Location.StreetAddress, &res.Location.City, &res.Location.PostalCode, &res.Location.CountryCode,
		&res.CreatedAt, &res.UpdatedAt, &res.Version,
	)
	if err != nil {
		return nil, err
	}
	res.Type = core.ResourceType(resType)
	return &res, nil
}

func scanResources(rows *sql.Rows) ([]*core.Resource, error) {
	defer rows.Close()

	var list []*core.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan resource")
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate resources")
	}
	return list, nil
}

var sortColumns = map[core.SortField]string{
	core.SortCreatedAt:   "created_at",
	core.SortUpdatedAt:   "updated_at",
	core.SortCountryCode: "country_code",
	core.SortType:        "type",
}

func orderBy(page core.PageRequest) string {
	col, ok := sortColumns[page.Sort]
	if !ok {
		col = "created_at"
	}
	if page.Descending {
		return col + " DESC"
	}
	return col + " ASC"
}

// mapWriteError turns the characteristic uniqueness constraint into core.ErrIntegrityViolation.
func mapWriteError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation &&
		strings.Contains(pqErr.Constraint, characteristicUniqueName) {
		return fmt.Errorf("%s: %w", msg, core.ErrIntegrityViolation)
	}
	return errors.Wrap(err, msg)
}
