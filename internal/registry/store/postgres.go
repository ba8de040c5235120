package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	dmodels "dedup/internal/deduplication/models"
	regmodels "dedup/internal/registry/models"
	id "dedup/pkg/domain"
	"dedup/pkg/platform/sentinel"
	txctx "dedup/pkg/platform/tx"
)

//go:embed schema.sql
var schemaDDL string

// Postgres persists the registry in PostgreSQL. Every method joins the
// transaction carried by ctx when there is one.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the registry tables when they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) q(ctx context.Context) txctx.Execer {
	return txctx.Pick(ctx, s.db)
}

// -----------------------------------------------------------------------------
// Column whitelist
// -----------------------------------------------------------------------------

// columnExpr maps a resolved structured name to its SQL expression. Only
// names present in the registry schemas are accepted, so nothing from the
// caller reaches the query text.
func columnExpr(name string) (string, error) {
	head, tail, qualified := strings.Cut(name, regmodels.QualifierSep)
	field, ok := regmodels.BeneficiarySchema.Field(head)
	if !ok {
		return "", fmt.Errorf("unknown column %q", name)
	}
	if !qualified {
		return "b." + sqlColumn(field.Name), nil
	}
	if field.Related == nil {
		return "", fmt.Errorf("unknown column %q", name)
	}
	related, ok := field.Related.Field(tail)
	if !ok || related.Related != nil {
		return "", fmt.Errorf("unknown column %q", name)
	}
	alias := "i"
	if head == regmodels.FieldBenefitPlan {
		alias = "p"
	}
	return alias + "." + sqlColumn(related.Name), nil
}

func sqlColumn(field string) string {
	switch field {
	case regmodels.FieldIndividual:
		return "individual_id"
	case regmodels.FieldBenefitPlan:
		return "benefit_plan_id"
	}
	return field
}

// -----------------------------------------------------------------------------
// Aggregation
// -----------------------------------------------------------------------------

func (s *Postgres) AggregateDuplicates(ctx context.Context, q dmodels.GroupingQuery) ([]dmodels.DuplicateGroup, error) {
	columns := q.Columns()
	selects := make([]string, 0, len(columns)+2)
	groupBy := make([]string, 0, len(columns))
	args := []any{uuid.UUID(q.PlanID)}

	for _, name := range q.Structured {
		expr, err := columnExpr(name)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("(%s)::text", expr))
	}
	for _, key := range q.Extension {
		args = append(args, key)
		selects = append(selects, fmt.Sprintf("(b.json_ext ->> $%d)", len(args)))
	}
	for i := range columns {
		groupBy = append(groupBy, fmt.Sprintf("%d", i+1))
	}
	selects = append(selects, "COUNT(b.id)", "array_agg(b.id::text ORDER BY b.id)")

	query := fmt.Sprintf(`
		SELECT %s
		FROM beneficiaries b
		JOIN individuals i ON i.id = b.individual_id
		JOIN benefit_plans p ON p.id = b.benefit_plan_id
		WHERE b.benefit_plan_id = $1 AND NOT b.is_deleted
		GROUP BY %s
		HAVING COUNT(b.id) > 1
		ORDER BY %s
	`, strings.Join(selects, ", "), strings.Join(groupBy, ", "), strings.Join(groupBy, ", "))

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate duplicates: %w", err)
	}
	defer rows.Close()

	var groups []dmodels.DuplicateGroup
	for rows.Next() {
		texts := make([]sql.NullString, len(columns))
		var count int
		var rawIDs []string
		dest := make([]any, 0, len(columns)+2)
		for i := range texts {
			dest = append(dest, &texts[i])
		}
		dest = append(dest, &count, pq.Array(&rawIDs))
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}

		values := make(map[string]string, len(columns))
		for i, name := range columns {
			values[name] = texts[i].String
		}
		ids := make([]id.BeneficiaryID, 0, len(rawIDs))
		for _, raw := range rawIDs {
			bid, err := id.ParseBeneficiaryID(raw)
			if err != nil {
				return nil, fmt.Errorf("scan duplicate group: %w", err)
			}
			ids = append(ids, bid)
		}
		groups = append(groups, dmodels.DuplicateGroup{
			Columns: columns,
			Values:  values,
			Count:   count,
			IDs:     ids,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate duplicates: %w", err)
	}
	return groups, nil
}

// -----------------------------------------------------------------------------
// Inserts
// -----------------------------------------------------------------------------

func (s *Postgres) CreateBenefitPlan(ctx context.Context, p *regmodels.BenefitPlan) error {
	schema, err := marshalJSON(p.BeneficiaryDataSchema)
	if err != nil {
		return err
	}
	ext, err := marshalJSON(p.JSONExt)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO benefit_plans (id, code, name, beneficiary_data_schema, json_ext,
			date_created, date_updated, user_created, user_updated, version, is_deleted)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5::jsonb, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(p.ID), p.Code, p.Name, schema, ext,
		p.DateCreated, p.DateUpdated, uuid.UUID(p.UserCreated), uuid.UUID(p.UserUpdated), p.Version, p.IsDeleted)
	return translateWriteErr("create benefit plan", err)
}

func (s *Postgres) CreateIndividual(ctx context.Context, i *regmodels.Individual) error {
	ext, err := marshalJSON(i.JSONExt)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO individuals (id, first_name, last_name, dob, json_ext,
			date_created, date_updated, user_created, user_updated, version, is_deleted)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(i.ID), i.FirstName, i.LastName, nullDate(i.DOB), ext,
		i.DateCreated, i.DateUpdated, uuid.UUID(i.UserCreated), uuid.UUID(i.UserUpdated), i.Version, i.IsDeleted)
	return translateWriteErr("create individual", err)
}

func (s *Postgres) CreateBeneficiary(ctx context.Context, b *regmodels.Beneficiary) error {
	ext, err := marshalJSON(b.JSONExt)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO beneficiaries (id, individual_id, benefit_plan_id, status, json_ext,
			date_created, date_updated, user_created, user_updated, version, is_deleted)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(b.ID), uuid.UUID(b.IndividualID), uuid.UUID(b.BenefitPlanID), string(b.Status), ext,
		b.DateCreated, b.DateUpdated, uuid.UUID(b.UserCreated), uuid.UUID(b.UserUpdated), b.Version, b.IsDeleted)
	return translateWriteErr("create beneficiary", err)
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

const beneficiaryColumns = `id, individual_id, benefit_plan_id, status, json_ext,
	date_created, date_updated, user_created, user_updated, version, is_deleted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner) (*regmodels.Beneficiary, error) {
	var (
		b                        regmodels.Beneficiary
		bid, iid, pid, ucr, uupd uuid.UUID
		status                   string
		ext                      []byte
	)
	if err := row.Scan(&bid, &iid, &pid, &status, &ext,
		&b.DateCreated, &b.DateUpdated, &ucr, &uupd, &b.Version, &b.IsDeleted); err != nil {
		return nil, err
	}
	b.ID = id.BeneficiaryID(bid)
	b.IndividualID = id.IndividualID(iid)
	b.BenefitPlanID = id.BenefitPlanID(pid)
	b.Status = regmodels.Status(status)
	b.UserCreated = id.UserID(ucr)
	b.UserUpdated = id.UserID(uupd)
	var err error
	if b.JSONExt, err = unmarshalJSON(ext); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Postgres) FindBeneficiary(ctx context.Context, bid id.BeneficiaryID) (*regmodels.Beneficiary, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1 AND NOT is_deleted`, uuid.UUID(bid))
	b, err := scanBeneficiary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find beneficiary: %w", err)
	}
	return b, nil
}

func (s *Postgres) FindIndividual(ctx context.Context, iid id.IndividualID) (*regmodels.Individual, error) {
	var (
		i              regmodels.Individual
		rawID, ucr, uu uuid.UUID
		dob            sql.NullTime
		ext            []byte
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, first_name, last_name, dob, json_ext,
			date_created, date_updated, user_created, user_updated, version, is_deleted
		FROM individuals WHERE id = $1 AND NOT is_deleted
	`, uuid.UUID(iid)).Scan(&rawID, &i.FirstName, &i.LastName, &dob, &ext,
		&i.DateCreated, &i.DateUpdated, &ucr, &uu, &i.Version, &i.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find individual: %w", err)
	}
	i.ID = id.IndividualID(rawID)
	i.UserCreated = id.UserID(ucr)
	i.UserUpdated = id.UserID(uu)
	if dob.Valid {
		i.DOB = regmodels.DateOf(dob.Time)
	}
	if i.JSONExt, err = unmarshalJSON(ext); err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *Postgres) FindBenefitPlan(ctx context.Context, pid id.BenefitPlanID) (*regmodels.BenefitPlan, error) {
	var (
		p              regmodels.BenefitPlan
		rawID, ucr, uu uuid.UUID
		schema, ext    []byte
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, code, name, beneficiary_data_schema, json_ext,
			date_created, date_updated, user_created, user_updated, version, is_deleted
		FROM benefit_plans WHERE id = $1 AND NOT is_deleted
	`, uuid.UUID(pid)).Scan(&rawID, &p.Code, &p.Name, &schema, &ext,
		&p.DateCreated, &p.DateUpdated, &ucr, &uu, &p.Version, &p.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find benefit plan: %w", err)
	}
	p.ID = id.BenefitPlanID(rawID)
	p.UserCreated = id.UserID(ucr)
	p.UserUpdated = id.UserID(uu)
	if p.BeneficiaryDataSchema, err = unmarshalJSON(schema); err != nil {
		return nil, err
	}
	if p.JSONExt, err = unmarshalJSON(ext); err != nil {
		return nil, err
	}
	return &p, nil
}

// -----------------------------------------------------------------------------
// Merge writes
// -----------------------------------------------------------------------------

// LockBeneficiaries row-locks the live members among ids in id order. Call it
// inside a transaction; outside one the locks are released immediately.
func (s *Postgres) LockBeneficiaries(ctx context.Context, ids []id.BeneficiaryID) ([]*regmodels.Beneficiary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+beneficiaryColumns+`
		FROM beneficiaries
		WHERE id = ANY($1::uuid[]) AND NOT is_deleted
		ORDER BY id
		FOR UPDATE
	`, pq.Array(id.BeneficiaryIDStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []*regmodels.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock beneficiaries: %w", err)
	}
	return out, nil
}

func (s *Postgres) UpdateIndividual(ctx context.Context, i *regmodels.Individual) error {
	ext, err := marshalJSON(i.JSONExt)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE individuals
		SET first_name = $2, last_name = $3, dob = $4, json_ext = $5::jsonb,
			date_updated = $6, user_updated = $7, version = $8
		WHERE id = $1
	`, uuid.UUID(i.ID), i.FirstName, i.LastName, nullDate(i.DOB), ext,
		i.DateUpdated, uuid.UUID(i.UserUpdated), i.Version)
	return expectRow("update individual", res, err)
}

func (s *Postgres) UpdateBeneficiaryFields(ctx context.Context, b *regmodels.Beneficiary) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE beneficiaries
		SET status = $2, date_updated = $3, user_updated = $4, version = $5
		WHERE id = $1 AND NOT is_deleted
	`, uuid.UUID(b.ID), string(b.Status), b.DateUpdated, uuid.UUID(b.UserUpdated), b.Version)
	return expectRow("update beneficiary", res, err)
}

func (s *Postgres) UpdateBeneficiaryExt(ctx context.Context, b *regmodels.Beneficiary) error {
	ext, err := marshalJSON(b.JSONExt)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE beneficiaries
		SET json_ext = $2::jsonb, date_updated = $3, user_updated = $4, version = $5
		WHERE id = $1 AND NOT is_deleted
	`, uuid.UUID(b.ID), ext, b.DateUpdated, uuid.UUID(b.UserUpdated), b.Version)
	return expectRow("update beneficiary ext", res, err)
}

func (s *Postgres) SoftDeleteBeneficiaries(ctx context.Context, ids []id.BeneficiaryID, user id.UserID, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE beneficiaries
		SET is_deleted = TRUE, date_updated = $2, user_updated = $3, version = version + 1
		WHERE id = ANY($1::uuid[]) AND NOT is_deleted
	`, pq.Array(id.BeneficiaryIDStrings(ids)), at, uuid.UUID(user))
	if err != nil {
		return 0, fmt.Errorf("soft delete beneficiaries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("soft delete beneficiaries: %w", err)
	}
	return int(n), nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func marshalJSON(m map[string]any) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unmarshalJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

func nullDate(d regmodels.Date) sql.NullTime {
	if d.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: d.Time(), Valid: true}
}

func expectRow(op string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func translateWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return sentinel.ErrConflict
		case "23503":
			return sentinel.ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
