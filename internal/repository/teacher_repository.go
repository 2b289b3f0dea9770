package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// FieldCipher encrypts sensitive columns at the repository boundary.
type FieldCipher interface {
	EncryptPtr(value *string) (*string, error)
	DecryptPtr(value *string) (*string, error)
}

const teacherColumns = "id, email, full_name, password_hash, subjects, bio, phone, address, bank_account, active, last_login, created_at, updated_at"

// TeacherRepository manages persistence for teachers. Phone, address and bank account
// are encrypted before every write and decrypted after every read.
type TeacherRepository struct {
	db     *sqlx.DB
	cipher FieldCipher
	logger *zap.Logger
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB, cipher FieldCipher, logger *zap.Logger) *TeacherRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherRepository{db: db, cipher: cipher, logger: logger}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("$%d ILIKE ANY(subjects)", len(args)+1))
		args = append(args, filter.Subject)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"email":      "email",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}
	for i := range teachers {
		r.decode(&teachers[i])
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID returns a teacher by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	query := "SELECT " + teacherColumns + " FROM teachers WHERE id = $1"
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by id: %w", err)
	}
	r.decode(&teacher)
	return &teacher, nil
}

// FindByEmail returns a teacher by case-insensitive email.
func (r *TeacherRepository) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	var teacher models.Teacher
	query := "SELECT " + teacherColumns + " FROM teachers WHERE LOWER(email) = LOWER($1)"
	if err := r.db.GetContext(ctx, &teacher, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by email: %w", err)
	}
	r.decode(&teacher)
	return &teacher, nil
}

// FindByIDs returns the teachers among ids that exist, in no particular order.
func (r *TeacherRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	if len(ids) == 0 {
		return []models.Teacher{}, nil
	}
	var teachers []models.Teacher
	query := "SELECT " + teacherColumns + " FROM teachers WHERE id = ANY($1)"
	if err := r.db.SelectContext(ctx, &teachers, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find teachers by ids: %w", err)
	}
	for i := range teachers {
		r.decode(&teachers[i])
	}
	return teachers, nil
}

// ExistsByEmail checks whether another teacher already uses email.
func (r *TeacherRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var marker int
	if err := r.db.GetContext(ctx, &marker, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher email: %w", err)
	}
	return true, nil
}

// Create inserts a teacher, encrypting PII columns.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	if teacher.Subjects == nil {
		teacher.Subjects = pq.StringArray{}
	}

	row, err := r.encode(teacher)
	if err != nil {
		return err
	}
	const query = `INSERT INTO teachers (id, email, full_name, password_hash, subjects, bio, phone, address, bank_account, active, created_at, updated_at)
VALUES (:id, :email, :full_name, :password_hash, :subjects, :bio, :phone, :address, :bank_account, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update persists profile changes, encrypting PII columns.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	row, err := r.encode(teacher)
	if err != nil {
		return err
	}
	const query = `UPDATE teachers SET email = :email, full_name = :full_name, subjects = :subjects, bio = :bio, phone = :phone,
address = :address, bank_account = :bank_account, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return expectAffected(res)
}

// Deactivate marks the teacher inactive.
func (r *TeacherRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE teachers SET active = FALSE, updated_at = $2 WHERE id = $1", id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate teacher: %w", err)
	}
	return expectAffected(res)
}

// UpdatePassword stores a new password hash.
func (r *TeacherRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE teachers SET password_hash = $2, updated_at = $3 WHERE id = $1", id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update teacher password: %w", err)
	}
	return nil
}

// UpdateLastLogin records a successful login.
func (r *TeacherRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE teachers SET last_login = $2 WHERE id = $1", id, ts); err != nil {
		return fmt.Errorf("update teacher last login: %w", err)
	}
	return nil
}

func (r *TeacherRepository) encode(teacher *models.Teacher) (*models.Teacher, error) {
	row := *teacher
	if r.cipher == nil {
		return &row, nil
	}
	var err error
	if row.Phone, err = r.cipher.EncryptPtr(teacher.Phone); err != nil {
		return nil, fmt.Errorf("encrypt teacher phone: %w", err)
	}
	if row.Address, err = r.cipher.EncryptPtr(teacher.Address); err != nil {
		return nil, fmt.Errorf("encrypt teacher address: %w", err)
	}
	if row.BankAccount, err = r.cipher.EncryptPtr(teacher.BankAccount); err != nil {
		return nil, fmt.Errorf("encrypt teacher bank account: %w", err)
	}
	return &row, nil
}

// decode decrypts PII in place. A field that fails to decrypt is set to nil so one corrupt
// value never fails the whole record.
func (r *TeacherRepository) decode(teacher *models.Teacher) {
	if r.cipher == nil {
		return
	}
	fields := []struct {
		name  string
		value **string
	}{
		{"phone", &teacher.Phone},
		{"address", &teacher.Address},
		{"bank_account", &teacher.BankAccount},
	}
	for _, f := range fields {
		plain, err := r.cipher.DecryptPtr(*f.value)
		if err != nil {
			r.logger.Warn("failed to decrypt teacher field", zap.String("teacher_id", teacher.ID), zap.String("field", f.name), zap.Error(err))
		}
		*f.value = plain
	}
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
