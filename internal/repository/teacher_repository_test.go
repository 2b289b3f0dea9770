package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/fieldcrypt"
)

var teacherRowColumns = strings.Split(teacherColumns, ", ")

func newTeacherRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func newTestCipher(t *testing.T) *fieldcrypt.Cipher {
	cipher, err := fieldcrypt.New(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return cipher
}

func TestTeacherRepositoryListFiltersBySubject(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db, nil, nil)

	now := time.Now()
	rows := sqlmock.NewRows(teacherRowColumns).
		AddRow("t1", "a@example.com", "Teacher A", "hash", "{math,physics}", nil, nil, nil, nil, true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE 1=1 AND $1 ILIKE ANY(subjects) ORDER BY full_name ASC LIMIT 20 OFFSET 0")).
		WithArgs("Math").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE 1=1 AND $1 ILIKE ANY(subjects)")).
		WithArgs("Math").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TeacherFilter{Subject: "Math", SortBy: "full_name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"math", "physics"}, []string(list[0].Subjects))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateEncryptsPII(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db, newTestCipher(t), nil)

	phone := "+62 812 0000"
	var storedPhone string
	mock.ExpectExec("INSERT INTO teachers").
		WithArgs(sqlmock.AnyArg(), "a@example.com", "Teacher A", "hash", sqlmock.AnyArg(), nil,
			capture(func(v interface{}) { storedPhone, _ = v.(string) }), nil, nil, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacher := &models.Teacher{Email: "a@example.com", FullName: "Teacher A", PasswordHash: "hash", Phone: &phone, Active: true}
	require.NoError(t, repo.Create(context.Background(), teacher))

	assert.True(t, fieldcrypt.IsEncrypted(storedPhone))
	assert.Equal(t, "+62 812 0000", *teacher.Phone, "caller's copy stays plaintext")
	assert.NotEmpty(t, teacher.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryFindByIDDecryptFailureYieldsNil(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	core, logs := observer.New(zapcore.WarnLevel)
	cipher := newTestCipher(t)
	repo := NewTeacherRepository(db, cipher, zap.New(core))

	address, err := cipher.Encrypt("Jl. Merdeka 1")
	require.NoError(t, err)
	now := time.Now()
	rows := sqlmock.NewRows(teacherRowColumns).
		AddRow("t1", "a@example.com", "Teacher A", "hash", "{}", nil, "enc:zz:bad:value", address, "legacy-plain", true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(rows)

	teacher, err := repo.FindByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, teacher.Phone)
	require.NotNil(t, teacher.Address)
	assert.Equal(t, "Jl. Merdeka 1", *teacher.Address)
	require.NotNil(t, teacher.BankAccount)
	assert.Equal(t, "legacy-plain", *teacher.BankAccount)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "phone", logs.All()[0].ContextMap()["field"])
}

func TestTeacherRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db, nil, nil)

	mock.ExpectQuery("FROM teachers WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTeacherRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("a@example.com", "t1").
		WillReturnError(sql.ErrNoRows)
	exists, err := repo.ExistsByEmail(context.Background(), "a@example.com", "t1")
	require.NoError(t, err)
	assert.False(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"marker"}).AddRow(1))
	exists, err = repo.ExistsByEmail(context.Background(), "a@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTeacherRepositoryDeactivateMissing(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db, nil, nil)

	mock.ExpectExec("UPDATE teachers SET active = FALSE").
		WithArgs("id-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Deactivate(context.Background(), "id-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// capture is an argument matcher that records the value it sees.
type capture func(v interface{})

func (c capture) Match(v driver.Value) bool {
	c(v)
	return true
}
