package crmstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const copyStatement = `COPY "crm_inquiries" ("name", "email", "phone", "company", "message", ` +
	`"packaging_type", "subject", "source", "status", "priority", "notes", "created_at", "updated_at") FROM STDIN`

func TestPostgresStore_ExistingEmails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT email FROM "crm_inquiries" WHERE source = $1`)).
		WithArgs("paypal").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).
			AddRow("A@X.com").
			AddRow(nil).
			AddRow("").
			AddRow("b@x.com"))

	store := NewPostgres(db, "crm_inquiries")
	emails, err := store.ExistingEmails(context.Background(), "paypal")
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{"a@x.com": {}, "b@x.com": {}, "": {}}, emails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertInquiriesCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	rows := []Inquiry{
		{Name: "Alice", Email: "a@x.com", Source: "paypal", Status: "new", Priority: "high", CreatedAt: now, UpdatedAt: now},
		{Name: "Bob", Email: "b@x.com", Source: "paypal", Status: "new", Priority: "medium", CreatedAt: now, UpdatedAt: now},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(copyStatement))
	for _, r := range rows {
		prep.ExpectExec().
			WithArgs(r.Name, r.Email, r.Phone, r.Company, r.Message, r.PackagingType, r.Subject,
				r.Source, r.Status, r.Priority, r.Notes, r.CreatedAt, r.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := NewPostgres(db, "crm_inquiries").InsertInquiries(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertInquiriesRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(copyStatement))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	n, err := NewPostgres(db, "crm_inquiries").InsertInquiries(context.Background(), []Inquiry{
		{Email: "a@x.com"}, {Email: "b@x.com"},
	})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "failed to copy 2 rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	n, err := NewPostgres(db, "crm_inquiries").InsertInquiries(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
