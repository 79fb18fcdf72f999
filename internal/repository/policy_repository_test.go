package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insuratrack/insuratrack/internal/model"
)

var policyRowCols = []string{
	"id", "title", "description", "policy_number", "mobile_no", "sum_assured",
	"company_name", "premium", "start_date", "renewal_date", "customer_id",
	"agent_id", "is_active", "last_renewal_date", "document_name",
	"document_type", "document_uploaded_at", "created_at", "updated_at",
}

func policyRow(mockTime time.Time, start, renewal time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(policyRowCols).AddRow(
		uint64(9), "Health Cover", "family floater", "POL-0042", "9000000001",
		500000.0, "STAR HEALTH", 1200.0, start, renewal, uint64(3), uint64(2),
		true, nil, nil, nil, nil, mockTime, mockTime)
}

func TestPolicyRepo_Renew(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	start := now.AddDate(-1, 0, 0).Truncate(time.Second)
	oldRenewal := now.AddDate(0, 0, 10).Truncate(time.Second)
	newRenewal := now.AddDate(1, 0, 10).Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM policies WHERE id=\\? LIMIT 1 FOR UPDATE").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(now, start, oldRenewal))
	mock.ExpectExec("INSERT INTO policy_history").
		WithArgs(uint64(9), "Health Cover", "family floater", 1200.0,
			start.UTC(), oldRenewal.UTC(), uint64(3), uint64(2), "POL-0042",
			"9000000001", 500000.0, "STAR HEALTH", "renewal", uint64(77),
			sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectExec("UPDATE policies SET start_date=\\?, renewal_date=\\?, last_renewal_date=\\?, is_active=1, premium=\\?").
		WithArgs(oldRenewal.UTC(), newRenewal.UTC(), sqlmock.AnyArg(), 1350.0, uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPolicyRepo(db)
	premium := 1350.0
	updated, hist, err := repo.Renew(context.Background(), 9, 77, newRenewal, &premium, "")
	require.NoError(t, err)

	// Old renewal date becomes the new start date and the policy reactivates.
	assert.Equal(t, oldRenewal, updated.StartDate)
	assert.Equal(t, newRenewal, updated.RenewalDate)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 1350.0, updated.Premium)
	require.NotNil(t, updated.LastRenewalDate)

	// The snapshot preserves the pre-renewal state.
	assert.Equal(t, uint64(101), hist.ID)
	assert.Equal(t, "renewal", hist.ChangeType)
	assert.Equal(t, start, hist.StartDate)
	assert.Equal(t, oldRenewal, hist.RenewalDate)
	assert.Equal(t, 1200.0, hist.Premium)
	assert.Contains(t, hist.Notes, "Policy renewed on ")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_Renew_KeepsPremiumWhenOmitted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	start := now.AddDate(-1, 0, 0).Truncate(time.Second)
	oldRenewal := now.AddDate(0, 0, 5).Truncate(time.Second)
	newRenewal := now.AddDate(1, 0, 5).Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(uint64(9)).
		WillReturnRows(policyRow(now, start, oldRenewal))
	mock.ExpectExec("INSERT INTO policy_history").
		WillReturnResult(sqlmock.NewResult(102, 1))
	mock.ExpectExec("UPDATE policies SET start_date").
		WithArgs(oldRenewal.UTC(), newRenewal.UTC(), sqlmock.AnyArg(), 1200.0, uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPolicyRepo(db)
	updated, hist, err := repo.Renew(context.Background(), 9, 77, newRenewal, nil, "midterm renewal")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, updated.Premium)
	assert.Equal(t, "midterm renewal", hist.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_CreateWithLink_DuplicateNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("POL-0042").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectRollback()

	repo := NewPolicyRepo(db)
	p := examplePolicy()
	err = repo.CreateWithLink(context.Background(), &p)
	assert.ErrorIs(t, err, ErrPolicyNumberExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_CreateWithLink_SelfHealsLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("POL-0042").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
	mock.ExpectQuery("SELECT id FROM customers WHERE id=\\?").
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uint64(3)))
	mock.ExpectExec("INSERT IGNORE INTO agent_customers").
		WithArgs(uint64(2), uint64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO policies").
		WillReturnResult(sqlmock.NewResult(55, 1))
	mock.ExpectCommit()

	repo := NewPolicyRepo(db)
	p := examplePolicy()
	require.NoError(t, repo.CreateWithLink(context.Background(), &p))
	assert.Equal(t, uint64(55), p.ID)
	assert.True(t, p.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_CreateWithLink_UnknownCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("POL-0042").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
	mock.ExpectQuery("SELECT id FROM customers WHERE id=\\?").
		WithArgs(uint64(3)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	repo := NewPolicyRepo(db)
	p := examplePolicy()
	err = repo.CreateWithLink(context.Background(), &p)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_ToggleStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE policies SET is_active = NOT is_active").
		WithArgs(uint64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPolicyRepo(db)
	_, err = repo.ToggleStatus(context.Background(), 404)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_Update_DuplicateNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("POL-7", uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))

	repo := NewPolicyRepo(db)
	num := "POL-7"
	_, err = repo.Update(context.Background(), 9, PolicyUpdate{PolicyNumber: &num})
	assert.ErrorIs(t, err, ErrPolicyNumberExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo_Document_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT document_data").
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"document_data", "document_type", "document_name"}).
			AddRow(nil, nil, nil))

	repo := NewPolicyRepo(db)
	_, _, _, err = repo.Document(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func examplePolicy() model.Policy {
	now := time.Now().UTC()
	return model.Policy{
		Title:        "Health Cover",
		Description:  "family floater",
		PolicyNumber: "POL-0042",
		MobileNo:     "9000000001",
		SumAssured:   500000,
		CompanyName:  "STAR HEALTH",
		Premium:      1200,
		StartDate:    now,
		RenewalDate:  now.AddDate(1, 0, 0),
		CustomerID:   3,
		AgentID:      2,
	}
}
