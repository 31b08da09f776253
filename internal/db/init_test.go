package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zed-io/fineract-sub004/internal/lock"
)

type mockAdvisoryLock struct {
	acquireErr error
	releaseErr error
	acquired   int
	released   int
}

func (m *mockAdvisoryLock) Acquire(context.Context, int) error {
	m.acquired++
	return m.acquireErr
}

func (m *mockAdvisoryLock) Release(context.Context, int) error {
	m.released++
	return m.releaseErr
}

var _ lock.AdvisoryLock = (*mockAdvisoryLock)(nil)

func TestReadSQLScripts(t *testing.T) {
	scripts, err := readSQLScripts()
	require.NoError(t, err)
	require.Len(t, scripts, 3)
	assert.Equal(t, "001_job.sql", scripts[0].name)
	assert.Contains(t, scripts[0].body, "CREATE TABLE IF NOT EXISTS job (")
	assert.Contains(t, scripts[1].body, "job_execution")
	assert.Contains(t, scripts[2].body, "job_lock")
}

func TestInit_AppliesScriptsUnderLock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job \\(").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job_execution").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job_lock").WillReturnResult(sqlmock.NewResult(0, 0))

	advisory := &mockAdvisoryLock{}
	err = Init(context.Background(), db, advisory, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, advisory.acquired)
	assert.Equal(t, 1, advisory.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_LockAcquireFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	advisory := &mockAdvisoryLock{acquireErr: errors.New("lock busy")}
	err = Init(context.Background(), db, advisory, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, advisory.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_ScriptFailureReleasesLock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job \\(").WillReturnError(errors.New("permission denied"))

	advisory := &mockAdvisoryLock{}
	err = Init(context.Background(), db, advisory, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "001_job.sql")
	assert.Equal(t, 1, advisory.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_PingFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	advisory := &mockAdvisoryLock{}
	err = Init(context.Background(), db, advisory, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, advisory.acquired)
}
