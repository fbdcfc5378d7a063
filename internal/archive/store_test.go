package archive

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockStore wraps a sqlmock connection in a gorm session, matching the
// teacher's go-sqlmock usage in internal/repository/*_test.go but adapted
// for gorm (the teacher's raw-database/sql repositories mock *sql.DB
// directly; the digest archiver's gorm session is mocked the same way gorm
// itself recommends: a postgres dialector opened over the mock *sql.DB).
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialector := postgres.New(postgres.Config{Conn: db})
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return &Store{db: gdb}, mock
}

func TestStore_Persist_NewFile(t *testing.T) {
	store, mock := newMockStore(t)

	digest := &Digest{
		File: DigestFileInfo{Path: "heap.hprof", IDSize: 8, StartTime: time.Now(), DumpCount: 1},
		Classes: []DigestClass{
			{ClassID: 1, Name: "java.lang.String", Category: "jdk", InstanceCount: 10, ShallowBytes: 240},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "digest_file"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "digest_file"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM "digest_class"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "digest_class"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	id, err := store.Persist(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Persist_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	digest := &Digest{File: DigestFileInfo{Path: "heap.hprof"}}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "digest_file"`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.Persist(context.Background(), digest)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
