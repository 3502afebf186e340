package stats

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var statsCols = []string{"address", "posts_created", "votes_cast", "likes_given", "poaps_owned", "created_at", "updated_at"}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT\s+address,.*FROM\s+user_stats\s+WHERE\s+address\s*=\s*\$1\s*$`).
		WithArgs("SP1").
		WillReturnRows(sqlmock.NewRows(statsCols).AddRow("SP1", 2, 1, 0, 3, now, now))

	s, err := repo.Get(context.Background(), "SP1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.PostsCreated)
	assert.Equal(t, int64(3), s.POAPsOwned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestEnsure_UpsertReturnsRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+user_stats\s*\(address\)\s*VALUES\s*\(\$1\)\s*ON\s+CONFLICT\s*\(address\)\s*DO\s+UPDATE.*RETURNING\s+address,`).
		WithArgs("SP1").
		WillReturnRows(sqlmock.NewRows(statsCols).AddRow("SP1", 0, 0, 0, 0, now, now))

	s, err := repo.Ensure(context.Background(), "SP1")
	require.NoError(t, err)
	assert.Equal(t, "SP1", s.Address)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrement(t *testing.T) {
	for _, c := range []Counter{PostsCreated, VotesCast, LikesGiven} {
		t.Run(string(c), func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			col := regexp.QuoteMeta(string(c))
			mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+user_stats\s*\(address,\s*` + col + `\)\s*VALUES\s*\(\$1,\s*1\)\s*ON\s+CONFLICT\s*\(address\)\s*DO\s+UPDATE\s+SET\s+` + col + `\s*=\s*user_stats\.` + col + `\s*\+\s*1.*RETURNING\s+` + col + `\s*$`).
				WithArgs("SP1").
				WillReturnRows(sqlmock.NewRows([]string{string(c)}).AddRow(4))

			n, err := repo.Increment(context.Background(), "SP1", c)
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIncrement_UnknownCounter(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.Increment(context.Background(), "SP1", Counter("poaps_owned; DROP TABLE x"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIncrement_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT`).WillReturnError(errors.New("db down"))

	_, err := repo.Increment(context.Background(), "SP1", VotesCast)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRaisePOAPs_NeverLowers(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+user_stats\s*\(address,\s*poaps_owned\).*GREATEST\(user_stats\.poaps_owned,\s*EXCLUDED\.poaps_owned\).*RETURNING\s+poaps_owned\s*$`).
		WithArgs("SP1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"poaps_owned"}).AddRow(5))

	n, err := repo.RaisePOAPs(context.Background(), "SP1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM user_stats$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
