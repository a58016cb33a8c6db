package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/movielist/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var movieRowColumns = []string{"id", "title", "director", "studio", "release_year", "cast_members", "poster", "created_by", "created_at", "updated_at"}

func TestMovieList(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewMovieRepository(conn)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM movies ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(movieRowColumns).
			AddRow(1, "Heat", "Michael Mann", "Warner", 1995, []byte(`["Al Pacino","Robert De Niro"]`), "p/heat.jpg", 2, now, now).
			AddRow(2, "Alien", "Ridley Scott", "Fox", 1979, []byte(`[]`), "", 0, now, now))

	movies, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, []string{"Al Pacino", "Robert De Niro"}, movies[0].Cast)
	assert.Empty(t, movies[1].Cast)
}

func TestMovieCreateAndDelete(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewMovieRepository(conn)

	mock.ExpectQuery(`INSERT INTO movies`).
		WithArgs("Heat", "Michael Mann", "Warner", 1995, []byte(`[]`), "", 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	movie, err := repo.Create(context.Background(), types.Movie{
		Title: "Heat", Director: "Michael Mann", Studio: "Warner", ReleaseYear: 1995, CreatedBy: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, movie.ID)

	mock.ExpectExec(`DELETE FROM movies`).WithArgs(10).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), 10), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
