package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/movielist/apiserver/types"
)

const movieColumns = `id, title, director, studio, release_year, cast_members, poster, COALESCE(created_by, 0), created_at, updated_at`

// MovieRepository handles persistence for catalog entries.
type MovieRepository struct {
	db *sql.DB
}

func NewMovieRepository(db *sql.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

func (r *MovieRepository) List(ctx context.Context) ([]types.Movie, error) {
	const query = `SELECT ` + movieColumns + ` FROM movies ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	movies := make([]types.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return movies, nil
}

func (r *MovieRepository) Get(ctx context.Context, id int) (types.Movie, error) {
	const query = `SELECT ` + movieColumns + ` FROM movies WHERE id = $1`
	movie, err := scanMovie(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Movie{}, err
	}
	return movie, nil
}

func (r *MovieRepository) Create(ctx context.Context, movie types.Movie) (types.Movie, error) {
	now := time.Now()
	movie.CreatedAt = now
	movie.UpdatedAt = now

	castJSON, err := json.Marshal(nonNilCast(movie.Cast))
	if err != nil {
		return types.Movie{}, err
	}

	const query = `
		INSERT INTO movies (title, director, studio, release_year, cast_members, poster, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		movie.Title,
		movie.Director,
		movie.Studio,
		movie.ReleaseYear,
		castJSON,
		movie.Poster,
		movie.CreatedBy,
		movie.CreatedAt,
		movie.UpdatedAt,
	).Scan(&movie.ID); err != nil {
		return types.Movie{}, fmt.Errorf("db error: %w", err)
	}
	return movie, nil
}

func (r *MovieRepository) Update(ctx context.Context, movie types.Movie) (types.Movie, error) {
	movie.UpdatedAt = time.Now()

	castJSON, err := json.Marshal(nonNilCast(movie.Cast))
	if err != nil {
		return types.Movie{}, err
	}

	const query = `
		UPDATE movies
		SET title = $1,
			director = $2,
			studio = $3,
			release_year = $4,
			cast_members = $5,
			poster = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		movie.Title,
		movie.Director,
		movie.Studio,
		movie.ReleaseYear,
		castJSON,
		movie.Poster,
		movie.UpdatedAt,
		movie.ID,
	)
	if err != nil {
		return types.Movie{}, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Movie{}, err
	}
	if affected == 0 {
		return types.Movie{}, ErrNotFound
	}
	return movie, nil
}

func (r *MovieRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM movies WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (types.Movie, error) {
	var movie types.Movie
	var castJSON []byte
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.Director,
		&movie.Studio,
		&movie.ReleaseYear,
		&castJSON,
		&movie.Poster,
		&movie.CreatedBy,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Movie{}, ErrNotFound
		}
		return types.Movie{}, fmt.Errorf("db error: %w", err)
	}
	_ = json.Unmarshal(castJSON, &movie.Cast)
	return movie, nil
}

func nonNilCast(cast []string) []string {
	if cast == nil {
		return []string{}
	}
	return cast
}
