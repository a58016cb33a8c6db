package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/movielist/apiserver/internal/storage"
	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

// MovieRepository defines persistence operations for catalog entries.
type MovieRepository interface {
	List(ctx context.Context) ([]types.Movie, error)
	Get(ctx context.Context, id int) (types.Movie, error)
	Create(ctx context.Context, movie types.Movie) (types.Movie, error)
	Update(ctx context.Context, movie types.Movie) (types.Movie, error)
	Delete(ctx context.Context, id int) error
}

// PosterStore keeps poster images.
type PosterStore interface {
	PutPoster(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	OpenPoster(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// MovieService encapsulates catalog use-cases.
type MovieService struct {
	repo    MovieRepository
	posters PosterStore
	logger  *slog.Logger
}

func NewMovieService(repo MovieRepository, posters PosterStore, logger *slog.Logger) *MovieService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MovieService{repo: repo, posters: posters, logger: logger}
}

func (s *MovieService) List(ctx context.Context) ([]types.Movie, error) {
	return s.repo.List(ctx)
}

func (s *MovieService) Get(ctx context.Context, id int) (types.Movie, error) {
	movie, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Movie{}, ErrNotFound
	}
	return movie, err
}

func (s *MovieService) Create(ctx context.Context, movie types.Movie, createdBy int) (types.Movie, error) {
	if err := validateMovie(&movie); err != nil {
		return types.Movie{}, err
	}
	movie.CreatedBy = createdBy
	return s.repo.Create(ctx, movie)
}

func (s *MovieService) Update(ctx context.Context, movie types.Movie) (types.Movie, error) {
	if err := validateMovie(&movie); err != nil {
		return types.Movie{}, err
	}
	updated, err := s.repo.Update(ctx, movie)
	if errors.Is(err, store.ErrNotFound) {
		return types.Movie{}, ErrNotFound
	}
	return updated, err
}

// Delete removes the entry and, best effort, its poster.
func (s *MovieService) Delete(ctx context.Context, id int) error {
	movie, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if movie.Poster != "" && s.posters != nil {
		if err := s.posters.Delete(ctx, movie.Poster); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "failed to delete poster", "movie_id", id, "poster", movie.Poster, "error", err)
		}
	}
	return nil
}

// UploadPoster stores an image and returns the key to reference from a movie.
func (s *MovieService) UploadPoster(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	key, err := s.posters.PutPoster(ctx, r, size, contentType)
	if errors.Is(err, storage.ErrUnsupportedMedia) {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return key, err
}

func (s *MovieService) OpenPoster(ctx context.Context, key string) (io.ReadCloser, string, error) {
	rc, contentType, err := s.posters.OpenPoster(ctx, key)
	if errors.Is(err, storage.ErrInvalidKey) || errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	return rc, contentType, err
}

func validateMovie(movie *types.Movie) error {
	movie.Title = strings.TrimSpace(movie.Title)
	if movie.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if movie.ReleaseYear < 1870 || movie.ReleaseYear > 3000 {
		return fmt.Errorf("%w: release_year out of range", ErrInvalidInput)
	}
	if movie.Poster != "" && !storage.ValidKey(movie.Poster) {
		return fmt.Errorf("%w: poster must be a key returned by /files/upload", ErrInvalidInput)
	}
	return nil
}
