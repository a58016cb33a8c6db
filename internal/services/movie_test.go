package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movielist/apiserver/internal/storage"
	"github.com/movielist/apiserver/internal/store"
	"github.com/movielist/apiserver/types"
)

type memoryMovies struct {
	mu     sync.Mutex
	movies map[int]types.Movie
	nextID int
}

func (m *memoryMovies) List(context.Context) ([]types.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Movie, 0, len(m.movies))
	for id := 1; id <= m.nextID; id++ {
		if movie, ok := m.movies[id]; ok {
			out = append(out, movie)
		}
	}
	return out, nil
}

func (m *memoryMovies) Get(_ context.Context, id int) (types.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	movie, ok := m.movies[id]
	if !ok {
		return types.Movie{}, store.ErrNotFound
	}
	return movie, nil
}

func (m *memoryMovies) Create(_ context.Context, movie types.Movie) (types.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	movie.ID = m.nextID
	m.movies[movie.ID] = movie
	return movie, nil
}

func (m *memoryMovies) Update(_ context.Context, movie types.Movie) (types.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.movies[movie.ID]; !ok {
		return types.Movie{}, store.ErrNotFound
	}
	m.movies[movie.ID] = movie
	return movie, nil
}

func (m *memoryMovies) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.movies[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.movies, id)
	return nil
}

type memoryBucket struct {
	objects map[string][]byte
}

func (b *memoryBucket) EnsureBucket(context.Context) error { return nil }

func (b *memoryBucket) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *memoryBucket) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBucket) Delete(_ context.Context, key string) error {
	if _, ok := b.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

func (b *memoryBucket) Bucket() string { return "posters" }

func newMovieFixture() (*MovieService, *memoryBucket) {
	bucket := &memoryBucket{objects: map[string][]byte{}}
	svc := NewMovieService(&memoryMovies{movies: map[int]types.Movie{}}, storage.NewStorage(bucket), discardLogger())
	return svc, bucket
}

func TestMovieLifecycle(t *testing.T) {
	svc, bucket := newMovieFixture()
	ctx := context.Background()

	key, err := svc.UploadPoster(ctx, strings.NewReader("jpeg"), 4, "image/jpeg")
	require.NoError(t, err)

	created, err := svc.Create(ctx, types.Movie{
		Title:       "  Stalker ",
		Director:    "Andrei Tarkovsky",
		Studio:      "Mosfilm",
		ReleaseYear: 1979,
		Cast:        []string{"Alexander Kaidanovsky"},
		Poster:      key,
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, "Stalker", created.Title)
	assert.Equal(t, 7, created.CreatedBy)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	got.Studio = "Mosfilm Studio"
	updated, err := svc.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Mosfilm Studio", updated.Studio)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.NotContains(t, bucket.objects, key)
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), ErrNotFound)
}

func TestMovieValidation(t *testing.T) {
	svc, _ := newMovieFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, types.Movie{Title: " ", ReleaseYear: 2000}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, types.Movie{Title: "Old", ReleaseYear: 1200}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, types.Movie{Title: "Bad poster", ReleaseYear: 2000, Poster: "../etc/passwd"}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Update(ctx, types.Movie{ID: 99, Title: "Missing", ReleaseYear: 2000})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPosters(t *testing.T) {
	svc, _ := newMovieFixture()
	ctx := context.Background()

	_, err := svc.UploadPoster(ctx, strings.NewReader("x"), 1, "application/pdf")
	assert.ErrorIs(t, err, ErrInvalidInput)

	key, err := svc.UploadPoster(ctx, strings.NewReader("webp"), 4, "image/webp")
	require.NoError(t, err)

	rc, contentType, err := svc.OpenPoster(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/webp", contentType)

	_, _, err = svc.OpenPoster(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.OpenPoster(ctx, "6f1d1f7e-8f5c-4e55-9b8a-1f5b0f0e1e2d.png")
	assert.ErrorIs(t, err, ErrNotFound)
}
