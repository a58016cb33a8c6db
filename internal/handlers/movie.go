package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/movielist/apiserver/internal/authz"
	"github.com/movielist/apiserver/types"
)

// MovieService is the catalog API the handlers depend on.
type MovieService interface {
	List(ctx context.Context) ([]types.Movie, error)
	Get(ctx context.Context, id int) (types.Movie, error)
	Create(ctx context.Context, movie types.Movie, createdBy int) (types.Movie, error)
	Update(ctx context.Context, movie types.Movie) (types.Movie, error)
	Delete(ctx context.Context, id int) error
}

// MovieHandler provides HTTP handlers for the catalog.
type MovieHandler struct {
	movies MovieService
	logger *slog.Logger
}

func NewMovieHandler(movies MovieService, logger *slog.Logger) *MovieHandler {
	return &MovieHandler{movies: movies, logger: logger}
}

// MovieRouter registers movie routes on the given router.
func MovieRouter(r chi.Router, movies MovieService, policy authz.Policy, logger *slog.Logger) {
	handler := NewMovieHandler(movies, logger)

	r.With(Authorize(policy, authz.OpMovieList)).Get("/", handler.ListMovies)
	r.With(Authorize(policy, authz.OpMovieCreate)).Post("/", handler.CreateMovie)
	r.Route("/{movieID}", func(r chi.Router) {
		r.With(Authorize(policy, authz.OpMovieGet)).Get("/", handler.GetMovie)
		r.With(Authorize(policy, authz.OpMovieUpdate)).Put("/", handler.UpdateMovie)
		r.With(Authorize(policy, authz.OpMovieDelete)).Delete("/", handler.DeleteMovie)
	})
}

type MovieUpsertRequest struct {
	Title       string   `json:"title"`
	Director    string   `json:"director"`
	Studio      string   `json:"studio"`
	ReleaseYear int      `json:"release_year"`
	Cast        []string `json:"cast"`
	Poster      string   `json:"poster"`
}

func (req MovieUpsertRequest) movie() types.Movie {
	return types.Movie{
		Title:       req.Title,
		Director:    req.Director,
		Studio:      req.Studio,
		ReleaseYear: req.ReleaseYear,
		Cast:        req.Cast,
		Poster:      req.Poster,
	}
}

func (h *MovieHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.movies.List(r.Context())
	if err != nil {
		respondError(w, r, h.logger, "movies.list", err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (h *MovieHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "movieID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	movie, err := h.movies.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "movies.get", err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

// CreateMovie records the authenticated admin as the entry's creator.
func (h *MovieHandler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req MovieUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	movie, err := h.movies.Create(r.Context(), req.movie(), principal.UserID)
	if err != nil {
		respondError(w, r, h.logger, "movies.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

func (h *MovieHandler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "movieID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req MovieUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	movie := req.movie()
	movie.ID = id
	updated, err := h.movies.Update(r.Context(), movie)
	if err != nil {
		respondError(w, r, h.logger, "movies.update", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *MovieHandler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "movieID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.movies.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.logger, "movies.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
