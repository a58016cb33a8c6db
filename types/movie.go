package types

import "time"

// Movie is a catalog entry. Cast members are stored as a list of names
// owned by the movie row.
type Movie struct {
	// ID is the unique identifier of the movie.
	ID int `json:"id" db:"id"`

	// Title is the movie's display title.
	Title string `json:"title" db:"title"`

	// Director is the credited director.
	Director string `json:"director" db:"director"`

	// Studio is the producing studio.
	Studio string `json:"studio" db:"studio"`

	// ReleaseYear is the year of first release.
	ReleaseYear int `json:"release_year" db:"release_year"`

	// Cast lists the names of cast members.
	Cast []string `json:"cast" db:"cast_members"`

	// Poster is the object key of the poster image in object storage.
	Poster string `json:"poster" db:"poster"`

	// CreatedBy references the user who created the entry.
	CreatedBy int `json:"created_by" db:"created_by"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
