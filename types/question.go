package types

import "time"

// Question represents a 1:1 support inquiry submitted by a user.
// The owning account is captured by value as a student-number at creation
// time; it is never re-derived from the accounts collection afterwards.
type Question struct {
	// ID is the unique identifier of the question, assigned by the store.
	ID int `json:"id" db:"id"`

	// Title is the short subject line of the inquiry.
	Title string `json:"title" db:"title"`

	// Content is the full inquiry text.
	Content string `json:"content" db:"content"`

	// ImageURL is the retrieval URL of an optional attached image.
	// Nil means no image was attached.
	ImageURL *string `json:"image_url" db:"image_url"`

	// State reports whether the question has been answered.
	// It is initialized to false and only transitioned by the external
	// answering workflow; this server carries it forward unchanged.
	State bool `json:"state" db:"state"`

	// Answer is the administrative reply text, written by the external
	// answering workflow. Nil means unanswered.
	Answer *string `json:"answer" db:"answer"`

	// StudentNumber identifies the owning account. Fixed at creation.
	StudentNumber string `json:"student_number" db:"student_number"`

	// CreatedAt is the timestamp when the question was created.
	// Set once by the store, never altered.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
