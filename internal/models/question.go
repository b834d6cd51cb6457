package models

import (
	"github.com/google/uuid"
)

// Question is a row from the central question bank. The platform only reads
// questions; authoring belongs to the question-management subsystem.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"text"`
	ImageURL      *string   `json:"image_url,omitempty"`
	CorrectAnswer string    `json:"correct_answer"`
	Points        int       `json:"points"`
}
