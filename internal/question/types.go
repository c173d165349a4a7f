package question

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is one multiple-choice entry in the pool. WrongOptions excludes
// the correct option; presentation order is decided at match creation, not
// here.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Prompt        string    `json:"prompt"`
	CorrectOption string    `json:"correct_option"`
	WrongOptions  []string  `json:"wrong_options"`
	Category      string    `json:"category"`
	Difficulty    string    `json:"difficulty"`
	ContentHash   string    `json:"content_hash"`
}

// ContentHash derives the dedup key for a question's text.
func ContentHash(prompt, correctOption string) string {
	sum := sha256.Sum256([]byte(prompt + "\x00" + correctOption))
	return hex.EncodeToString(sum[:])
}

// PackRequest describes one draw from the pool.
type PackRequest struct {
	Category   string
	Difficulty string
	Amount     int
}
