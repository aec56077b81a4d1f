package domain

import "time"

// MistakeEntry is a located recitation-error annotation owned by its ticket.
// Entries live inside the ticket row; insertion order is significant and
// entries are addressed by index.
type MistakeEntry struct {
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Page        int            `json:"page"`
	Surah       int            `json:"surah,omitempty"`
	Ayah        int            `json:"ayah,omitempty"`
	WordIndex   int            `json:"word_index,omitempty"`
	LetterIndex *int           `json:"letter_index,omitempty"`
	Position    *string        `json:"position,omitempty"`
	TajweedData map[string]any `json:"tajweed_data,omitempty"`
	Note        string         `json:"note,omitempty"`
	AudioURL    string         `json:"audio_url,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
