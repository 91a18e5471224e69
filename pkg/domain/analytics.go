package domain

import "time"

// Frequency is a label with its occurrence count.
type Frequency struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Analytics is computed on demand over current and historical sessions.
type Analytics struct {
	TotalSessions        int         `json:"totalSessions"`
	AverageSessionLength float64     `json:"averageSessionLength"`
	TopIntents           []Frequency `json:"topIntents"`
	TopDestinations      []Frequency `json:"topDestinations"`
	ConversionRate       float64     `json:"conversionRate"`
}

// ExportVersion is the current version of the ExportData format.
const ExportVersion = 1

// ExportData is the portable snapshot of one user's conversation data.
type ExportData struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	UserID     string    `json:"userId,omitempty"`
	Session    *Session  `json:"session,omitempty"`
	History    []Turn    `json:"history"`
	Sessions   []Session `json:"sessions"`
	Messages   []Turn    `json:"messages,omitempty"`
}
