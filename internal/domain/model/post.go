// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Provenance marks whether a post pull is binding for payout.
type Provenance string

// Provenance values.
const (
	ProvenanceInterim  Provenance = "interim"
	ProvenanceOfficial Provenance = "official"
)

// Engagement holds the counters observed on a post.
type Engagement struct {
	Likes   int64 `json:"likes"`
	Reposts int64 `json:"reposts"`
	Quotes  int64 `json:"quotes"`
	Replies int64 `json:"replies"`
	Views   int64 `json:"views"`
}

// Post is a single promotional post ("shill") by a registered author.
type Post struct {
	Handle     string
	PostID     string
	Text       string
	Engagement Engagement
	HasMedia   bool
	CreatedAt  time.Time
	Provenance Provenance
}

// Registration binds a social handle to a payout wallet.
type Registration struct {
	Handle       string
	Wallet       string
	RegisteredAt time.Time
}

// NormalizeHandle returns the case-insensitive key for a handle.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
