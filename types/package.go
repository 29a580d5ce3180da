package types

import "time"

// Package is one locally installed package as shown by `pkginst list`.
type Package struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Host        string    `json:"host"`
	Type        string    `json:"type"`
	Digest      string    `json:"digest"`
	Size        int64     `json:"size"`
	Installed   bool      `json:"installed"`
	CreatedAt   time.Time `json:"created_at"`
	InstalledAt time.Time `json:"installed_at,omitzero"`
}
