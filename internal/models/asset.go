package models

import "time"

// Asset represents a tradable asset identified by its symbol
type Asset struct {
	ID        int       `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
