// Package domain defines the operator: an authenticated staff user signed in
// on a terminal.
package domain

import "time"

// Operator is a staff account allowed to connect terminals to the hub.
type Operator struct {
	ID           string
	Username     string
	Name         string
	Role         string // e.g. doctor, doctorassistant, admin
	PasswordHash string
	CreatedAt    time.Time
}
