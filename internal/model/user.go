package model

import "time"

// User represents a row in the `users` table. IDs are UUID strings
// (CHAR(36)) so that clients can reference users without leaking
// insertion order.
//
// Fields:
//  ID           – primary key (uuid).
//  Username     – unique display name.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  IsAdmin      – whether the account has platform admin rights.
//  CreatedAt    – timestamp of creation.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}
