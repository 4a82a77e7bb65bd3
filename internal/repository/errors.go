// Package repository implements the persistence layer over MySQL. This file
// defines sentinel error values shared by the repositories so that handlers
// and the websocket gateway can map failures to responses without inspecting
// driver errors.
package repository

import "errors"

// ErrNotFound is returned when a referenced chat, user or message does not
// exist. Handlers translate it into HTTP 404; the gateway closes or reports
// depending on where it occurs.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller is authenticated but not allowed
// to touch the resource, such as a non-member opening a chat connection or a
// non-admin removing group members. Maps to HTTP 403 or close code 1008.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned on unique-constraint violations: duplicate
// registration email, duplicate message id, duplicate membership row.
// Maps to HTTP 409 or a soft websocket error payload.
var ErrConflict = errors.New("conflict")
