package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStaleVersion is returned when a conditional ticket write lost a race.
	ErrStaleVersion = errors.New("stale version")
	// ErrReferenced is returned when a row is still referenced elsewhere.
	ErrReferenced = errors.New("record still referenced")
	// ErrStillAssigned is returned when a user being deleted is still the
	// assignee of a ticket.
	ErrStillAssigned = errors.New("user still assigned to tickets")
)

// Postgres error classes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

// translate maps driver errors onto the package sentinels. Unknown errors
// pass through untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrReferenced, pgErr.ConstraintName)
		case pgInvalidText:
			// a malformed uuid can never address a row
			return ErrNotFound
		}
	}
	return err
}
