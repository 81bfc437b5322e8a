// Package uuid generates and parses the identifiers used as primary keys and
// request IDs.
package uuid

import (
	"errors"

	googleuuid "github.com/google/uuid"
)

// ErrNilUUID is returned by Parse for the all-zero UUID, which never names a row.
var ErrNilUUID = errors.New("uuid: nil UUID")

// New returns a UUIDv7 string. Version 7 is time-ordered, so ledger rows
// sort by creation time when ordered by primary key.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		return googleuuid.NewString()
	}
	return id.String()
}

// Parse validates s and returns it in canonical lower-case hyphenated form.
func Parse(s string) (string, error) {
	id, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	if id == googleuuid.Nil {
		return "", ErrNilUUID
	}
	return id.String(), nil
}
