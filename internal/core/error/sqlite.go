package errx

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
)

// WrapSQLite maps database/sql errors from the SQLite stores to the unified Error type.
func WrapSQLite(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		e := New(err, http.StatusNotFound, SQLiteErrorMessage)
		e.Kind = KindPersistence
		return e
	}
	if strings.Contains(err.Error(), "database is locked") {
		e := New(err, http.StatusServiceUnavailable, SQLiteErrorMessage)
		e.Kind = KindPersistence
		return e
	}

	return WithKind(KindPersistence, err, SQLiteErrorMessage)
}
