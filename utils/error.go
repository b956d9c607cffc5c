package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorDatabaseUnavailable signals a store operation attempted while
	// the service runs without a database connection.
	ErrorDatabaseUnavailable = errors.New("database not available")
)

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
