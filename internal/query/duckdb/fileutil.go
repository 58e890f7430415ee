package duckdb

import (
	"io"
	"os"
)

// writeFile copies reader into a new file at path; a failed close is
// reported since DuckDB reads the file right after.
func writeFile(path string, reader io.Reader) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(file, reader)
	return err
}
