//go:build mlsffi_sqlite && mlsffi_sqlcipher

package storage

import (
	_ "github.com/mutecomm/go-sqlcipher/v4"
)

// go-sqlcipher registers under the stock driver name, so the two variants
// are mutually exclusive at build time.
const driverName = "sqlite3"

// dsn passes the path through untouched. The caller appends _pragma_key and
// related parameters to the path; see the go-sqlcipher docs for the format.
func dsn(path string) string {
	return path
}
