//go:build mlsffi_sqlite && !mlsffi_sqlcipher

package storage

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_foreign_keys=on"
}
