//go:build mlsffi_sqlcipher && !mlsffi_sqlite

package backend

// mlsffi_sqlcipher selects a sub-variant of the sqlite storage feature and is
// meaningless on its own. Under this tag combination no storage file defines
// openGroupStorage, so the build fails; the constant below puts the reason in
// the compiler output next to the undefined-symbol error.

const storageVariant = "invalid build: mlsffi_sqlcipher requires mlsffi_sqlite"
