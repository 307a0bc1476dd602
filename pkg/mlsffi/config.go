package mlsffi

// Config carries the per-client runtime parameters accepted by the client
// creation boundary call. Backend selection is not part of Config: which
// crypto, identity, and storage implementations are linked in is fixed at
// build time.
type Config struct {
	// Name is the application-chosen identity presented in the client's
	// basic credential.
	Name string

	// CipherSuite is the MLS cipher suite registry value used for new key
	// packages and groups. Zero selects the backend's default suite.
	CipherSuite uint16

	// StoragePath locates the group-state database when the persistence
	// feature is compiled in. Ignored otherwise.
	StoragePath string
}
