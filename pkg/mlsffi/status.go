package mlsffi

// Status identifies the outcome category of a boundary operation. The numeric
// values are part of the external ABI: a value is never reassigned to a
// different meaning across releases, new values are only appended.
type Status int32

const (
	StatusOK               Status = 0
	StatusInvalidHandle    Status = 1
	StatusInvalidArgument  Status = 2
	StatusUnsupportedValue Status = 3
	StatusProtocolError    Status = 4
	StatusCryptoError      Status = 5
	StatusStorageError     Status = 6
	StatusIdentityError    Status = 7
	StatusInternalError    Status = 8
)

// String returns the stable name of the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidHandle:
		return "invalid_handle"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusUnsupportedValue:
		return "unsupported_value"
	case StatusProtocolError:
		return "protocol_error"
	case StatusCryptoError:
		return "crypto_error"
	case StatusStorageError:
		return "storage_error"
	case StatusIdentityError:
		return "identity_error"
	case StatusInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a boundary operation: a status code plus an
// advisory human-readable detail. Only Code is contractual; Detail content may
// change between releases and must not drive caller control flow.
type Result struct {
	Code   Status
	Detail string
}

// OK reports whether the result represents success.
func (r Result) OK() bool {
	return r.Code == StatusOK
}
