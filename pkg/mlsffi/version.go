package mlsffi

// Version is the semantic version of the bridge, reported through the
// mls_version boundary call.
const Version = "0.3.0"
