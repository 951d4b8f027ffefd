package posthog

// Version is the client library version, reported on every message as
// the $lib_version property and in the User-Agent header.
const Version = "1.4.9"

// libName identifies this client on the wire.
const libName = "posthog-go"
