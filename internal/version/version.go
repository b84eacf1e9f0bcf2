// internal/version/version.go
package version

// Version is the semantic version of the pulsegen tool.
const Version = "0.1.0"
