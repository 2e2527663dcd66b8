// Package config loads, validates, and persists the updater settings.
//
// Settings live in a YAML file next to the binary by default. Validate fills
// defaults for optional fields, so a minimal file only needs the tracked
// repository, the service unit, and the binary name. Secrets (the alert
// webhook URL) may be supplied via the environment instead of the file.
package config
