// Package config defines the explicitly constructed configuration object
// handed to the storage components at construction time.
//
// Sources, lowest precedence first:
//   - Default()
//   - a YAML file passed to Load
//   - LOOMSTORE_* environment variables (nested keys joined with "_",
//     e.g. LOOMSTORE_FLASH_PAGE_COUNT)
//
// Every loaded config is checked against the embedded CUE schema
// (schema.cue) before it is returned.
package config
