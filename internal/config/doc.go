// Package config locates the OBS and obssync directories and loads the
// obssync configuration.
//
// Sources are merged in order, later ones winning:
//
//   - $XDG_CONFIG_HOME/obssync/obssync.json and obssync.jsonc
//   - obssync.json and obssync.jsonc in the working directory
//   - the file named by OBSSYNC_CONFIG
//   - environment overrides, after loading .env from the working directory
//
// Files may contain comments and trailing commas (JSONC) and {env:NAME}
// placeholders. Example:
//
//	{
//	  // Point OBS at the rye-managed interpreter.
//	  "python": {"executable": "{env:HOME}/.rye/shims/python"},
//	  "companion": {"module": "omuserver", "args": ["--debug"]},
//	  "lifecycle": {"exitWindowMs": 5000, "relaunch": true},
//	}
//
// Environment overrides: OBSSYNC_OBS_DIR, OBSSYNC_PYTHON,
// OBSSYNC_PYTHON_DIR, OBSSYNC_SCRIPT_DIR, OBSSYNC_LOG_LEVEL and
// OBSSYNC_NORMALIZE_PATHS.
package config
