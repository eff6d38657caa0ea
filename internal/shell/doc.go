// Package shell detects launchable shell profiles.
//
// Candidate shells are platform specific and probed concurrently; those that
// resolve are deduplicated by (id, path, args) and cached until a forced
// refresh. The package also builds the script(1) wrapper used to give plain
// child processes a pseudo-tty.
package shell
