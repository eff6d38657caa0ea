// Package providers holds the bridge services, one subpackage per
// operation family.
//
// Every provider implements service.Provider:
//   - Definition(): service metadata and tool definitions
//   - Execute(): runs one tool on behalf of a connection
//
// Services:
//   - app: working directory, host info, UI log relay
//   - fs: directory listing, text file read/write, glob search
//   - workspace: workspace watch and unwatch
//   - terminal: shell profiles and sessions
//   - extensions: workspace extension runtime
package providers
