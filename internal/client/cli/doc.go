// Package cli provides the interactive storyline terminal client.
//
// It wires configuration, the local patch store, the remote row store, and an
// interactive REPL for browsing and editing one timeline. Typical flow: boot
// the session (base dataset, local overrides, first pull), start the remote
// poller and the local store watcher, then execute user commands.
//
// Commands:
//   - list / show / cats / filter: browse the materialized stories
//   - edit / new / delete: change overrides (edit mode, editors only)
//   - export / import / snapshot: move override files around
//   - reload / push / status / mode: sync and capability
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
