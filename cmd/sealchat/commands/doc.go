// Package commands defines the sealchat CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init         Derive the account key pair and publish the public half
//   - rotate       Re-key the account and replace the published record
//   - fingerprint  Print the key fingerprint for out-of-band verification
//   - lock         Wipe the locally stored key material
//   - send         Encrypt and send a direct message
//   - history      Fetch and decrypt a conversation
//
// # Implementation
//
// The root command builds a dependency graph (local keystore, relay
// client, key and message services) before any subcommand runs, so
// handlers share one app context.
package commands
