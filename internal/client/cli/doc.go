// Package cli provides the bizledger command-line client.
//
// It wires configuration and a session.Session into a cobra command tree
// and an interactive REPL. Both surfaces share the same App commands:
//   - signup / login / logout
//   - check (who am I)
//   - submit a sales order from a JSON file
//   - fetch an order by buyer and date
//
// The session rotates expired credentials transparently; when rotation is
// refused the user is asked to log in again.
package cli
