// Package cli implements authctl, the operator console of the auth server.
// It talks to the user store and the refresh-token ledger directly and
// offers account administration that the browser flow does not expose:
// creating users, resetting passwords, signing users out everywhere and
// purging the ledger.
package cli
