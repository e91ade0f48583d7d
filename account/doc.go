// Package account persists the local identity: a 2048-bit RSA key pair
// stored as a clear-text public key (public.xml) next to a passphrase-sealed
// private key (private.enc).
//
// Creation and deletion are single directory renames, so a crash never
// leaves a half-written account visible. Unlocking yields a [Session] that
// holds the private key in memory until it is closed.
package account
