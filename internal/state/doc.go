// Package state keeps the in-memory record of recent runs served on the
// status surface. Nothing is written to disk; a restart starts empty.
package state
