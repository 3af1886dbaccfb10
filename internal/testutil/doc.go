// Package testutil provides deterministic fixtures for storage tests: a
// clock that stamps records with evenly spaced UTC times, and the standard
// users, totems and posts the repository tests share.
package testutil
