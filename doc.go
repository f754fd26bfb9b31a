// Package contacts implements the account and authentication core of a
// contacts management service: password hashing, signed purpose-bound
// tokens (access, email verification, password reset), and the signup,
// login, confirmation, and password reset flows those tokens drive,
// alongside the contact book itself.
package contacts
