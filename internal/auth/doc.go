// Package auth provides authentication for netdiag.
//
// Users carry a role (admin, reseller, support) and an optional area. The
// area is the tenant boundary: topology operations only ever see devices
// whose area matches the caller's, and a user without an area sees nothing.
//
// It implements:
//   - Argon2id password hashing
//   - HS256 JWT access tokens carrying role and area
//   - A static role-permission mapping
//   - SQLite persistence for user accounts
package auth
