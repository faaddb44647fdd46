// Package cache provides a Redis-backed read-through cache for resolved
// topology views.
//
// Each cached view lives under netdiag:view:{area}:{gen}:{root}, where gen
// is the counter at netdiag:gen:{area}. A committed mutation increments the
// counter, so a view computed from a read that raced the mutation is stored
// under a generation nobody reads any more. The keys of an area are also
// tracked in the set netdiag:views:{area} so invalidation can free them
// right away. Root 0 is the general view.
//
// The cache is best effort: lookup and store failures are logged and the
// caller falls back to the database.
package cache
