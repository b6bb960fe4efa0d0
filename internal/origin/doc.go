// Package origin resolves logical media ids to objects in the origin bucket.
//
// The Bucket lists keys named "<owner>_<name>.<ext>" and BuildMap turns the
// listing into a name to key mapping, skipping "_thumb" variants. The Resolver
// serves that mapping stale-while-revalidate: lookups never wait for a
// refresh once any mapping exists, refreshes run on a cron schedule and when
// a lookup sees an expired mapping, and each successful listing is persisted
// so a restart starts with the last known mapping.
//
// Errors: ErrNotFound for an unknown id, ErrUnavailable when no mapping has
// ever been obtained or an object cannot be read.
package origin
