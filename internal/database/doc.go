// Package database stores the origin mapping snapshot in SQLite.
//
// The origin resolver rewrites the snapshot after every successful bucket
// listing and reads it once at startup, so a restarted process can resolve
// media ids immediately while the first refresh runs in the background.
//
// The database runs in WAL mode with a busy timeout. Every query records
// DBQueryTotal and DBQueryDuration.
package database
