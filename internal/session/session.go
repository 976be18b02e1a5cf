// Package session manages per-connection session state backed by Redis:
// which user a connection authenticated as, their nickname, and the rooms
// the connection has joined. Room fan-out itself is process-local; the Redis
// record exists so handlers can resolve a sender's identity without trusting
// repeated payload fields, and so operators can inspect live sessions.
package session
