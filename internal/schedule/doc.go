// Package schedule implements minute-granularity deferred message dispatch.
//
// A reservation is a message body stored under a minute bucket key
// ("20240115-0930") and a per-bucket reservation ID. Store owns the persisted
// per-account document; Runner dispatches the bucket matching "now" through a
// Sender and deletes each entry after a confirmed send.
//
// Failed sends are logged and left in place. Buckets are minute-exact, so a
// failed entry is never picked up again by a later tick.
package schedule
