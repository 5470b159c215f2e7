// Package changefeed subscribes to row inserts on one table and hands each
// insert to the forwarder.
//
// Two sources deliver the same InsertEvent shape:
//   - RealtimeSource speaks the Supabase Realtime (Phoenix channels) websocket
//     protocol and subscribes to postgres_changes INSERT events.
//   - PostgresSource LISTENs on a NOTIFY channel fed by the trigger that
//     db.EnsureInsertTrigger installs.
//
// Both reconnect with exponential backoff after a dropped connection. Rows
// inserted while disconnected are not replayed.
package changefeed
