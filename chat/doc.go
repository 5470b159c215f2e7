// Package chat contains the messaging-platform clients the forwarder sends
// through.
//
// Two backends implement Messenger:
//   - WhatsApp: a multi-device WhatsApp Web client (whatsmeow). A first run
//     emits a login code to pair the device; the session is stored in SQLite
//     or Postgres and restored on later runs.
//   - Twitch: an IRC chat client that posts into one channel. It has no login
//     code; the OAuth token is taken from the environment.
//
// Both report readiness through OnReady and resolve the single destination
// through ChatByID, which returns ErrChatNotFound for unknown ids.
package chat
