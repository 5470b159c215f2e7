// Package session owns the messaging client's login lifecycle.
//
// It holds the process-wide readiness flag and binds it to a chat.EventSource:
//   - OnLoginCode: renders the scannable login code to the terminal so an
//     operator can pair the device.
//   - OnReady: flips the readiness flag once. The flag never goes back to
//     false; a disconnect after readiness shows up as a send failure instead.
//
// The session itself (device keys, credentials) is persisted by the messaging
// library and is opaque to this package.
package session
