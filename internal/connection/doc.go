// Package connection implements the realtime connection wrapper used by upper protocol layers.
//
// A Connection:
//   - Wraps exactly one single-use transport.Transport
//   - Drives the lifecycle None -> Connecting -> Open -> Closing -> Closed
//   - Fans out Opened, MessageReceived, DataReceived, Error and Closed events to subscribers
//   - Fires Closed at most once, however Close, Dispose and transport failures race
//   - Sends periodic pings and tracks liveness while open
//
// All failures are reported through the Error and Closed events; Open, Send and Close
// never return errors. A Reconnector layers automatic reconnection with exponential
// backoff on top of the Closed event.
package connection
