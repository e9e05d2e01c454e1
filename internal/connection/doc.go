// Package connection wraps one authenticated Kalshi WebSocket connection.
//
// A Client is single-use: after the connection drops or Close is called,
// create a new one. Reconnect policy belongs to the caller.
package connection
