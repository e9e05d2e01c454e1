// Package ratelimit implements the request governor used on every outbound
// REST path.
//
// A Bucket is a token bucket sized in requests per minute with lazy refill.
// Adaptive wraps a Bucket and scales its capacity down when the exchange
// signals throttling and slowly back up on success. Each endpoint family owns
// exactly one instance.
package ratelimit
