// Package api is the signed Kalshi REST client.
//
// REST endpoints:
//   - Production: https://api.elections.kalshi.com/trade-api/v2
//   - Demo: https://demo-api.kalshi.co/trade-api/v2
//
// Every request is signed with RSA-PSS when a Signer is installed and, when
// a Limiter is installed, takes one token before each attempt.
package api
