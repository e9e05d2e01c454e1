// Package settlement re-fetches tracked instruments so status changes and
// settlement results reach market_metadata.
//
// Candidates are active instruments whose expected expiration has passed
// (checked first) or that have not been refreshed recently. Anything
// refreshed within the last MinRefreshAge is skipped.
package settlement
