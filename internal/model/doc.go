// Package model defines the value types handed to feed subscribers.
//
// Conventions:
//   - Prices: shopspring decimal, printed in shortest form (1.0500 -> 1.05)
//   - Timestamps: time.Time in UTC, parsed from the feed's DD-MM-YYYY layout
package model
