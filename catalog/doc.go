// Package catalog talks to the external legal-document catalog.
//
// Search pages through the catalog's REST search endpoint and returns only
// items that carry a usable artifact. Download fetches artifact bytes through
// an authenticated proxy, retrying throttled and transient failures with a
// non-decreasing delay. Items that cannot be fetched are reported as
// ErrUnavailable; nothing is ever substituted for the missing bytes.
package catalog
