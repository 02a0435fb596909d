// Package generic implements a providers.Scraper for ordinary HTML reading
// sites. Everything is read from rendered browser snapshots: chapter links
// are found with URL and title heuristics, page images by scanning the DOM,
// embedded state and inline scripts.
package generic
