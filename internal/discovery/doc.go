// Package discovery fetches listing pages and turns them into candidate
// items for admission.
//
// Page tokens are page numbers rendered as strings; the empty token is the
// first page. The client paces requests with a rate limiter, retries
// transient failures, and stops offering further pages once a page is
// empty, entirely outside the lookback window, or max_pages is reached.
package discovery
