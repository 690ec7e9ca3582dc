// Package httputil provides shared HTTP response/request helpers.
//
// Handlers use these instead of raw http.ResponseWriter calls so JSON
// formatting, error envelopes, and logging stay consistent across the API.
package httputil
