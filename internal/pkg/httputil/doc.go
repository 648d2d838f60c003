// Package httputil provides the JSON response helpers shared by the HTTP
// handlers, so every endpoint writes the same content type and error envelope.
package httputil
