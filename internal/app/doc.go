// Package app provides the application service layer.
//
// Service is the mutation boundary: it validates and stores replacement
// task lists and topics, and only once a replacement is stored does it tell
// the broadcast registry so viewers re-fetch.
package app
