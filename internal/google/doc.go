// Package google handles OAuth2 for the Gmail API: loading the installed-app
// client definition, the loopback login flow, and per-account token storage
// under the user cache directory.
package google
