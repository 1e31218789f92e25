// Package credentials resolves and stores per-user integration credentials.
//
// API keys and OAuth credential maps are encrypted with a tink AES256-GCM
// keyset before they reach the sqlite integrations table.
package credentials
