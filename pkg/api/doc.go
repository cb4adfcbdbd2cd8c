// Package api defines the wire and record types shared across flowgate
//
// This package contains the flow definitions served by the data-exchange
// endpoint, the encrypted and decrypted endpoint messages, the platform's
// webhook payload, the audit records kept for each webhook and completed
// flow, and the callback payload relayed to the system of record
package api
