// Package server implements the HTTP surface of flowgate
//
// This package provides the encrypted data-exchange endpoint, the platform
// webhook verification and delivery routes, and the health check
package server
