// Package types defines the public error taxonomy, warning collection, and
// option structures shared by every decoder in the module.
//
// Errors split into two families. Fatal kinds (truncation, signature and size
// mismatches, compression failures, schema bugs) terminate the current decode;
// recoverable kinds never surface as errors at all but as Warning values, so a
// partially corrupt artifact still yields maximal information.
package types
