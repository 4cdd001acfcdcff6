// Package permission evaluates permission codes of the form "resource:action".
//
// Evaluation is pure string matching with two wildcard levels: a grant of
// "invoice:*" covers every action on invoices, and "*:*" covers everything.
// There are no deny rules; a code is either covered by the granted set or not.
//
// # Architecture boundaries
//
// This package never talks to a database. The granted set is whatever snapshot
// the caller extracted from an access token or a role definition; keeping that
// snapshot fresh is the token lifecycle's problem, not this package's.
package permission
