// Package detect opportunistically identifies the signed-in user of an
// incoming request from the session cookies of common auth libraries.
//
// Detection is best effort. A detector that does not recognise the request
// reports no match instead of failing, and JWT cookies are decoded without
// signature verification. The result must never be used for authorization.
package detect
