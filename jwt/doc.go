// Package jwt mints and verifies the signed access and refresh tokens issued
// by the engine. Both token kinds carry a "type" claim and the parse paths
// reject tokens of the wrong kind, so an access token can never be replayed
// through the refresh endpoint or vice versa.
package jwt
