package common

// AccessTokenHeaderName is the gRPC metadata key carrying the bearer token
// on protected requests.
const AccessTokenHeaderName = "access_token"

// AccessTokenQueryName is the query parameter used in report links handed
// out to token holders.
const AccessTokenQueryName = "token"

// TokenFingerprintLen is how many leading characters of a token may appear
// in logs.
const TokenFingerprintLen = 8
