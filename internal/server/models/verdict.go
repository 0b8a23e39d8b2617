package models

// DenyReason says why a token was not admitted. The zero value means the
// token was admitted.
type DenyReason string

const (
	DenyNone     DenyReason = ""
	DenyNotFound DenyReason = "not_found"
	DenyRevoked  DenyReason = "revoked"
	DenyExpired  DenyReason = "expired"
	// DenyStoreError is used when the store could not be read; the request is
	// refused without a real decision.
	DenyStoreError DenyReason = "store_error"
)

// Verdict is the outcome of an authorization check. Token is set only when
// the token was admitted.
type Verdict struct {
	Admitted bool
	Reason   DenyReason
	Token    *AccessToken
}

// Admit builds an admitting verdict for t.
func Admit(t *AccessToken) Verdict {
	return Verdict{Admitted: true, Token: t}
}

// Deny builds a denying verdict with the given reason.
func Deny(reason DenyReason) Verdict {
	return Verdict{Reason: reason}
}
