package main

import "net/http"

// AuthProvider resolves the current user for a request. The mechanism
// itself is opaque to the rest of the system; services only see user
// ids.
type AuthProvider interface {
	CurrentUser(r *http.Request, required bool) (string, error)
}

// HeaderAuth trusts an upstream gateway to authenticate the user and
// forward the identity in the X-User-ID header.
type HeaderAuth struct{}

func (HeaderAuth) CurrentUser(r *http.Request, required bool) (string, error) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" && required {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
