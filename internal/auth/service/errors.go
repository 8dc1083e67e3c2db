package service

import (
	"errors"

	dErrors "opsdash/pkg/domain-errors"
	"opsdash/pkg/platform/sentinel"
)

// Store errors are translated into domain errors once, here.

type storeErrorMapping struct {
	sentinel error
	code     dErrors.Code
	msg      string
}

// refreshErrorMappings translates Refresh Ledger failures. First match wins.
var refreshErrorMappings = []storeErrorMapping{
	{sentinel.ErrNotFound, dErrors.CodeInvalidRefreshToken, "invalid refresh token"},
	{sentinel.ErrExpired, dErrors.CodeInvalidRefreshToken, "refresh token expired"},
}

// principalErrorMappings translates principal lookups made on behalf of an
// already-authenticated caller.
var principalErrorMappings = []storeErrorMapping{
	{sentinel.ErrNotFound, dErrors.CodePrincipalInactive, "account is not active"},
}

func translate(err error, mappings []storeErrorMapping, fallback string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			return dErrors.Wrap(err, m.code, m.msg)
		}
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fallback)
}
