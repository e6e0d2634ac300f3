package oauthmodel

import "errors"

var (
	ErrMissingClientID            = errors.New("client_id is required")
	ErrInvalidCodeChallenge       = errors.New("invalid code challenge")
	ErrInvalidCodeChallengeMethod = errors.New("invalid code challenge method")
	ErrInvalidRedirectUri         = errors.New("invalid or no redirect uri")
	ErrInvalidResponseType        = errors.New("unsupported response type")
	ErrInvalidScope               = errors.New("invalid scope")
)
