package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users verbatim and must not
	// enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrNameRequired             = errors.New("name required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrEmailDomainNotAllowed    = errors.New("email domain is not allowed")
	ErrAccountBanned            = errors.New("account is banned")
	ErrAlreadyVerified          = errors.New("email already verified")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	ErrNoIDs          = errors.New("ids required")
	ErrFilenameEmpty  = errors.New("filename required")
	ErrFileTooLarge   = errors.New("file exceeds the upload size limit")
	ErrEmptyFile      = errors.New("empty file")
	ErrTokenConsumed  = errors.New("token already used")
	ErrTargetIsAdmin  = errors.New("admin accounts cannot be deleted")
	ErrSelfTarget     = errors.New("operation cannot target your own account")
	ErrUnknownRole    = errors.New("unknown role")
	ErrNothingToApply = errors.New("no fields to update")
)
