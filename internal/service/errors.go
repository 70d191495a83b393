package service

import "net/http"

// Error is a domain failure carrying the HTTP status and the exact
// message a client sees. The wording of the credential errors is
// deliberately generic and must stay that way.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrMissingFields      = &Error{Status: http.StatusBadRequest, Message: "Please fill all required fields"}
	ErrPasswordTooShort   = &Error{Status: http.StatusBadRequest, Message: "Password should be at least 6 characters"}
	ErrEmailTaken         = &Error{Status: http.StatusBadRequest, Message: "Email has already been used"}
	ErrMissingCredentials = &Error{Status: http.StatusBadRequest, Message: "Please add email and password"}
	ErrInvalidCredentials = &Error{Status: http.StatusBadRequest, Message: "Email or password is incorrect"}
	ErrUserNotFound       = &Error{Status: http.StatusBadRequest, Message: "User not found"}
	ErrProfileNotFound    = &Error{Status: http.StatusNotFound, Message: "User not found"}
	ErrSignupRequired     = &Error{Status: http.StatusBadRequest, Message: "User not found, please signup"}
	ErrMissingPasswords   = &Error{Status: http.StatusBadRequest, Message: "Please add old and new password"}
	ErrOldPasswordWrong   = &Error{Status: http.StatusBadRequest, Message: "Old password is incorrect"}
	ErrEmailUnknown       = &Error{Status: http.StatusNotFound, Message: "User does not exist"}
	ErrEmailNotSent       = &Error{Status: http.StatusInternalServerError, Message: "Email not sent, please try again"}
	ErrResetTokenInvalid  = &Error{Status: http.StatusInternalServerError, Message: "Invalid or expired Token"}
)
