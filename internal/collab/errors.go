package collab

import "fmt"

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(what, id string) *DomainError {
	return domainError(404, "NOT_FOUND", fmt.Sprintf("%s %s not found", what, id), nil)
}

func notActive(sessionID, status string) *DomainError {
	return domainError(409, "NOT_ACTIVE", fmt.Sprintf("session %s is %s", sessionID, status), nil)
}

func capacityExceeded(sessionID string, max int) *DomainError {
	return domainError(409, "CAPACITY_EXCEEDED", fmt.Sprintf("session %s is full (max %d)", sessionID, max), nil)
}

func permissionDenied(message string) *DomainError {
	return domainError(403, "PERMISSION_DENIED", message, nil)
}

func invalidState(message string) *DomainError {
	return domainError(422, "INVALID_STATE", message, nil)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	de, ok := err.(*DomainError)
	return ok && de.Code == code
}
