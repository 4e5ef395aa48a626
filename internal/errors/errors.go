// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrStudentNotFound reports a missing student within a university.
type ErrStudentNotFound struct {
	StudentID string
}

func (e *ErrStudentNotFound) Error() string {
	return fmt.Sprintf("student %s not found", e.StudentID)
}

func NewStudentNotFound(id string) error {
	return &ErrStudentNotFound{StudentID: id}
}

// ErrValidation reports caller-fault input: bad filters, malformed or
// empty templates. Never retried.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string {
	return "validation failed: " + e.Msg
}

func NewValidation(msg string) error {
	return &ErrValidation{Msg: msg}
}

// ErrInvalidState reports a campaign that is not in a sendable state.
type ErrInvalidState struct {
	CampaignID int
	Status     string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("campaign %d cannot be sent in status: %s", e.CampaignID, e.Status)
}

func NewInvalidState(id int, status string) error {
	return &ErrInvalidState{CampaignID: id, Status: status}
}

// ErrEmptyAudience reports that no student matched the campaign filters.
// The campaign is reverted to draft before this is returned.
type ErrEmptyAudience struct {
	CampaignID int
}

func (e *ErrEmptyAudience) Error() string {
	return fmt.Sprintf("campaign %d resolved an empty audience", e.CampaignID)
}

func NewEmptyAudience(id int) error {
	return &ErrEmptyAudience{CampaignID: id}
}

// ErrDispatchFailed reports a total send-path failure, as opposed to
// per-recipient failures. The campaign is reverted to draft before this
// is returned; tracking rows remain as evidence of the attempt.
type ErrDispatchFailed struct {
	CampaignID int
	Cause      error
}

func (e *ErrDispatchFailed) Error() string {
	return fmt.Sprintf("campaign %d dispatch failed: %v", e.CampaignID, e.Cause)
}

func (e *ErrDispatchFailed) Unwrap() error {
	return e.Cause
}

func NewDispatchFailed(id int, cause error) error {
	return &ErrDispatchFailed{CampaignID: id, Cause: cause}
}
