// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCampaignNotFound is returned when a campaign id has no row.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrRecipientNotFound struct {
	RecipientID int
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("recipient with ID %d not found", e.RecipientID)
}

func NewRecipientNotFound(id int) error {
	return &ErrRecipientNotFound{RecipientID: id}
}

// ErrUnknownChannel means no connector is registered for the channel.
type ErrUnknownChannel struct {
	Channel string
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("unsupported channel: %s", e.Channel)
}

func NewUnknownChannel(ch string) error {
	return &ErrUnknownChannel{Channel: ch}
}

// ErrConnectorNotInitialized is returned when a connector has no usable config.
type ErrConnectorNotInitialized struct {
	Channel string
	Reason  string
}

func (e *ErrConnectorNotInitialized) Error() string {
	return fmt.Sprintf("%s connector not initialized: %s", e.Channel, e.Reason)
}

func NewConnectorNotInitialized(ch, reason string) error {
	return &ErrConnectorNotInitialized{Channel: ch, Reason: reason}
}

// ErrProvider wraps a non-2xx answer from an outbound provider API.
type ErrProvider struct {
	Channel    string
	StatusCode int
	Body       string
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("%s provider returned %d: %s", e.Channel, e.StatusCode, e.Body)
}

func (e *ErrProvider) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func NewProviderError(ch string, status int, body string) error {
	return &ErrProvider{Channel: ch, StatusCode: status, Body: body}
}

// IsUnauthorized reports whether err carries a provider 401.
func IsUnauthorized(err error) bool {
	var pe *ErrProvider
	return errors.As(err, &pe) && pe.IsUnauthorized()
}

type ErrInvalidSchedule struct {
	Reason string
}

func (e *ErrInvalidSchedule) Error() string {
	return "invalid schedule: " + e.Reason
}

func NewInvalidSchedule(reason string) error {
	return &ErrInvalidSchedule{Reason: reason}
}

// ErrInvalidTransition is returned when a status change would move a campaign backwards.
type ErrInvalidTransition struct {
	CampaignID int
	From       string
	To         string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d cannot move from %s to %s", e.CampaignID, e.From, e.To)
}

func NewInvalidTransition(id int, from, to string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, To: to}
}

// ErrValidation is a caller input problem.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidation(field, msg string) error {
	return &ErrValidation{Field: field, Message: msg}
}

// HTTPStatus maps an application error onto a response code.
func HTTPStatus(err error) int {
	var (
		cnf *ErrCampaignNotFound
		rnf *ErrRecipientNotFound
		val *ErrValidation
		sch *ErrInvalidSchedule
		tr  *ErrInvalidTransition
		uc  *ErrUnknownChannel
	)
	switch {
	case errors.As(err, &cnf), errors.As(err, &rnf):
		return http.StatusNotFound
	case errors.As(err, &val), errors.As(err, &sch), errors.As(err, &uc):
		return http.StatusBadRequest
	case errors.As(err, &tr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
