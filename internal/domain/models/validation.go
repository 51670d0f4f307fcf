package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateFlowRecord checks a record before it enters a graph
func ValidateFlowRecord(r *FlowRecord) error {
	if r == nil {
		return errors.New("flow record cannot be nil")
	}
	if err := validate.Struct(r); err != nil {
		return formatValidationError(err)
	}
	if r.Start.IsZero() {
		return errors.New("Start: is required")
	}
	if r.End != nil && r.End.Before(r.Start) {
		return fmt.Errorf("End: %s is before start %s", r.End, r.Start)
	}
	return nil
}

// ValidateSessionEvent checks a VPN event
func ValidateSessionEvent(e *SessionEvent) error {
	if e == nil {
		return errors.New("session event cannot be nil")
	}
	if err := validate.Struct(e); err != nil {
		return formatValidationError(err)
	}
	if e.Timestamp.IsZero() {
		return errors.New("Timestamp: is required")
	}
	return nil
}

// ValidateStruct validates any struct carrying validate tags
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
