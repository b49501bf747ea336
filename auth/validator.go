package auth

import (
	"fmt"
	"live-chat/domain"
	"live-chat/errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const DefaultMaxContentLength = 240

// MessageValidator rejects blank texts and texts longer than maxLength runes.
type MessageValidator struct {
	validate  *validator.Validate
	maxLength int
}

func NewMessageValidator(maxLength int) *MessageValidator {
	validate := validator.New()
	// notblank is not part of the default set
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	return &MessageValidator{validate: validate, maxLength: maxLength}
}

func (v *MessageValidator) ValidatePost(cmd domain.PostMessageCommand) error {
	if err := v.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: text must not be blank", errors.ErrInvalidMessage)
	}
	if err := v.validate.Var(cmd.Text, fmt.Sprintf("max=%d", v.maxLength)); err != nil {
		return fmt.Errorf("%w: text exceeds %d characters", errors.ErrInvalidMessage, v.maxLength)
	}
	return nil
}
