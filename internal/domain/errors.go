package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound возвращается для незарегистрированного шаблона.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrServiceUnavailable возвращается, когда для запроса нужно хранилище, а оно не настроено.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrAttemptNotFound возвращается, когда попытка с такой ссылкой провайдера не найдена.
	ErrAttemptNotFound = errors.New("delivery attempt not found")
)

// ErrorKind классифицирует ошибки доставки.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindData          ErrorKind = "data"
)

// DeliveryError несёт класс ошибки и код причины.
type DeliveryError struct {
	Kind   ErrorKind
	Reason FailureReason
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError создаёт типизированную ошибку доставки.
func NewDeliveryError(kind ErrorKind, reason FailureReason, err error) *DeliveryError {
	return &DeliveryError{Kind: kind, Reason: reason, Err: err}
}

// KindOf возвращает класс ошибки, если она типизирована.
func KindOf(err error) (ErrorKind, bool) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
