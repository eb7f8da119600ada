package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gerrot/api/internal/apperr"
	"github.com/gerrot/api/pkg/response"
)

// respondError writes the error envelope for a service error. Internal
// details never reach the client.
func respondError(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	message := apperr.Message(err)

	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidInput:
		return response.Error(c, status, response.CodeInvalidInput, message, nil)
	case apperr.CodeJobNotFound:
		return response.Error(c, status, response.CodeJobNotFound, message, nil)
	case apperr.CodeNotFound:
		return response.NotFound(c, message)
	case apperr.CodeBusy, apperr.CodeQueueUnavailable:
		return response.ServiceUnavailable(c, message)
	case apperr.CodeRenderFailure:
		return response.Error(c, status, response.CodeRenderFailed, "Could not generate the PDF", nil)
	default:
		return response.ServiceError(c, "Internal Server Error")
	}
}

// ErrorHandler is the fiber error handler for errors that escape handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := response.CodeServiceError
		switch fe.Code {
		case fiber.StatusNotFound:
			code = response.CodeNotFound
		case fiber.StatusBadRequest:
			code = response.CodeValidationError
		case fiber.StatusUnauthorized:
			code = response.CodeUnauthorized
		}
		return response.Error(c, fe.Code, code, fe.Message, nil)
	}
	return respondError(c, err)
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
