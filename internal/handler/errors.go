package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/SvenBotha/SourceChat/internal/apperr"
)

// errorBody is the JSON shape of every error response. The web client shows
// detail; error is the machine-readable kind.
type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Cause  string `json:"cause,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

// ErrorHandler is the Fiber error handler: it renders apperr errors with their
// mapped status and everything else as a plain 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := errorResponse(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}

func errorResponse(err error) (int, errorBody) {
	if e, ok := apperr.As(err); ok {
		return statusFor(e), errorBody{
			Detail: e.Error(),
			Error:  string(e.Kind),
			Reason: string(e.Reason),
			Cause:  e.Cause,
			Fix:    e.Fix,
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		kind := apperr.KindInvalidInput
		switch {
		case fe.Code == fiber.StatusNotFound:
			kind = apperr.KindNotFound
		case fe.Code >= fiber.StatusInternalServerError:
			kind = apperr.KindInternal
		}
		return fe.Code, errorBody{Detail: fe.Message, Error: string(kind)}
	}

	return fiber.StatusInternalServerError, errorBody{
		Detail: http.StatusText(http.StatusInternalServerError),
		Error:  string(apperr.KindInternal),
	}
}

func statusFor(e *apperr.Error) int {
	switch e.Kind {
	case apperr.KindInvalidSource, apperr.KindInvalidInput:
		return fiber.StatusBadRequest
	case apperr.KindAcquisition:
		switch e.Reason {
		case apperr.ReasonNotFound:
			return fiber.StatusNotFound
		case apperr.ReasonAuth:
			return fiber.StatusForbidden
		case apperr.ReasonTooLarge:
			return fiber.StatusRequestEntityTooLarge
		case apperr.ReasonRateLimited:
			return fiber.StatusTooManyRequests
		case apperr.ReasonTimeout:
			return fiber.StatusGatewayTimeout
		default:
			return fiber.StatusBadGateway
		}
	case apperr.KindCollectionNotFound, apperr.KindDimensionMismatch, apperr.KindBusy:
		return fiber.StatusConflict
	case apperr.KindGeneration:
		return fiber.StatusBadGateway
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
