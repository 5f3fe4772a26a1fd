// Package middleware holds the Fiber middleware stack shared by every route.
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Logging writes one access line per request, tagged with its request ID.
func Logging() fiber.Handler {
	return logger.New(logger.Config{
		Format:     "[HTTP] ${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		TimeFormat: "2006/01/02 15:04:05",
	})
}

// RequestID assigns a UUID to requests that arrive without one.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:    RequestIDHeader,
		Generator: uuid.NewString,
	})
}

// CORS allows the browser client at origins (comma separated).
func CORS(origins string) fiber.Handler {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept," + RequestIDHeader,
	})
}

// Recover turns panics into 500 responses and logs the stack.
func Recover() fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			log.Printf("[HTTP] panic serving %s %s: %v", c.Method(), c.Path(), e)
		},
	})
}

// Use installs the full stack on app in order.
func Use(app *fiber.App, corsOrigins string) {
	app.Use(Recover())
	app.Use(RequestID())
	app.Use(Logging())
	app.Use(CORS(corsOrigins))
}
