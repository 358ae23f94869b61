// Package response holds the success envelopes shared by the API handlers.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Body is the {success,data} envelope.
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK writes data with 200.
func OK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created writes data with 201.
func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Message writes a data-less success with msg.
func Message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, Body{Success: true, Message: msg})
}
