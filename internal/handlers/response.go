package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
)

// APIError is the single error shape every endpoint returns. Code is a
// machine-readable discriminator; Message is for humans.
type APIError struct {
  Code    string `json:"code,omitempty"`
  Message string `json:"message"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

// RespondError writes the error envelope and aborts the handler chain so
// later middleware cannot overwrite the status.
func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.AbortWithStatusJSON(status, ErrorEnvelope{
    Error: APIError{Code: code, Message: msg},
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}
