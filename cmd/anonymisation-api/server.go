package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llm-privacy/anonymisation-api/lib/document"
	"github.com/llm-privacy/anonymisation-api/lib/profile"
	"github.com/llm-privacy/anonymisation-api/lib/session"
)

type HttpError struct {
	code int
	error
}

func (e HttpError) Error() string {
	return e.error.Error()
}

func NewHttpError(code int, err error) HttpError {
	return HttpError{
		code:  code,
		error: err,
	}
}

type server struct {
	controller Controller
}

func (s server) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/anonymise", s.Anonymise)
	r.POST("/api/deanonymise", s.Deanonymise)
	r.POST("/api/inlet", s.Inlet)
	r.POST("/api/outlet", s.Outlet)
	r.GET("/health", s.Health)
}

type anonymiseRequest struct {
	Data      document.Value `json:"data"`
	Profile   string         `json:"profile"`
	SessionID string         `json:"session_id"`
}

type anonymiseResponse struct {
	Data      document.Value `json:"data"`
	SessionID string         `json:"session_id"`
	Entities  map[string]int `json:"entities"`
}

func (s server) Anonymise(c *gin.Context) {
	var req anonymiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, NewHttpError(http.StatusBadRequest, err))
		return
	}

	data, handle, stats, err := s.controller.Anonymise(c.Request.Context(), req.Data, req.Profile, req.SessionID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, anonymiseResponse{
		Data:      data,
		SessionID: handle,
		Entities:  stats.Replaced,
	})
}

type deanonymiseRequest struct {
	Data      document.Value `json:"data"`
	SessionID string         `json:"session_id"`
}

type deanonymiseResponse struct {
	Data document.Value `json:"data"`
}

func (s server) Deanonymise(c *gin.Context) {
	var req deanonymiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, NewHttpError(http.StatusBadRequest, err))
		return
	}
	if req.SessionID == "" {
		handleError(c, NewHttpError(http.StatusBadRequest, errors.New("session_id is required")))
		return
	}

	data, err := s.controller.Deanonymise(c.Request.Context(), req.Data, req.SessionID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, deanonymiseResponse{Data: data})
}

// Inlet and Outlet take the raw payload as the request body, in the shape the
// upstream chat UI sends it, and return the transformed payload. The session
// handle rides inside the payload's metadata.
func (s server) Inlet(c *gin.Context) {
	doc, ok := bindDocument(c)
	if !ok {
		return
	}

	out, err := s.controller.Inlet(c.Request.Context(), doc, c.Query("profile"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s server) Outlet(c *gin.Context) {
	doc, ok := bindDocument(c)
	if !ok {
		return
	}

	out, err := s.controller.Outlet(c.Request.Context(), doc)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

func (s server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"recogniser_ready": s.controller.Ready(),
	})
}

func bindDocument(c *gin.Context) (document.Value, bool) {
	var doc document.Value
	if err := c.ShouldBindJSON(&doc); err != nil {
		handleError(c, NewHttpError(http.StatusBadRequest, err))
		return document.Value{}, false
	}
	if doc.Kind() != document.Mapping {
		handleError(c, NewHttpError(http.StatusBadRequest, errors.New("request body must be a JSON object")))
		return document.Value{}, false
	}
	return doc, true
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		abort(c, http.StatusInternalServerError, errors.New("abort called on nil error"))
		return
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		abort(c, http.StatusNotFound, err)
	case errors.Is(err, profile.ErrUnknownProfile):
		abort(c, http.StatusBadRequest, err)
	case errors.Is(err, document.ErrTooDeep):
		abort(c, http.StatusBadRequest, err)
	default:
		var httpErr HttpError
		if errors.As(err, &httpErr) {
			abort(c, httpErr.code, httpErr.error)
			return
		}
		abort(c, http.StatusInternalServerError, err)
	}
}

func abort(c *gin.Context, code int, err error) {
	c.JSON(code, map[string]interface{}{
		"status":  code,
		"message": err.Error(),
	})
	c.Abort()
}
