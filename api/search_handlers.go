package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	searchErrors "github.com/gcbaptista/patient-search/internal/errors"
	"github.com/gcbaptista/patient-search/internal/logger"
	"github.com/gcbaptista/patient-search/internal/protocol"
	"github.com/gcbaptista/patient-search/model"
)

// SearchRequest is the body of POST /patients/_search.
type SearchRequest struct {
	Query   *string       `json:"query"`
	Filters model.Filters `json:"filters"`
}

// SearchHandler runs a patient search.
func (api *API) SearchHandler(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateSearchRequest(req); result.HasErrors() {
		SendStructuredValidationError(c, result)
		return
	}

	resp, err := api.engine.Search(c.Request.Context(), model.SearchRequest{Query: *req.Query, Filters: req.Filters})
	if err != nil {
		logger.FromContext(c.Request.Context(), api.logger).Error("search failed", zap.Error(err))
		if errors.Is(err, searchErrors.ErrCorpusUnavailable) {
			SendCorpusUnavailableError(c, err)
			return
		}
		SendSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PostMessageHandler accepts one request envelope and answers with the reply envelope.
// Protocol failures are ERROR envelopes with status 200, including a malformed
// envelope whose id can still be read. Only a body with no usable id is an HTTP error.
func (api *API) PostMessageHandler(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	msg, err := protocol.DecodeMessage(body)
	if err != nil {
		if msg.ID == "" {
			SendInvalidJSONError(c, err)
			return
		}
		logger.FromContext(c.Request.Context(), api.logger).Warn("malformed message envelope", zap.String("id", msg.ID), zap.Error(err))
		c.JSON(http.StatusOK, protocol.ErrorReply(msg.ID, err))
		return
	}
	c.JSON(http.StatusOK, api.dispatcher.Handle(c.Request.Context(), msg))
}
