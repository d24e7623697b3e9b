package handler

import (
	"errors"
	"net/http"

	"github.com/aett-transit/ticket-service/internal/model"
	"github.com/aett-transit/ticket-service/internal/service"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	svc *service.TicketService
}

func NewTicketHandler(svc *service.TicketService) *TicketHandler {
	return &TicketHandler{svc: svc}
}

type buyTicketRequest struct {
	TicketType     string  `json:"ticket_type" binding:"required"`
	Zone           string  `json:"zone"`
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	PersonalizedID *string `json:"personalized_id"`
}

type buyTicketResponse struct {
	Token string `json:"token"`
	*model.TicketPayload
}

// Buy issues a new ticket (API-key check runs in the router middleware).
func (h *TicketHandler) Buy(c *gin.Context) {
	var req buyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	params := service.IssueParams{
		TicketType:  model.TicketType(req.TicketType),
		Zone:        req.Zone,
		Origin:      req.Origin,
		Destination: req.Destination,
	}
	if req.PersonalizedID != nil {
		params.PersonalizedID = *req.PersonalizedID
	}
	res, err := h.svc.Issue(c.Request.Context(), params)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTicketType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue ticket"})
		return
	}
	c.JSON(http.StatusCreated, buyTicketResponse{Token: res.Token, TicketPayload: res.Payload})
}

type verifyTicketRequest struct {
	Token string `json:"token" binding:"required"`
}

type verifyTicketResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	*model.TicketPayload
	FirstCheckedAt int64 `json:"first_checked_at,omitempty"`
	AlreadyChecked bool  `json:"already_checked"`
}

// Verify checks a previously issued token. An invalid ticket is still a
// 200 with valid=false and a reason.
func (h *TicketHandler) Verify(c *gin.Context) {
	var req verifyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	res := h.svc.Verify(c.Request.Context(), req.Token)
	if !res.Valid {
		c.JSON(http.StatusOK, verifyTicketResponse{Valid: false, Reason: res.Reason})
		return
	}
	c.JSON(http.StatusOK, verifyTicketResponse{
		Valid:          true,
		TicketPayload:  res.Payload,
		FirstCheckedAt: res.FirstCheckedAt,
		AlreadyChecked: res.AlreadyChecked,
	})
}
