package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
)

func (s *Server) CreateServiceRequest(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, biddingdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectServiceRequest, authorization.ActionServiceRequestCreate) {
		return
	}

	var req biddingdomain.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProjectID = projectID

	request, err := s.biddingSvc.CreateRequest(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

func (s *Server) ListServiceRequests(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, biddingdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectServiceRequest, authorization.ActionServiceRequestView) {
		return
	}

	requests, err := s.biddingSvc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"service_requests": requests})
}

func (s *Server) GetServiceRequest(c *gin.Context) {
	request, ok := s.loadAuthorizedRequest(c, authorization.ActionServiceRequestView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, request)
}

func (s *Server) PublishServiceRequest(c *gin.Context) {
	request, ok := s.loadAuthorizedRequest(c, authorization.ActionServiceRequestPublish)
	if !ok {
		return
	}

	published, err := s.biddingSvc.Publish(c.Request.Context(), request.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, published)
}

func (s *Server) SubmitBid(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	request, ok := s.loadAuthorizedRequest(c, authorization.ActionBidSubmit)
	if !ok {
		return
	}

	var req biddingdomain.SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	bid, err := s.biddingSvc.SubmitBid(c.Request.Context(), userID, request.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bid)
}

func (s *Server) ListBids(c *gin.Context) {
	request, ok := s.loadAuthorizedRequest(c, authorization.ActionBidView)
	if !ok {
		return
	}

	bids, err := s.biddingSvc.ListBids(c.Request.Context(), request.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bids": bids})
}

type awardBidRequest struct {
	BidID string `json:"bid_id"`
}

func (s *Server) AwardBid(c *gin.Context) {
	request, ok := s.loadAuthorizedRequest(c, authorization.ActionBidAward)
	if !ok {
		return
	}

	var req awardBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.biddingSvc.Award(c.Request.Context(), request.ID, strings.TrimSpace(req.BidID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) RejectBid(c *gin.Context) {
	bid, ok := s.loadAuthorizedBid(c, authorization.ActionBidReject)
	if !ok {
		return
	}

	if err := s.biddingSvc.RejectBid(c.Request.Context(), bid.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) WithdrawBid(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	bidID := strings.TrimSpace(c.Param("bidId"))
	if bidID == "" {
		AbortWithError(c, biddingdomain.ErrBidNotFound)
		return
	}

	// Ownership is checked by the service; no project role needed to
	// withdraw your own bid.
	if err := s.biddingSvc.WithdrawBid(c.Request.Context(), userID, bidID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) loadAuthorizedRequest(c *gin.Context, action string) (*biddingdomain.RequestResponse, bool) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	if requestID == "" {
		AbortWithError(c, biddingdomain.ErrRequestNotFound)
		return nil, false
	}

	request, err := s.biddingSvc.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !s.authorize(c, request.ProjectID, authorization.ObjectBid, action) {
		return nil, false
	}
	return request, true
}

func (s *Server) loadAuthorizedBid(c *gin.Context, action string) (*biddingdomain.BidResponse, bool) {
	bidID := strings.TrimSpace(c.Param("bidId"))
	if bidID == "" {
		AbortWithError(c, biddingdomain.ErrBidNotFound)
		return nil, false
	}

	bid, err := s.biddingSvc.GetBid(c.Request.Context(), bidID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	request, err := s.biddingSvc.GetRequest(c.Request.Context(), bid.RequestID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !s.authorize(c, request.ProjectID, authorization.ObjectBid, action) {
		return nil, false
	}
	return bid, true
}
