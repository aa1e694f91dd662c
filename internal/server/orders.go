package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	orderdomain "github.com/timberline-hq/timberline/internal/order/domain"
)

func (s *Server) CreateOrder(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, orderdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectOrder, authorization.ActionOrderCreate) {
		return
	}

	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProjectID = projectID

	order, err := s.orderSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (s *Server) ListOrders(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, orderdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectOrder, authorization.ActionOrderView) {
		return
	}

	orders, err := s.orderSvc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) GetOrder(c *gin.Context) {
	order, ok := s.loadAuthorizedOrder(c, authorization.ActionOrderView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	order, ok := s.loadAuthorizedOrder(c, authorization.ActionOrderUpdate)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.orderSvc.UpdateStatus(c.Request.Context(), order.ID, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) CancelOrder(c *gin.Context) {
	order, ok := s.loadAuthorizedOrder(c, authorization.ActionOrderCancel)
	if !ok {
		return
	}

	cancelled, err := s.orderSvc.Cancel(c.Request.Context(), order.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cancelled)
}

func (s *Server) loadAuthorizedOrder(c *gin.Context, action string) (*orderdomain.OrderResponse, bool) {
	orderID := strings.TrimSpace(c.Param("orderId"))
	if orderID == "" {
		AbortWithError(c, orderdomain.ErrNotFound)
		return nil, false
	}

	order, err := s.orderSvc.Get(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !s.authorize(c, order.ProjectID, authorization.ObjectOrder, action) {
		return nil, false
	}
	return order, true
}
