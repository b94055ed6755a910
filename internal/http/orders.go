package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medicart/internal/domain"
	"medicart/internal/repository"
	"medicart/internal/service"
)

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusReq struct {
	Status domain.OrderStatus `json:"status" binding:"required" example:"confirmed"`
	Reason string             `json:"reason"`
}

type deliveryReq struct {
	PartnerID        string `json:"delivery_partner_id"`
	TrackingNumber   string `json:"tracking_number"`
	EstimatedMinutes int    `json:"estimated_delivery_minutes"`
}

// trackingResp is the customer-facing delivery view of an order.
type trackingResp struct {
	OrderID                  string                `json:"order_id"`
	OrderNumber              string                `json:"order_number"`
	Status                   domain.OrderStatus    `json:"status"`
	EmergencyOrder           bool                  `json:"emergency_order"`
	DeliveryPartnerID        string                `json:"delivery_partner_id,omitempty"`
	TrackingNumber           string                `json:"tracking_number,omitempty"`
	EstimatedDeliveryMinutes int                   `json:"estimated_delivery_minutes"`
	EstimatedDeliveryAt      *time.Time            `json:"estimated_delivery_at,omitempty"`
	ActualDeliveryAt         *time.Time            `json:"actual_delivery_at,omitempty"`
	History                  []domain.StatusChange `json:"history"`
}

// @Summary List the caller's orders
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} domain.Order
// @Failure 400 {object} map[string]string
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit or offset"})
		return
	}
	list, err := s.svc.Orders.ListUserOrders(c, currentUser(c), repository.OrderFilter{
		Status: domain.OrderStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// orderFor returns the order when the caller placed it or is staff.
func (s *Server) orderFor(c *gin.Context) (*domain.Order, error) {
	if isStaff(c) {
		return s.svc.Orders.GetOrder(c, c.Param("id"))
	}
	return s.svc.Orders.OrderForUser(c, currentUser(c), c.Param("id"))
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	o, err := s.orderFor(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Delivery tracking of an order
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 200 {object} trackingResp
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id}/tracking [get]
func (s *Server) getTracking(c *gin.Context) {
	o, err := s.orderFor(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trackingResp{
		OrderID:                  o.ID,
		OrderNumber:              o.OrderNumber,
		Status:                   o.Status,
		EmergencyOrder:           o.Emergency,
		DeliveryPartnerID:        o.DeliveryPartnerID,
		TrackingNumber:           o.TrackingNumber,
		EstimatedDeliveryMinutes: o.EstimatedDeliveryMinutes,
		EstimatedDeliveryAt:      o.EstimatedDeliveryAt,
		ActualDeliveryAt:         o.ActualDeliveryAt,
		History:                  o.History,
	})
}

// @Summary Cancel own order
// @Description Allowed until the order is out for delivery. Reserved stock is returned to the catalog.
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param input body cancelReq false "Reason"
// @Success 200 {object} domain.Order
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	o, err := s.svc.Orders.Cancel(c, currentUser(c), c.Param("id"), req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Move an order through its lifecycle
// @Tags staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param input body statusReq true "Target status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /staff/orders/{id}/status [put]
func (s *Server) transitionOrder(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.svc.Orders.Transition(c, c.Param("id"), req.Status, service.TransitionInput{Reason: req.Reason})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Update delivery assignment and estimate
// @Tags staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param input body deliveryReq true "Delivery fields"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /staff/orders/{id}/delivery [put]
func (s *Server) updateDelivery(c *gin.Context) {
	var req deliveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.svc.Orders.UpdateDelivery(c, c.Param("id"), service.DeliveryUpdate{
		PartnerID:        req.PartnerID,
		TrackingNumber:   req.TrackingNumber,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Orders in one status, oldest first
// @Tags staff
// @Produce json
// @Security BearerAuth
// @Param status query string true "Status"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} domain.Order
// @Failure 400 {object} map[string]string
// @Router /staff/orders [get]
func (s *Server) listOrdersByStatus(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit or offset"})
		return
	}
	list, err := s.svc.Orders.ListByStatus(c, domain.OrderStatus(c.Query("status")), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
