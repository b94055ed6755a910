package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medicart/internal/domain"
	"medicart/internal/service"
)

type addItemReq struct {
	MedicineID     string `json:"medicine_id" binding:"required"`
	Quantity       int    `json:"quantity"`
	PrescriptionID string `json:"prescription_id"`
	Notes          string `json:"notes"`
}

// updateItemReq needs an explicit quantity; 0 removes the line.
type updateItemReq struct {
	Quantity *int    `json:"quantity"`
	Notes    *string `json:"notes"`
}

type linkPrescriptionReq struct {
	PrescriptionID string `json:"prescription_id" binding:"required"`
}

type checkoutReq struct {
	DeliveryAddress      domain.DeliveryAddress `json:"delivery_address"`
	PaymentMethod        domain.PaymentMethod   `json:"payment_method" example:"cash_on_delivery"`
	DeliveryInstructions string                 `json:"delivery_instructions"`
	Emergency            bool                   `json:"emergency_order"`
}

// @Summary Get the caller's cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Cart
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	cart, err := s.svc.Carts.GetCart(c, currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Add a medicine to the cart
// @Description Adding a medicine already in the cart increases its quantity.
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body addItemReq true "Line item"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cart, err := s.svc.Carts.AddItem(c, currentUser(c), service.AddItemInput{
		MedicineID:     req.MedicineID,
		Quantity:       req.Quantity,
		PrescriptionID: req.PrescriptionID,
		Notes:          req.Notes,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Change a line's quantity
// @Description quantity is required; 0 removes the line. notes is optional.
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param medicine_id path string true "Medicine ID"
// @Param input body updateItemReq true "New quantity"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items/{medicine_id} [put]
func (s *Server) updateCartItem(c *gin.Context) {
	var req updateItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity is required"})
		return
	}
	cart, err := s.svc.Carts.UpdateItem(c, currentUser(c), c.Param("medicine_id"), *req.Quantity, req.Notes)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Remove a line
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Param medicine_id path string true "Medicine ID"
// @Success 200 {object} domain.Cart
// @Router /cart/items/{medicine_id} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	cart, err := s.svc.Carts.RemoveItem(c, currentUser(c), c.Param("medicine_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Attach a prescription to a line
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param medicine_id path string true "Medicine ID"
// @Param input body linkPrescriptionReq true "Prescription"
// @Success 200 {object} domain.Cart
// @Failure 404 {object} map[string]string
// @Router /cart/items/{medicine_id}/prescription [put]
func (s *Server) linkPrescription(c *gin.Context) {
	var req linkPrescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cart, err := s.svc.Carts.LinkPrescription(c, currentUser(c), c.Param("medicine_id"), req.PrescriptionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Empty the cart
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.Cart
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	cart, err := s.svc.Carts.Clear(c, currentUser(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// @Summary Preview checkout validation
// @Description Runs every checkout check without placing an order. Prescription statuses are re-evaluated and saved.
// @Tags cart
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.ValidationResult
// @Failure 503 {object} map[string]string
// @Router /cart/validate [post]
func (s *Server) validateCart(c *gin.Context) {
	user := currentUser(c)
	if _, err := s.svc.Carts.ValidatePrescriptions(c, user); err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.svc.Carts.ValidateCart(c, user)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Place an order from the cart
// @Tags cart
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body checkoutReq true "Delivery and payment"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]interface{} "Checkout rejected, with reasons"
// @Failure 503 {object} map[string]string
// @Router /checkout [post]
func (s *Server) checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.svc.Orders.Checkout(c, currentUser(c), service.CheckoutInput{
		DeliveryAddress:      req.DeliveryAddress,
		PaymentMethod:        req.PaymentMethod,
		DeliveryInstructions: req.DeliveryInstructions,
		Emergency:            req.Emergency,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}
