package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"medicart/internal/domain"
	"medicart/internal/pricing"
	"medicart/internal/repository"
	"medicart/internal/service"
)

// Services the HTTP layer drives.
type Services struct {
	Catalog       *service.CatalogService
	Prescriptions *service.PrescriptionService
	Carts         *service.CartService
	Orders        *service.OrderService
}

type Server struct {
	engine *gin.Engine
	svc    Services
	auth   *Authenticator
	hub    *TrackingHub
	log    *slog.Logger
}

func NewServer(svc Services, auth *Authenticator, hub *TrackingHub, log *slog.Logger) *Server {
	r := gin.New()
	// handlers pass *gin.Context as context.Context; make it see the request context
	r.ContextWithFallback = true
	r.Use(requestID(), accessLog(log), gin.Recovery())
	s := &Server{engine: r, svc: svc, auth: auth, hub: hub, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := s.engine.Group("/api/v1")
	{
		medicines := v1.Group("/medicines")
		medicines.GET("", s.listMedicines)
		medicines.GET(":id", s.getMedicine)
		staffMedicines := medicines.Group("", s.auth.Middleware(), requireRole(RoleStaff))
		staffMedicines.POST("", s.createMedicine)
		staffMedicines.PUT(":id", s.updateMedicine)
		staffMedicines.DELETE(":id", s.deleteMedicine)

		authed := v1.Group("", s.auth.Middleware())

		cart := authed.Group("/cart")
		cart.GET("", s.getCart)
		cart.DELETE("", s.clearCart)
		cart.POST("/items", s.addCartItem)
		cart.PUT("/items/:medicine_id", s.updateCartItem)
		cart.DELETE("/items/:medicine_id", s.removeCartItem)
		cart.PUT("/items/:medicine_id/prescription", s.linkPrescription)
		cart.POST("/validate", s.validateCart)

		authed.POST("/checkout", s.checkout)

		orders := authed.Group("/orders")
		orders.GET("", s.listOrders)
		orders.GET("/ws", s.hub.serveWS)
		orders.GET(":id", s.getOrder)
		orders.GET(":id/tracking", s.getTracking)
		orders.POST(":id/cancel", s.cancelOrder)

		rx := authed.Group("/prescriptions")
		rx.POST("", s.uploadPrescription)
		rx.GET("", s.listPrescriptions)
		rx.GET(":id", s.getPrescription)

		staff := authed.Group("/staff", requireRole(RoleStaff))
		staff.GET("/orders", s.listOrdersByStatus)
		staff.PUT("/orders/:id/status", s.transitionOrder)
		staff.PUT("/orders/:id/delivery", s.updateDelivery)
		staff.GET("/prescriptions", s.listPrescriptionsByStatus)
		staff.POST("/prescriptions/:id/review", s.reviewPrescription)
		staff.POST("/prescriptions/:id/verify", s.verifyPrescription)
		staff.POST("/prescriptions/:id/reject", s.rejectPrescription)
	}
}

// Medicine handlers
type medicineReq struct {
	Name                 string          `json:"name"`
	GenericName          string          `json:"generic_name"`
	Manufacturer         string          `json:"manufacturer"`
	Price                decimal.Decimal `json:"price" swaggertype:"string" example:"120.50"`
	PrescriptionRequired bool            `json:"prescription_required"`
	Stock                int64           `json:"stock"`
	MinStockLevel        int64           `json:"min_stock_level"`
	ExpiryDate           *string         `json:"expiry_date" example:"2027-01-31"`
}

func (r medicineReq) toDomain(id string) (domain.Medicine, error) {
	m := domain.Medicine{
		ID:                   id,
		Name:                 r.Name,
		GenericName:          r.GenericName,
		Manufacturer:         r.Manufacturer,
		Price:                r.Price,
		PrescriptionRequired: r.PrescriptionRequired,
		Stock:                r.Stock,
		MinStockLevel:        r.MinStockLevel,
	}
	if r.ExpiryDate != nil && *r.ExpiryDate != "" {
		t, err := parseDate(*r.ExpiryDate)
		if err != nil {
			return m, err
		}
		m.ExpiryDate = &t
	}
	return m, nil
}

// @Summary Create medicine
// @Tags medicines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body medicineReq true "Medicine"
// @Success 201 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /medicines [post]
func (s *Server) createMedicine(c *gin.Context) {
	var req medicineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := req.toDomain("")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry_date"})
		return
	}
	out, err := s.svc.Catalog.Create(c, m)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// @Summary Get medicine by id
// @Tags medicines
// @Produce json
// @Param id path string true "Medicine ID"
// @Success 200 {object} domain.Medicine
// @Failure 404 {object} map[string]string
// @Router /medicines/{id} [get]
func (s *Server) getMedicine(c *gin.Context) {
	m, err := s.svc.Catalog.GetByID(c, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Update medicine
// @Tags medicines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Medicine ID"
// @Param input body medicineReq true "Medicine"
// @Success 200 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /medicines/{id} [put]
func (s *Server) updateMedicine(c *gin.Context) {
	var req medicineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := req.toDomain(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry_date"})
		return
	}
	out, err := s.svc.Catalog.Update(c, m)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Delete medicine
// @Tags medicines
// @Security BearerAuth
// @Param id path string true "Medicine ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /medicines/{id} [delete]
func (s *Server) deleteMedicine(c *gin.Context) {
	if err := s.svc.Catalog.Delete(c, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List medicines
// @Tags medicines
// @Produce json
// @Param q query string false "Name or generic name contains"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Param prescription_required query bool false "Only restricted / unrestricted"
// @Success 200 {array} domain.Medicine
// @Router /medicines [get]
func (s *Server) listMedicines(c *gin.Context) {
	var f repository.MedicineFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MaxPrice = &x
		}
	}
	if v := c.Query("prescription_required"); v != "" {
		if x, err := strconv.ParseBool(v); err == nil {
			f.PrescriptionRequired = &x
		}
	}
	list, err := s.svc.Catalog.List(c, f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// writeError renders err with the status mapErrorToStatus picks. Checkout
// rejections also carry their reasons.
func (s *Server) writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	body := gin.H{"error": err.Error()}
	var rej *service.CheckoutRejection
	if errors.As(err, &rej) {
		body["reasons"] = rej.Reasons
	}
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(c, "request failed", "path", c.FullPath(), "err", err)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrCheckoutRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrInvalidLineItem):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMedicineNotFound),
		errors.Is(err, service.ErrPrescriptionNotFound),
		errors.Is(err, service.ErrCartItemNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, service.ErrPrescriptionImmutable),
		errors.Is(err, service.ErrOrderClosed),
		errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrDependencyUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// paging reads limit/offset, defaulting limit to 20 and capping it at 100.
func paging(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = 20, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, false
		}
	}
	return min(limit, 100), offset, true
}
