package handlers

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/catalogs/customer"
	custledger "farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/infrastructure/http/v1/dto"
)

// CustomerHandler handles HTTP requests for the customer catalog and
// its loyalty/credit sub-ledgers.
type CustomerHandler struct {
	*BaseHandler
	catalog *customer.Service
	ledger  *custledger.Service
}

// NewCustomerHandler creates a new customer handler.
func NewCustomerHandler(base *BaseHandler, catalog *customer.Service, ledger *custledger.Service) *CustomerHandler {
	return &CustomerHandler{
		BaseHandler: base,
		catalog:     catalog,
		ledger:      ledger,
	}
}

// List handles GET /catalog/customers
func (h *CustomerHandler) List(c *gin.Context) {
	filter := customer.ListFilter{
		Search:         c.Query("search"),
		IncludeDeleted: c.Query("includeDeleted") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 50),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}

	customers, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromCustomers(customers),
		TotalCount: int64(len(customers)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Create handles POST /catalog/customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req dto.CreateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cust := req.ToCustomer()
	if err := h.catalog.Create(c.Request.Context(), cust); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, cust.ID.String())
}

// Get handles GET /catalog/customers/:id
func (h *CustomerHandler) Get(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	cust, err := h.catalog.GetByID(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCustomer(cust))
}

// Update handles PUT /catalog/customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cust, err := h.catalog.GetByID(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.Apply(cust)
	if err := h.catalog.UpdateDetails(c.Request.Context(), cust); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromCustomer(cust))
}

// SetDeletionMark handles POST /catalog/customers/:id/deletion-mark
func (h *CustomerHandler) SetDeletionMark(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.catalog.MarkDeleted(c.Request.Context(), customerID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "customer marked for deletion")
}

// LoyaltyHistory handles GET /catalog/customers/:id/loyalty
func (h *CustomerHandler) LoyaltyHistory(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	filter := custledger.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	txs, err := h.ledger.LoyaltyHistory(c.Request.Context(), customerID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromLoyaltyTransactions(txs),
		TotalCount: int64(len(txs)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// CreditHistory handles GET /catalog/customers/:id/credit
func (h *CustomerHandler) CreditHistory(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	filter := custledger.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	txs, err := h.ledger.CreditHistory(c.Request.Context(), customerID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromCreditTransactions(txs),
		TotalCount: int64(len(txs)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// VerifyLedger handles GET /catalog/customers/:id/ledger/verify
// Recomputes both balances from the transaction logs and compares them
// with the cached card values.
func (h *CustomerHandler) VerifyLedger(c *gin.Context) {
	customerID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	result, err := h.ledger.Reconstruct(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LedgerVerifyResponse{
		CustomerID:   result.CustomerID.String(),
		Consistent:   result.Consistent(),
		CachedPoints: result.CachedPoints.Int64(),
		LedgerPoints: result.ComputedPoints.Int64(),
		CachedCredit: int64(result.CachedCredit),
		LedgerCredit: int64(result.ComputedCredit),
	})
}
