package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/knowdhq/knowd/internal/pkg/errcode"
	"github.com/knowdhq/knowd/internal/pkg/response"
	"github.com/knowdhq/knowd/internal/service"
)

type BudgetHandler struct {
	budget *service.BudgetService
}

func NewBudgetHandler(budget *service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budget: budget}
}

func (h *BudgetHandler) Get(c *gin.Context) {
	state, err := h.budget.State(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, state)
}

type setBudgetRequest struct {
	MonthlyBudgetUSD float64 `json:"monthly_budget_usd"`
}

func (h *BudgetHandler) Set(c *gin.Context) {
	var req setBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.MonthlyBudgetUSD < 0 {
		response.Error(c, errcode.ErrInvalid, "monthly_budget_usd must be >= 0")
		return
	}
	if err := h.budget.SetMonthlyBudget(c.Request.Context(), getUserID(c), req.MonthlyBudgetUSD); err != nil {
		handleError(c, err)
		return
	}
	state, err := h.budget.State(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, state)
}
