package visit

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medicore/hms/internal/platform/auth"
	"github.com/medicore/hms/pkg/pagination"
)

// ReceiptNotifier sends a best-effort payment receipt. Delivery failures
// are logged, never surfaced to the payer.
type ReceiptNotifier interface {
	PaymentReceived(ctx context.Context, recipient, visitNumber string, amount decimal.Decimal) error
}

type Handler struct {
	svc      *Service
	notifier ReceiptNotifier // may be nil
	log      zerolog.Logger
}

func NewHandler(svc *Service, notifier ReceiptNotifier, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, notifier: notifier, log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	visits := api.Group("/visits")

	visits.POST("", h.CreateVisit, auth.RequireRole("admin", "reception"))
	visits.GET("", h.ListVisits, auth.RequireRole("admin", "reception", "doctor", "billing"))
	visits.GET("/:visitId", h.GetVisit, auth.RequireRole("admin", "reception", "doctor", "billing", "lab"))

	// Financial operations.
	visits.POST("/:visitId/charges", h.AddServiceCharge, auth.RequireRole("admin", "reception", "billing"))
	visits.POST("/:visitId/charges/:chargeId/waive", h.WaiveCharge, auth.RequireRole("admin", "billing"))
	visits.POST("/:visitId/payments", h.RecordPayment, auth.RequireRole("admin", "reception", "billing"))
	visits.GET("/:visitId/payment-summary", h.GetPaymentSummary, auth.RequireRole("admin", "reception", "doctor", "billing"))
	visits.POST("/:visitId/confirm-payment", h.ConfirmPayment, auth.RequireRole("admin", "reception", "billing"))

	// Visit lifecycle.
	visits.POST("/:visitId/status", h.UpdateStatus, auth.RequireRole("admin", "doctor", "reception"))
	visits.POST("/:visitId/end", h.EndVisit, auth.RequireRole("admin", "doctor", "reception"))

	// Clinical orders: payment-gated for lab orders and prescriptions,
	// active-gated for diagnoses.
	visits.POST("/:visitId/lab-orders", h.AddLabOrder,
		auth.RequireRole("admin", "doctor", "lab"), PaymentEligibility(h.svc))
	visits.POST("/:visitId/prescriptions", h.AddPrescription,
		auth.RequireRole("admin", "doctor"), PaymentEligibility(h.svc))
	visits.POST("/:visitId/diagnoses", h.AddDiagnosis,
		auth.RequireRole("admin", "doctor"), RequireActiveVisit(h.svc))
}

// httpError maps domain errors onto the wire contract.
func httpError(err error) error {
	var vErr *ValidationError
	var dup *DuplicateActiveVisitError
	var payReq *PaymentRequiredError
	switch {
	case errors.As(err, &vErr):
		return echo.NewHTTPError(http.StatusBadRequest, vErr.Msg)
	case errors.As(err, &dup):
		return echo.NewHTTPError(http.StatusBadRequest, dup.Error())
	case errors.As(err, &payReq):
		return echo.NewHTTPError(http.StatusForbidden, payReq.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, "patient not found")
	case errors.Is(err, ErrVisitInactive):
		return echo.NewHTTPError(http.StatusBadRequest, "cannot modify inactive visit")
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, "visit was modified concurrently, retry")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Server Error")
	}
}

func (h *Handler) CreateVisit(c echo.Context) error {
	var in CreateVisitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.StartedByID == nil {
		if actor, ok := actorID(c); ok {
			in.StartedByID = &actor
		}
	}
	v, err := h.svc.CreateVisit(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	v, err := h.svc.resolve(c.Request().Context(), c.Param("visitId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVisits(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		items []*Visit
		total int
		err   error
	)
	switch {
	case c.QueryParam("outstanding") == "true":
		items, total, err = h.svc.ListOutstanding(ctx, pg.Limit, pg.Offset)
	case c.QueryParam("patient_id") != "":
		pid, parseErr := uuid.Parse(c.QueryParam("patient_id"))
		if parseErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err = h.svc.ListVisitsByPatient(ctx, pid, pg.Limit, pg.Offset)
	default:
		items, total, err = h.svc.ListVisits(ctx, pg.Limit, pg.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Server Error")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AddServiceCharge(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	var in ChargeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, charge, err := h.svc.AddServiceCharge(c.Request().Context(), c.Param("visitId"), in, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"charge":  charge,
		"summary": v.Summary(),
	})
}

func (h *Handler) WaiveCharge(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	chargeID, err := uuid.Parse(c.Param("chargeId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid charge id")
	}
	v, err := h.svc.WaiveCharge(c.Request().Context(), c.Param("visitId"), chargeID, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"summary": v.Summary(),
	})
}

func (h *Handler) RecordPayment(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	v, rec, err := h.svc.RecordPayment(ctx, c.Param("visitId"), in, actor)
	if err != nil {
		return httpError(err)
	}

	h.sendReceipt(ctx, v, rec.Amount)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"payment": rec,
		"summary": v.Summary(),
	})
}

// sendReceipt emails the payer a receipt when the patient has an address on
// file. Failures are logged only.
func (h *Handler) sendReceipt(ctx context.Context, v *Visit, amount decimal.Decimal) {
	if h.notifier == nil {
		return
	}
	patient, err := h.svc.PatientFor(ctx, v)
	if err != nil || patient.Email == nil || *patient.Email == "" {
		return
	}
	if err := h.notifier.PaymentReceived(ctx, *patient.Email, v.VisitNumber, amount); err != nil {
		h.log.Warn().Err(err).Str("visit", v.VisitNumber).Msg("receipt notification failed")
	}
}

func (h *Handler) GetPaymentSummary(c echo.Context) error {
	summary, err := h.svc.GetPaymentSummary(c.Request().Context(), c.Param("visitId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ConfirmPayment(c echo.Context) error {
	v, err := h.svc.ConfirmPayment(c.Request().Context(), c.Param("visitId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var in struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("visitId"), in.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) EndVisit(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	v, err := h.svc.EndVisit(c.Request().Context(), c.Param("visitId"), actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) AddLabOrder(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	var in LabOrderInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, order, err := h.svc.AddLabOrder(c.Request().Context(), c.Param("visitId"), in, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":    "success",
		"lab_order": order,
		"summary":   v.Summary(),
	})
}

func (h *Handler) AddPrescription(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	var in PrescriptionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, rx, err := h.svc.AddPrescription(c.Request().Context(), c.Param("visitId"), in, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":       "success",
		"prescription": rx,
		"summary":      v.Summary(),
	})
}

func (h *Handler) AddDiagnosis(c echo.Context) error {
	actor, ok := actorID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authenticated staff id required")
	}
	var in DiagnosisInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.AddDiagnosis(c.Request().Context(), c.Param("visitId"), in, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// actorID extracts the authenticated staff id for audit attribution.
func actorID(c echo.Context) (uuid.UUID, bool) {
	raw := auth.UserIDFromContext(c.Request().Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
