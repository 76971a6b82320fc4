package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/synthsara/codex/internal/pkg/entitlements"
	"github.com/synthsara/codex/internal/pkg/payercontext"
)

type EntitlementController struct {
	svc *entitlements.Service
}

func NewEntitlementController(svc *entitlements.Service) *EntitlementController {
	return &EntitlementController{svc: svc}
}

type grantView struct {
	ContentID       string      `json:"content_id"`
	GrantedAt       string      `json:"granted_at"`
	FirstAccessedAt interface{} `json:"first_accessed_at"`
}

func (ec *EntitlementController) HandleListGrants(c *fiber.Ctx) error {
	payerID := payercontext.GetPayerID(c)
	grants, err := ec.svc.ListGrants(c.UserContext(), payerID)
	if err != nil {
		fiberlog.Errorf("[Entitlements] List grants for payer %d failed: %v", payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "entitlements_unavailable")
	}

	views := make([]grantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, grantView{
			ContentID:       g.ContentID,
			GrantedAt:       g.GrantedAt.UTC().Format(time.RFC3339),
			FirstAccessedAt: formatTimePtr(g.FirstAccessedAt),
		})
	}
	return c.JSON(fiber.Map{"user_id": payerID, "grants": views})
}

func (ec *EntitlementController) HandleCurrentTier(c *fiber.Ctx) error {
	payerID := payercontext.GetPayerID(c)
	tier, err := ec.svc.CurrentTier(c.UserContext(), payerID)
	if err != nil {
		if errors.Is(err, entitlements.ErrPayerNotFound) {
			return jsonError(c, fiber.StatusNotFound, "payer_not_found")
		}
		fiberlog.Errorf("[Entitlements] Tier lookup for payer %d failed: %v", payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "entitlements_unavailable")
	}
	return c.JSON(fiber.Map{"user_id": payerID, "tier": tier, "paid": tier.IsPaid()})
}

// HandleCheckAccess reports access without marking the content as opened.
func (ec *EntitlementController) HandleCheckAccess(c *fiber.Ctx) error {
	payerID := payercontext.GetPayerID(c)
	access, err := ec.svc.CheckAccess(c.UserContext(), payerID, c.Params("contentId"))
	if err != nil {
		fiberlog.Errorf("[Entitlements] Access check for payer %d failed: %v", payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "entitlements_unavailable")
	}
	return c.JSON(access)
}

// HandleMarkAccess opens granted content and reports whether this is the
// payer's first time.
func (ec *EntitlementController) HandleMarkAccess(c *fiber.Ctx) error {
	payerID := payercontext.GetPayerID(c)
	ctx := c.UserContext()

	access, err := ec.svc.CheckAccess(ctx, payerID, c.Params("contentId"))
	if err != nil {
		fiberlog.Errorf("[Entitlements] Access check for payer %d failed: %v", payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "entitlements_unavailable")
	}
	if !access.HasAccess {
		return c.Status(fiber.StatusForbidden).JSON(access)
	}
	if access.Free {
		return c.JSON(access)
	}

	first, err := ec.svc.MarkFirstAccess(ctx, payerID, access.ContentID)
	if err != nil {
		if errors.Is(err, entitlements.ErrNoGrant) {
			access.HasAccess = false
			access.IsFirstTime = false
			return c.Status(fiber.StatusForbidden).JSON(access)
		}
		fiberlog.Errorf("[Entitlements] Marking %s for payer %d failed: %v", access.ContentID, payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "entitlements_unavailable")
	}
	access.IsFirstTime = first
	return c.JSON(access)
}

func (ec *EntitlementController) HandleListPurchases(c *fiber.Ctx) error {
	payerID := payercontext.GetPayerID(c)
	purchases, err := ec.svc.ListPurchases(c.UserContext(), payerID, queryLimit(c))
	if err != nil {
		fiberlog.Errorf("[Entitlements] Purchase history for payer %d failed: %v", payerID, err)
		return jsonError(c, fiber.StatusInternalServerError, "purchases_unavailable")
	}
	return c.JSON(fiber.Map{"user_id": payerID, "purchases": purchases})
}
