package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tably/orderd/internal/apperr"
	"github.com/tably/orderd/internal/directory"
	"github.com/tably/orderd/internal/httpx"
	"github.com/tably/orderd/internal/order"
	"github.com/tably/orderd/internal/realtime"
)

func bearerToken(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// callerMembership resolves the caller's organization membership for scoped
// reads. With no organization parameter the caller's memberships are
// searched; a venue filter then demands independent access to that venue.
func callerMembership(ctx context.Context, auth *realtime.Authenticator, dir directory.Repository, c *gin.Context, orgID, venueID string) (*directory.Membership, error) {
	state, userID, err := auth.Authenticate(ctx, bearerToken(c))
	if err != nil || state != realtime.StateAuthenticated {
		return nil, apperr.New(apperr.KindForbidden, "authentication required")
	}

	if orgID != "" {
		m, err := dir.GetMembership(ctx, orgID, userID)
		if err != nil {
			return nil, apperr.New(apperr.KindForbidden, "caller is not a member of the organization")
		}
		return m, nil
	}

	memberships, err := dir.MembershipsForUser(ctx, userID)
	if err != nil || len(memberships) == 0 {
		return nil, apperr.New(apperr.KindForbidden, "caller has no memberships")
	}
	if venueID != "" {
		venue, err := dir.GetVenue(ctx, venueID)
		if err != nil {
			return nil, apperr.New(apperr.KindNotFound, "venue not found")
		}
		for i := range memberships {
			if order.AllowsVenue(&memberships[i], venue.OrganizationID, venueID) {
				return &memberships[i], nil
			}
		}
		return nil, apperr.New(apperr.KindForbidden, "venue outside caller scope")
	}
	if len(memberships) > 1 {
		return nil, apperr.Invalid("organization_id is required for callers with several memberships", "organization_id")
	}
	return &memberships[0], nil
}

// createOrderHandler handles POST /orders.
func createOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		o, err := svc.Create(c.Request.Context(), req)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

// listOrdersHandler handles GET /orders with caller-scoped visibility.
func listOrdersHandler(svc *order.Service, auth *realtime.Authenticator, dir directory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := order.Filter{
			OrganizationID: c.Query("organization_id"),
			VenueID:        c.Query("venue_id"),
			TableID:        c.Query("table_id"),
			Status:         order.Status(c.Query("status")),
			CustomerName:   c.Query("customer_name"),
			CustomerEmail:  c.Query("customer_email"),
			CustomerPhone:  c.Query("customer_phone"),
		}
		if v := c.Query("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.Fail(c, apperr.Invalid("from must be RFC3339", "from"))
				return
			}
			f.From = t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.Fail(c, apperr.Invalid("to must be RFC3339", "to"))
				return
			}
			f.To = t
		}
		page, err := parsePage(c)
		if err != nil {
			httpx.Fail(c, err)
			return
		}

		m, err := callerMembership(c.Request.Context(), auth, dir, c, f.OrganizationID, f.VenueID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		res, err := svc.List(c.Request.Context(), m, f, page)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func parsePage(c *gin.Context) (order.Page, error) {
	p := order.Page{Page: 1, PageSize: 20}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, apperr.Invalid("page must be a positive integer", "page")
		}
		p.Page = n
	}
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, apperr.Invalid("page_size must be a positive integer", "page_size")
		}
		p.PageSize = n
	}
	return p, nil
}

// getOrderHandler handles GET /orders/:id.
func getOrderHandler(svc *order.Service, auth *realtime.Authenticator, dir directory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		m, err := callerMembership(c.Request.Context(), auth, dir, c, c.Query("organization_id"), "")
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		o, err := svc.Get(c.Request.Context(), m, c.Param("id"))
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// updateOrderHandler handles PATCH /orders/:id.
func updateOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch order.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		o, err := svc.Update(c.Request.Context(), c.Param("id"), patch)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

type statusRequest struct {
	Status order.Status `json:"status"`
}

// updateStatusHandler handles PATCH /orders/:id/status.
func updateStatusHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

type addItemsRequest struct {
	Items []order.CreateItem `json:"items"`
}

// addItemsHandler handles POST /orders/:id/items.
func addItemsHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addItemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		o, err := svc.AddItems(c.Request.Context(), c.Param("id"), req.Items)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// updateItemHandler handles PATCH /orders/:id/items/:itemId.
func updateItemHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch order.ItemPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		it, err := svc.UpdateItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), patch)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, it)
	}
}

type removeItemsRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// removeItemsHandler handles DELETE /orders/:id/items.
func removeItemsHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req removeItemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		o, err := svc.RemoveItems(c.Request.Context(), c.Param("id"), req.ItemIDs)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

type modifiersRequest struct {
	ModifierIDs []string `json:"modifier_ids"`
}

// addModifiersHandler handles POST /orders/:id/items/:itemId/modifiers.
func addModifiersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modifiersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		it, err := svc.AddModifiers(c.Request.Context(), c.Param("id"), c.Param("itemId"), req.ModifierIDs)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, it)
	}
}

// removeModifiersHandler handles DELETE /orders/:id/items/:itemId/modifiers.
func removeModifiersHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modifiersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Fail(c, apperr.Invalid("invalid request body", "body"))
			return
		}
		it, err := svc.RemoveModifiers(c.Request.Context(), c.Param("id"), c.Param("itemId"), req.ModifierIDs)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		c.JSON(http.StatusOK, it)
	}
}

// deleteOrderHandler handles DELETE /orders/:id.
func deleteOrderHandler(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			httpx.Fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func newRouter(svc *order.Service, hub *realtime.Hub, auth *realtime.Authenticator, dir directory.Repository) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.POST("/orders", createOrderHandler(svc))
	r.GET("/orders", listOrdersHandler(svc, auth, dir))
	r.GET("/orders/:id", getOrderHandler(svc, auth, dir))
	r.PATCH("/orders/:id", updateOrderHandler(svc))
	r.DELETE("/orders/:id", deleteOrderHandler(svc))
	r.PATCH("/orders/:id/status", updateStatusHandler(svc))
	r.POST("/orders/:id/items", addItemsHandler(svc))
	r.DELETE("/orders/:id/items", removeItemsHandler(svc))
	r.PATCH("/orders/:id/items/:itemId", updateItemHandler(svc))
	r.POST("/orders/:id/items/:itemId/modifiers", addModifiersHandler(svc))
	r.DELETE("/orders/:id/items/:itemId/modifiers", removeModifiersHandler(svc))

	r.GET("/ws", realtime.WSHandler(hub, auth))
	return r
}
