package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/tably/orderd/internal/catalog"
	"github.com/tably/orderd/internal/directory"
	ord "github.com/tably/orderd/internal/order"
	"github.com/tably/orderd/internal/realtime"
)

//
// ---------- STUBS & FAKES ----------
//

// stubRepo implements ord.Repository in memory.
type stubRepo struct {
	mu       sync.Mutex
	orders   map[string]*ord.Order
	lastPred *ord.Predicate
}

func newStubRepo() *stubRepo { return &stubRepo{orders: map[string]*ord.Order{}} }

func (s *stubRepo) Create(_ context.Context, o *ord.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.Items = append([]ord.Item(nil), o.Items...)
	s.orders[o.ID] = &cp
	return nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*ord.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ord.ErrNotFound
	}
	cp := *o
	cp.Items = append([]ord.Item(nil), o.Items...)
	return &cp, nil
}

func (s *stubRepo) List(_ context.Context, p ord.Predicate, _ ord.Page) (*ord.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPred = &p
	return &ord.ListResult{Orders: []ord.Order{}, Page: 1, PageSize: 20}, nil
}

func (s *stubRepo) AddItems(_ context.Context, orderID string, items []ord.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ord.ErrNotFound
	}
	for _, it := range items {
		o.Items = append(o.Items, it)
		o.TotalAmount = o.TotalAmount.Add(it.TotalPrice)
	}
	return nil
}

func (s *stubRepo) UpdateItemQuantity(_ context.Context, orderID, itemID string, quantity int, _ *string) (*ord.Item, error) {
	return nil, ord.ErrItemNotFound
}

func (s *stubRepo) UpdateItemStatus(_ context.Context, orderID, itemID string, _ ord.ItemStatus) (*ord.Item, error) {
	return nil, ord.ErrItemNotFound
}

func (s *stubRepo) RemoveItems(_ context.Context, orderID string, _ []string) error {
	return ord.ErrItemNotFound
}

func (s *stubRepo) AddModifiers(_ context.Context, orderID, itemID string, _ []ord.ItemModifier) error {
	return ord.ErrItemNotFound
}

func (s *stubRepo) RemoveModifiers(_ context.Context, orderID, itemID string, _ []string) error {
	return ord.ErrItemNotFound
}

func (s *stubRepo) Update(_ context.Context, orderID string, _ ord.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return ord.ErrNotFound
	}
	return nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, orderID string, status ord.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ord.ErrNotFound
	}
	o.Status = status
	return nil
}

func (s *stubRepo) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return ord.ErrNotFound
	}
	delete(s.orders, orderID)
	return nil
}

// stubDirectory serves fixed venues/tables/memberships/sessions.
type stubDirectory struct {
	venues      map[string]directory.Venue
	tables      map[string]directory.Table
	memberships map[string]directory.Membership // key orgID/userID
	sessions    map[string]directory.Session
}

func (d *stubDirectory) GetVenue(_ context.Context, id string) (*directory.Venue, error) {
	if v, ok := d.venues[id]; ok {
		return &v, nil
	}
	return nil, directory.ErrNotFound
}

func (d *stubDirectory) GetTable(_ context.Context, id string) (*directory.Table, error) {
	if t, ok := d.tables[id]; ok {
		return &t, nil
	}
	return nil, directory.ErrNotFound
}

func (d *stubDirectory) GetMembership(_ context.Context, orgID, userID string) (*directory.Membership, error) {
	if m, ok := d.memberships[orgID+"/"+userID]; ok {
		return &m, nil
	}
	return nil, directory.ErrNotFound
}

func (d *stubDirectory) GetSession(_ context.Context, id string) (*directory.Session, error) {
	if s, ok := d.sessions[id]; ok {
		return &s, nil
	}
	return nil, directory.ErrNotFound
}

func (d *stubDirectory) MembershipsForUser(_ context.Context, userID string) ([]directory.Membership, error) {
	var out []directory.Membership
	for _, m := range d.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// newCatalogServer serves GET /menu-items/:id and /modifiers/:id from fixed maps.
func newCatalogServer(t *testing.T, items, modifiers map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serve := func(prices map[string]string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			price, ok := prices[id]
			if !ok {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "price": price})
		}
	}
	mux.HandleFunc("/menu-items/", serve(items))
	mux.HandleFunc("/modifiers/", serve(modifiers))
	return httptest.NewServer(mux)
}

const testSecret = "handlers-test-secret"

func signToken(t *testing.T, userID, sessionID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id":    userID,
		"session_id": sessionID,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type env struct {
	router  *gin.Engine
	repo    *stubRepo
	dir     *stubDirectory
	hub     *realtime.Hub
	catalog *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	csrv := newCatalogServer(t,
		map[string]string{"A": "5.00", "B": "3.50"},
		map[string]string{"extra": "1.00"},
	)
	t.Cleanup(csrv.Close)

	dir := &stubDirectory{
		venues: map[string]directory.Venue{
			"v1": {ID: "v1", OrganizationID: "org-1", Name: "Downtown"},
			"v2": {ID: "v2", OrganizationID: "org-1", Name: "Harbor"},
		},
		tables: map[string]directory.Table{
			"t1": {ID: "t1", VenueID: "v1", Name: "12"},
		},
		memberships: map[string]directory.Membership{
			"org-1/staff-1": {
				OrganizationID: "org-1", UserID: "staff-1",
				Role: directory.RoleStaff, AssignedVenueIDs: []string{"v1"},
			},
			"org-1/mgr-1": {
				OrganizationID: "org-1", UserID: "mgr-1", Role: directory.RoleManager,
			},
		},
		sessions: map[string]directory.Session{
			"sess-staff": {ID: "sess-staff", UserID: "staff-1", ExpiresAt: time.Now().Add(time.Hour)},
			"sess-mgr":   {ID: "sess-mgr", UserID: "mgr-1", ExpiresAt: time.Now().Add(time.Hour)},
		},
	}

	repo := newStubRepo()
	hub := realtime.NewHub()
	dispatcher := realtime.NewDispatcher(hub, 64)
	t.Cleanup(dispatcher.Stop)
	auth := &realtime.Authenticator{Secret: testSecret, Sessions: dir}
	pricer := ord.NewPricer(catalog.NewHTTPClient(strings.TrimRight(csrv.URL, "/")))
	svc := ord.NewService(repo, pricer, dir, dispatcher)

	gin.SetMode(gin.TestMode)
	return &env{
		router:  newRouter(svc, hub, auth, dir),
		repo:    repo,
		dir:     dir,
		hub:     hub,
		catalog: csrv,
	}
}

func doJSON(e *env, method, path, token string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("{}")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

//
// ---------- TESTS ----------
//

func TestCreateOrder_HappyPath(t *testing.T) {
	e := newEnv(t)

	body := `{"table_id":"t1","items":[{"menu_item_id":"A","quantity":2},{"menu_item_id":"B","quantity":1}]}`
	w := doJSON(e, http.MethodPost, "/orders", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	var got ord.Order
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("13.50")) {
		t.Fatalf("total=%s, expected 13.50", got.TotalAmount)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items=%d, expected 2", len(got.Items))
	}
	if _, err := e.repo.GetByID(context.Background(), got.ID); err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e, http.MethodPost, "/orders", "", `{"table_id":"t1","items":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_NoTableNoRoom(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e, http.MethodPost, "/orders", "",
		`{"venue_id":"v1","items":[{"menu_item_id":"A","quantity":1}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateOrder_UnknownMenuItem(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e, http.MethodPost, "/orders", "",
		`{"table_id":"t1","items":[{"menu_item_id":"ghost","quantity":1}]}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListOrders_RequiresAuthentication(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e, http.MethodGet, "/orders", "", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListOrders_StaffPredicateRestricted(t *testing.T) {
	e := newEnv(t)

	token := signToken(t, "staff-1", "sess-staff")
	w := doJSON(e, http.MethodGet, "/orders?organization_id=org-1", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	pred := e.repo.lastPred
	if pred == nil {
		t.Fatal("no predicate reached the repository")
	}
	if len(pred.VenueIDs) != 1 || pred.VenueIDs[0] != "v1" {
		t.Fatalf("predicate venues=%v, expected [v1]", pred.VenueIDs)
	}
}

func TestListOrders_StaffCannotRequestForeignVenue(t *testing.T) {
	e := newEnv(t)

	token := signToken(t, "staff-1", "sess-staff")
	w := doJSON(e, http.MethodGet, "/orders?organization_id=org-1&venue_id=v2", token, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListOrders_ManagerOrgWide(t *testing.T) {
	e := newEnv(t)

	token := signToken(t, "mgr-1", "sess-mgr")
	w := doJSON(e, http.MethodGet, "/orders?organization_id=org-1", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if e.repo.lastPred.VenueIDs != nil {
		t.Fatalf("manager predicate should span the organization, got %v", e.repo.lastPred.VenueIDs)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e, http.MethodPatch, "/orders/"+uuid.NewString()+"/status", "", `{"status":"preparing"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestWebsocket_PublicForbiddenOnOrganizationTopic(t *testing.T) {
	e := newEnv(t)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]string{"action": "subscribe", "topic": "organization:org-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ev realtime.Event
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != realtime.EventError {
		t.Fatalf("event type=%s, expected error", ev.Type)
	}

	// the connection stays open: an order-level subscription still works
	if err := ws.WriteJSON(map[string]string{"action": "subscribe", "topic": "order:o1"}); err != nil {
		t.Fatalf("write after rejection: %v", err)
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read after rejection: %v", err)
	}
	if ev.Type != realtime.EventSubscribed {
		t.Fatalf("event type=%s, expected subscribed", ev.Type)
	}
}

func TestWebsocket_AuthenticatedVenueSubscriptionReceivesCreateEvent(t *testing.T) {
	e := newEnv(t)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	token := signToken(t, "mgr-1", "sess-mgr")
	url := fmt.Sprintf("ws%s/ws?token=%s", strings.TrimPrefix(srv.URL, "http"), token)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]string{"action": "subscribe", "topic": "venue:v1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ev realtime.Event
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != realtime.EventSubscribed {
		t.Fatalf("event type=%s, expected subscribed", ev.Type)
	}

	w := doJSON(e, http.MethodPost, "/orders", "",
		`{"table_id":"t1","items":[{"menu_item_id":"A","quantity":1}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != realtime.EventOrderCreated || ev.VenueID != "v1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWebsocket_MalformedTokenRejected(t *testing.T) {
	e := newEnv(t)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail for a malformed token")
	}
	if res == nil || res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake rejection, got %+v", res)
	}
}
