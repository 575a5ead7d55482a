package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arnavshah/coordination-api/pkg/auth"
	"github.com/arnavshah/coordination-api/pkg/coordination"
	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/arnavshah/coordination-api/pkg/lock"
	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/notify"
	"github.com/arnavshah/coordination-api/pkg/ratelimit"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/arnavshah/coordination-api/pkg/store"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router *gin.Engine
	h      *Handler
	key    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	authn := auth.New("jwt-secret", "master-secret")
	authn.BcryptCost = bcrypt.MinCost

	builder, err := scheduler.NewBuilder("en", nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	builder.NewID = func() string { return "neg-1" }

	hub := notify.NewHub(nil)
	svc := coordination.New(store.NewSQLStore(db), lock.NewMemoryLocker(), hub, builder, nil, 48*time.Hour)

	h := &Handler{
		DB:             db,
		Auth:           authn,
		Service:        svc,
		Hub:            hub,
		Limiter:        ratelimit.New(100),
		AdminUsername:  "admin",
		AdminPassword:  "secret",
		AllowedOrigins: []string{"*"},
	}
	return &testEnv{router: NewRouter(h), h: h, key: authn.GenerateHMACKey("team")}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authz string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", "Bearer "+authz)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func intPtr(v int) *int { return &v }

func contestedRoom() models.Room {
	monday := "2025-03-03"
	slots := []models.SlotRef{
		{Date: monday, Time: "10:00"}, {Date: monday, Time: "10:30"},
		{Date: monday, Time: "11:00"}, {Date: monday, Time: "11:30"},
	}
	return models.Room{
		OwnerID:   "owner",
		StartDate: monday,
		Settings:  models.RoomSettings{StartTime: "09:00", EndTime: "12:00", Days: []int{1}},
		Members: []models.Member{
			{ID: "owner", IsOwner: true},
			{ID: "b", RequiredSlots: intPtr(2), Priority: 3, Availability: slots},
			{ID: "c", RequiredSlots: intPtr(2), Priority: 2, Availability: slots},
		},
	}
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/", nil, ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for /, got %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for /health, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/api/usage", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/usage", nil, "team.bogus"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad signature, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/usage?api_key="+env.key, nil, ""); w.Code != http.StatusOK {
		t.Errorf("Expected query key to be accepted, got %d", w.Code)
	}
}

func TestNegotiationFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/rooms/room-1/schedule", contestedRoom(), env.key)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from schedule, got %d: %s", w.Code, w.Body.String())
	}
	var result models.PassResult
	decode(t, w, &result)
	if len(result.Negotiations) != 1 || result.Negotiations[0].ID != "neg-1" {
		t.Fatalf("Expected negotiation neg-1, got %+v", result.Negotiations)
	}

	w = env.do(t, http.MethodGet, "/api/rooms/room-1/negotiations?status=active", nil, env.key)
	var listed struct {
		Negotiations []models.Negotiation `json:"negotiations"`
	}
	decode(t, w, &listed)
	if len(listed.Negotiations) != 1 {
		t.Errorf("Expected 1 active negotiation, got %d", len(listed.Negotiations))
	}
	if w := env.do(t, http.MethodGet, "/api/rooms/room-1/negotiations?status=bogus", nil, env.key); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/negotiations/neg-1/messages", gin.H{"sender": "owner", "text": "Who can move?"}, env.key)
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201 for message, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/negotiations/neg-1/respond", gin.H{"memberId": "owner", "response": "accepted"}, env.key)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for owner response, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/negotiations/neg-1/respond", gin.H{"memberId": "b", "response": "maybe"}, env.key)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown response, got %d", w.Code)
	}

	for _, member := range []string{"b", "c"} {
		w = env.do(t, http.MethodPost, "/api/negotiations/neg-1/respond", gin.H{"memberId": member, "response": "accepted"}, env.key)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 for %s response, got %d: %s", member, w.Code, w.Body.String())
		}
	}
	var settled models.Negotiation
	decode(t, w, &settled)
	if settled.Status != models.StatusResolved {
		t.Errorf("Expected resolved, got %s", settled.Status)
	}

	w = env.do(t, http.MethodPost, "/api/negotiations/neg-1/respond", gin.H{"memberId": "b", "response": "rejected"}, env.key)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 after settlement, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/negotiations/neg-1/pdf", nil, env.key)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("Expected a PDF, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	if w := env.do(t, http.MethodGet, "/api/negotiations/missing", nil, env.key); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/usage", nil, env.key)
	var usage struct {
		Totals struct {
			Rooms        int `json:"rooms"`
			Members      int `json:"members"`
			Negotiations int `json:"negotiations"`
			Responses    int `json:"responses"`
		} `json:"totals"`
		Today struct {
			Requests int `json:"requests"`
		} `json:"today"`
		PerPass   float64 `json:"negotiations_per_pass"`
		Remaining int     `json:"remaining_today"`
	}
	decode(t, w, &usage)
	if usage.Totals.Rooms != 1 || usage.Totals.Members != 3 {
		t.Errorf("Expected 1 room and 3 members recorded, got %+v", usage.Totals)
	}
	if usage.Totals.Negotiations != 1 || usage.Totals.Responses != 2 {
		t.Errorf("Expected 1 negotiation and 2 responses recorded, got %+v", usage.Totals)
	}
	if usage.PerPass != 1 {
		t.Errorf("Expected 1 negotiation per pass, got %v", usage.PerPass)
	}
	if usage.Today.Requests != 3 || usage.Remaining != auth.DefaultRateLimit-3 {
		t.Errorf("Expected 3 recorded requests today, got %d with %d remaining", usage.Today.Requests, usage.Remaining)
	}
}

func TestScheduleRoom_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	room := contestedRoom()
	room.Members[1].RequiredSlots = nil

	w := env.do(t, http.MethodPost, "/api/rooms/room-1/schedule", room, env.key)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	if _, ok := body.Fields["members[1].requiredSlots"]; !ok {
		t.Errorf("Expected members[1].requiredSlots field error, got %v", body.Fields)
	}
}

func TestValidateRoom(t *testing.T) {
	env := newTestEnv(t)

	var ok struct {
		Valid bool `json:"valid"`
	}
	decode(t, env.do(t, http.MethodPost, "/api/validate", contestedRoom(), env.key), &ok)
	if !ok.Valid {
		t.Error("Expected room to be valid")
	}

	room := contestedRoom()
	room.Members = append(room.Members, models.Member{ID: "b", RequiredSlots: intPtr(1)})
	var bad struct {
		Valid  bool              `json:"valid"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, env.do(t, http.MethodPost, "/api/validate", room, env.key), &bad)
	if bad.Valid || len(bad.Fields) == 0 {
		t.Errorf("Expected duplicate member to be reported, got %+v", bad)
	}
}

func TestPreviewNegotiation(t *testing.T) {
	env := newTestEnv(t)
	available := models.SlotAvailability{Available: []models.AvailableMember{{MemberID: "b"}, {MemberID: "c"}}}
	in := models.NegotiationPreviewInput{
		Block: models.TimeBlock{DayOfWeek: 1, StartDate: "2025-03-03", StartTime: "10:00", EndTime: "11:00"},
		UnsatisfiedMembers: []models.UnsatisfiedMember{
			{MemberID: "b", NeededSlots: 1, OriginallyNeededSlots: 1},
			{MemberID: "c", NeededSlots: 1, OriginallyNeededSlots: 1},
		},
		Timetable: models.Timetable{"2025-03-03-10:00": available, "2025-03-03-10:30": available},
		OwnerID:   "owner",
		StartDate: "2025-03-03",
	}

	w := env.do(t, http.MethodPost, "/api/negotiations/preview", in, env.key)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var n models.Negotiation
	decode(t, w, &n)
	if n.Type != models.NegotiationTimeSlotChoice {
		t.Errorf("Expected time_slot_choice, got %s", n.Type)
	}
	if len(n.AvailableTimeSlots) != 1 || n.AvailableTimeSlots[0].EndTime != "10:30" {
		t.Errorf("Expected only 10:00-10:30, got %v", n.AvailableTimeSlots)
	}
	if _, err := env.h.Service.Get(context.Background(), n.ID); err == nil {
		t.Error("Preview must not persist the negotiation")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.h.Auth.TouchAPIKey(env.h.DB, env.key, "team"); err != nil {
		t.Fatalf("TouchAPIKey failed: %v", err)
	}
	env.h.DB.Model(&database.APIKey{}).Where("name = ?", "team").Update("rate_limit", 1)

	if w := env.do(t, http.MethodGet, "/api/usage", nil, env.key); w.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/usage", nil, env.key); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/admin", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("Expected admin page, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "secret"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected login to succeed, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &login)

	if w := env.do(t, http.MethodGet, "/admin/keys", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/admin/keys", gin.H{"name": "mobile"}, login.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected key creation, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID  uint   `json:"id"`
		Key string `json:"key"`
	}
	decode(t, w, &created)
	if userID, err := env.h.Auth.VerifyHMACKey(created.Key); err != nil || userID != "mobile" {
		t.Errorf("Expected a valid key for mobile, got %s, %v", userID, err)
	}

	w = env.do(t, http.MethodGet, "/admin/keys", nil, login.AccessToken)
	var keys struct {
		Keys []database.APIKey `json:"keys"`
	}
	decode(t, w, &keys)
	if len(keys.Keys) != 1 || keys.Keys[0].RateLimit != auth.DefaultRateLimit {
		t.Errorf("Expected one key with the default limit, got %+v", keys.Keys)
	}

	if w := env.do(t, http.MethodPut, "/admin/keys/999", gin.H{"rate_limit": 5}, login.AccessToken); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown key, got %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/api/usage", nil, created.Key); w.Code != http.StatusOK {
		t.Fatalf("Expected key to work before revoke, got %d", w.Code)
	}
	path := fmt.Sprintf("/admin/keys/%d", created.ID)
	if w := env.do(t, http.MethodDelete, path, nil, login.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("Expected revoke to succeed, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/usage", nil, created.Key); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked key to get 401, got %d: %s", w.Code, w.Body.String())
	}
	// a second attempt must not have re-registered the key
	if w := env.do(t, http.MethodGet, "/api/usage", nil, created.Key); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked key to stay refused, got %d", w.Code)
	}
	if w := env.do(t, http.MethodDelete, path, nil, login.AccessToken); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 revoking twice, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/admin/keys", nil, login.AccessToken)
	decode(t, w, &keys)
	if len(keys.Keys) != 0 {
		t.Errorf("Expected revoked key to be hidden from the list, got %+v", keys.Keys)
	}
}
