package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"

	"github.com/taskpilot/tracker/internal/api/http/handlers"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/config"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/mailer"
	"github.com/taskpilot/tracker/internal/observability"
	"github.com/taskpilot/tracker/internal/persistence"
	"github.com/taskpilot/tracker/internal/repository/sqlitestore"
	"github.com/taskpilot/tracker/internal/service"
	"github.com/taskpilot/tracker/internal/storage"
)

type testServer struct {
	app  *fiber.App
	mail *mailer.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db, err := persistence.OpenSQLite(config.SQLiteConfig{
		DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := sqlitestore.Migrate(db); err != nil {
		t.Fatal(err)
	}
	store := sqlitestore.New(db)

	uploadDir := t.TempDir()
	blobs, err := storage.NewLocalStore(uploadDir, "/uploads", 1024)
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.NewTokenManager("test-secret", 60)
	dispatcher := events.NewInMemoryDispatcher(logger)
	recorder := &mailer.Recorder{}

	authService := service.NewAuthService(service.AuthDependencies{UserRepo: store.Users, Tokens: tokens, BcryptCost: 4, Logger: logger})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:       store.Tickets,
		UserRepo:         store.Users,
		NotificationRepo: store.Notifications,
		Blobs:            blobs,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	commentService := service.NewCommentService(service.CommentDependencies{
		CommentRepo: store.Comments,
		TicketRepo:  store.Tickets,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: store.Notifications,
		UserRepo:         store.Users,
		Mailer:           recorder,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Settings:         service.NotificationSettings{EmailEnabled: true},
	})
	notificationService.RegisterHandlers()

	userService := service.NewUserService(service.UserDependencies{
		UserRepo:   store.Users,
		TicketRepo: store.Tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	app := NewApp("tracker-test", blobs.MaxBytes(), logger, metrics, MiddlewareConfig{AllowedOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("tracker", "test", metrics, handlers.Check{Name: "store", Ping: store.Ping}),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Comments:       handlers.NewCommentsHandler(commentService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Users:          handlers.NewUsersHandler(userService),
		Dashboard:      handlers.NewDashboardHandler(service.NewDashboardService(store.Tickets, store.Users)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users, logger),
		UploadDir:      uploadDir,
	})
	return &testServer{app: app, mail: recorder}
}

type response struct {
	status int
	body   map[string]any
	raw    []byte
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *nethttp.Request, token string) response {
	t.Helper()
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := response{status: resp.StatusCode, raw: raw}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func (s *testServer) register(t *testing.T, name string) (token, id string) {
	t.Helper()
	resp := s.do(t, "POST", "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "password123",
	})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("register %s: %d %s", name, resp.status, resp.raw)
	}
	user := resp.body["user"].(map[string]any)
	return resp.body["token"].(string), user["id"].(string)
}

func (s *testServer) createTicket(t *testing.T, token, title string) string {
	t.Helper()
	resp := s.do(t, "POST", "/api/tickets", token, map[string]string{"title": title, "description": "details"})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("create ticket: %d %s", resp.status, resp.raw)
	}
	return data(resp)["id"].(string)
}

func data(r response) map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func list(r response) []any {
	d, _ := r.body["data"].([]any)
	return d
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, "POST", "/api/auth/register", "", map[string]string{"name": "Ann", "email": "ann@example.com", "password": "password123"})
	if resp.status != fiber.StatusCreated || resp.body["success"] != true {
		t.Fatalf("register: %d %s", resp.status, resp.raw)
	}
	if role := resp.body["user"].(map[string]any)["role"]; role != "admin" {
		t.Fatalf("first user role = %v", role)
	}
	if strings.Contains(string(resp.raw), "password") {
		t.Fatal("response leaks password data")
	}

	dup := s.do(t, "POST", "/api/auth/register", "", map[string]string{"name": "Ann", "email": "ann@example.com", "password": "password123"})
	if dup.status != fiber.StatusBadRequest || dup.body["success"] != false || dup.body["error"] == "" {
		t.Fatalf("duplicate: %d %s", dup.status, dup.raw)
	}

	login := s.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "password123"})
	if login.status != fiber.StatusOK || login.body["token"] == "" {
		t.Fatalf("login: %d %s", login.status, login.raw)
	}
	bad := s.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "nope-nope"})
	if bad.status != fiber.StatusUnauthorized {
		t.Fatalf("bad login: %d", bad.status)
	}

	me := s.do(t, "GET", "/api/auth/me", login.body["token"].(string), nil)
	if me.status != fiber.StatusOK || data(me)["email"] != "ann@example.com" {
		t.Fatalf("me: %d %s", me.status, me.raw)
	}
}

func TestAuthenticationFailures(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"missing":   "",
		"garbage":   "not-a-token",
		"malformed": "a.b.c",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			resp := s.do(t, "GET", "/api/tickets", token, nil)
			if resp.status != fiber.StatusUnauthorized || resp.body["code"] != "UNAUTHORIZED" || resp.body["success"] != false {
				t.Fatalf("got %d %s", resp.status, resp.raw)
			}
		})
	}

	// A token for a deleted account stops working.
	adminToken, _ := s.register(t, "Admin")
	userToken, userID := s.register(t, "User")
	if resp := s.do(t, "DELETE", "/api/users/"+userID, adminToken, nil); resp.status != fiber.StatusOK {
		t.Fatalf("delete user: %d %s", resp.status, resp.raw)
	}
	if resp := s.do(t, "GET", "/api/tickets", userToken, nil); resp.status != fiber.StatusUnauthorized {
		t.Fatalf("deleted user token: %d", resp.status)
	}
}

func TestTicketLifecycle(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.register(t, "Admin")
	userToken, userID := s.register(t, "User")
	otherToken, _ := s.register(t, "Other")

	adminTicket := s.createTicket(t, adminToken, "Bug X")
	if resp := s.do(t, "GET", "/api/tickets/"+adminTicket, userToken, nil); resp.status != fiber.StatusForbidden {
		t.Fatalf("foreign ticket: %d", resp.status)
	}

	id := s.createTicket(t, userToken, "Broken login")
	resp := s.do(t, "PUT", "/api/tickets/"+id, userToken, map[string]any{"status": "Resolved", "version": 1})
	if resp.status != fiber.StatusOK {
		t.Fatalf("update: %d %s", resp.status, resp.raw)
	}
	ticket := data(resp)
	if ticket["status"] != "Resolved" {
		t.Fatalf("status = %v", ticket["status"])
	}
	history := ticket["history"].([]any)
	last := history[len(history)-1].(map[string]any)
	if len(history) != 2 || last["action"] != "Status Change" || last["oldValue"] != "Open" || last["newValue"] != "Resolved" {
		t.Fatalf("history %v", history)
	}

	stale := s.do(t, "PUT", "/api/tickets/"+id, userToken, map[string]any{"title": "again", "version": 1})
	if stale.status != fiber.StatusConflict {
		t.Fatalf("stale update: %d %s", stale.status, stale.raw)
	}
	if resp := s.do(t, "PUT", "/api/tickets/"+id, userToken, map[string]any{"dueDate": "2024-12-31"}); data(resp)["dueDate"] != "2024-12-31" {
		t.Fatalf("due date: %s", resp.raw)
	}
	if resp := s.do(t, "PUT", "/api/tickets/"+id, userToken, map[string]any{"dueDate": nil}); data(resp)["dueDate"] != nil {
		t.Fatalf("clear due date: %s", resp.raw)
	}

	if resp := s.do(t, "PUT", "/api/tickets/"+id+"/assign", userToken, map[string]string{"userId": userID}); resp.status != fiber.StatusForbidden {
		t.Fatalf("non-admin assign: %d", resp.status)
	}
	resp = s.do(t, "PUT", "/api/tickets/"+adminTicket+"/assign", adminToken, map[string]string{"userId": userID})
	if resp.status != fiber.StatusOK || data(resp)["assignee"].(map[string]any)["id"] != userID {
		t.Fatalf("assign: %d %s", resp.status, resp.raw)
	}
	inbox := s.do(t, "GET", "/api/notifications", userToken, nil)
	items := list(inbox)
	if len(items) != 1 || items[0].(map[string]any)["link"] != "/tickets/"+adminTicket || inbox.body["count"] != float64(1) {
		t.Fatalf("inbox: %s", inbox.raw)
	}

	listed := s.do(t, "GET", "/api/tickets?status=Open", userToken, nil)
	if len(list(listed)) != 1 || list(listed)[0].(map[string]any)["id"] != adminTicket {
		t.Fatalf("filtered list: %s", listed.raw)
	}
	if resp := s.do(t, "GET", "/api/tickets", otherToken, nil); len(list(resp)) != 0 {
		t.Fatalf("outsider sees tickets: %s", resp.raw)
	}
	if resp := s.do(t, "GET", "/api/tickets?q=broken", adminToken, nil); len(list(resp)) != 1 {
		t.Fatalf("search: %s", resp.raw)
	}

	if resp := s.do(t, "DELETE", "/api/tickets/"+id, userToken, nil); resp.status != fiber.StatusForbidden {
		t.Fatalf("non-admin delete: %d", resp.status)
	}
	if resp := s.do(t, "DELETE", "/api/tickets/"+id, adminToken, nil); resp.status != fiber.StatusOK {
		t.Fatalf("delete: %d %s", resp.status, resp.raw)
	}
	if resp := s.do(t, "GET", "/api/tickets/"+id, adminToken, nil); resp.status != fiber.StatusNotFound {
		t.Fatalf("deleted ticket: %d", resp.status)
	}
}

func TestCommentsAndMentions(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.register(t, "Admin")
	bobToken, _ := s.register(t, "Bob")
	id := s.createTicket(t, adminToken, "Review")

	if resp := s.do(t, "POST", "/api/tickets/"+id+"/comments", adminToken, map[string]string{"text": ""}); resp.status != fiber.StatusBadRequest {
		t.Fatalf("empty comment: %d", resp.status)
	}
	resp := s.do(t, "POST", "/api/tickets/"+id+"/comments", adminToken, map[string]string{"text": "@bob@example.com please look"})
	if resp.status != fiber.StatusCreated || data(resp)["user"].(map[string]any)["name"] != "Admin" {
		t.Fatalf("comment: %d %s", resp.status, resp.raw)
	}
	if got := len(list(s.do(t, "GET", "/api/notifications", bobToken, nil))); got != 1 {
		t.Fatalf("bob notifications = %d", got)
	}
	if got := len(s.mail.SentTo("bob@example.com")); got != 1 {
		t.Fatalf("bob emails = %d", got)
	}

	thread := s.do(t, "GET", "/api/tickets/"+id+"/comments", adminToken, nil)
	if thread.body["count"] != float64(1) {
		t.Fatalf("thread: %s", thread.raw)
	}
	if resp := s.do(t, "GET", "/api/tickets/"+id+"/comments", bobToken, nil); resp.status != fiber.StatusForbidden {
		t.Fatalf("outsider thread: %d", resp.status)
	}
}

func TestNotificationsReadState(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.register(t, "Admin")
	userToken, _ := s.register(t, "User")
	s.createTicket(t, userToken, "one")
	s.createTicket(t, userToken, "two")

	items := list(s.do(t, "GET", "/api/notifications", adminToken, nil))
	if len(items) != 2 {
		t.Fatalf("admin inbox = %d", len(items))
	}
	first := items[0].(map[string]any)["id"].(string)
	if resp := s.do(t, "PUT", "/api/notifications/"+first+"/read", userToken, nil); resp.status != fiber.StatusNotFound {
		t.Fatalf("foreign notification: %d", resp.status)
	}
	resp := s.do(t, "PUT", "/api/notifications/"+first+"/read", adminToken, nil)
	if resp.status != fiber.StatusOK || data(resp)["read"] != true {
		t.Fatalf("mark read: %d %s", resp.status, resp.raw)
	}
	if resp := s.do(t, "POST", "/api/notifications/read-all", adminToken, nil); resp.status != fiber.StatusOK {
		t.Fatalf("read all: %d", resp.status)
	}
	for _, item := range list(s.do(t, "GET", "/api/notifications", adminToken, nil)) {
		if item.(map[string]any)["read"] != true {
			t.Fatalf("unread notification left: %v", item)
		}
	}
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.register(t, "Admin")
	id := s.createTicket(t, adminToken, "Files")

	empty := httptest.NewRequest("POST", "/api/tickets/"+id+"/upload", nil)
	if resp := s.send(t, empty, adminToken); resp.status != fiber.StatusBadRequest {
		t.Fatalf("no file: %d %s", resp.status, resp.raw)
	}

	if resp := s.send(t, multipartRequest(t, id, "big.bin", bytes.Repeat([]byte("x"), 2048)), adminToken); resp.status != fiber.StatusBadRequest {
		t.Fatalf("too large: %d %s", resp.status, resp.raw)
	}

	resp := s.send(t, multipartRequest(t, id, "notes.txt", []byte("hello")), adminToken)
	if resp.status != fiber.StatusCreated {
		t.Fatalf("upload: %d %s", resp.status, resp.raw)
	}
	attachment := data(resp)
	if attachment["originalName"] != "notes.txt" || attachment["size"] != float64(5) {
		t.Fatalf("attachment %v", attachment)
	}

	served := s.send(t, httptest.NewRequest("GET", attachment["path"].(string), nil), "")
	if served.status != fiber.StatusOK || string(served.raw) != "hello" {
		t.Fatalf("static file: %d %q", served.status, served.raw)
	}

	listed := list(s.do(t, "GET", "/api/tickets", adminToken, nil))
	if len(listed) != 1 {
		t.Fatalf("listed %d tickets", len(listed))
	}
	item := listed[0].(map[string]any)
	if files, _ := item["attachments"].([]any); len(files) != 1 {
		t.Fatalf("listed attachments: %v", item["attachments"])
	}
	if history, _ := item["history"].([]any); len(history) != 1 {
		t.Fatalf("listed history: %v", item["history"])
	}
}

func TestOversizedBodyRendersUploadError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, false, 5<<20)})
	app.Post("/fasthttp", func(c *fiber.Ctx) error { return fasthttp.ErrBodyTooLarge })
	app.Post("/fiber", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	s := &testServer{app: app}

	for _, path := range []string{"/fasthttp", "/fiber"} {
		t.Run(path, func(t *testing.T) {
			resp := s.send(t, httptest.NewRequest("POST", path, nil), "")
			if resp.status != fiber.StatusBadRequest || resp.body["error"] != "file too large (max 5MB)" || resp.body["success"] != false {
				t.Fatalf("got %d %s", resp.status, resp.raw)
			}
		})
	}
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	adminToken, adminID := s.register(t, "Admin")
	userToken, userID := s.register(t, "User")
	s.createTicket(t, userToken, "stat me")

	if resp := s.do(t, "GET", "/api/users", userToken, nil); resp.status != fiber.StatusForbidden || resp.body["error"] != "admin role required" {
		t.Fatalf("non-admin users: %d %s", resp.status, resp.raw)
	}
	if resp := s.do(t, "GET", "/api/users", adminToken, nil); resp.body["count"] != float64(2) {
		t.Fatalf("users: %s", resp.raw)
	}
	if resp := s.do(t, "PUT", "/api/users/"+userID+"/role", adminToken, map[string]string{"role": "root"}); resp.status != fiber.StatusBadRequest {
		t.Fatalf("bad role: %d", resp.status)
	}
	if resp := s.do(t, "DELETE", "/api/users/"+adminID, adminToken, nil); resp.status != fiber.StatusBadRequest {
		t.Fatalf("self delete: %d", resp.status)
	}
	if resp := s.do(t, "DELETE", "/api/users/"+userID, adminToken, nil); resp.status != fiber.StatusConflict {
		t.Fatalf("owner delete: %d %s", resp.status, resp.raw)
	}

	stats := s.do(t, "GET", "/api/dashboard/stats", adminToken, nil)
	d := data(stats)
	if stats.status != fiber.StatusOK || d["totalTickets"] != float64(1) || d["totalUsers"] != float64(2) {
		t.Fatalf("stats: %d %s", stats.status, stats.raw)
	}
	if byStatus := d["ticketsByStatus"].([]any); len(byStatus) != 3 {
		t.Fatalf("ticketsByStatus %v", byStatus)
	}
	if resp := s.do(t, "PUT", "/api/users/"+userID+"/role", adminToken, map[string]string{"role": "admin"}); data(resp)["role"] != "admin" {
		t.Fatalf("promote: %s", resp.raw)
	}
	// Role changes apply to existing tokens immediately.
	if resp := s.do(t, "GET", "/api/dashboard/stats", userToken, nil); resp.status != fiber.StatusOK {
		t.Fatalf("promoted user stats: %d", resp.status)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)
	if resp := s.do(t, "GET", "/health/live", "", nil); resp.status != fiber.StatusOK || resp.body["status"] != "alive" {
		t.Fatalf("live: %d %s", resp.status, resp.raw)
	}
	if resp := s.do(t, "GET", "/health/ready", "", nil); resp.status != fiber.StatusOK {
		t.Fatalf("ready: %d %s", resp.status, resp.raw)
	}
	missing := s.do(t, "GET", "/nope", "", nil)
	if missing.status != fiber.StatusNotFound || missing.body["success"] != false {
		t.Fatalf("unknown route: %d %s", missing.status, missing.raw)
	}
	metrics := s.do(t, "GET", "/health/metrics", "", nil)
	if metrics.body["totalRequests"].(float64) < 2 {
		t.Fatalf("metrics: %s", metrics.raw)
	}
}

func multipartRequest(t *testing.T, ticketID, name string, content []byte) *nethttp.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(handlers.AttachmentField, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/tickets/"+ticketID+"/upload", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}
