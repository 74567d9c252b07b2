package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microlink-go/internal/i18n"
	"microlink-go/internal/middleware"
	"microlink-go/internal/model"
	"microlink-go/internal/repository"
	"microlink-go/internal/service"
	"microlink-go/pkg/logging"
)

var testDBSeq int64

// setupRouter 搭建与 main 一致的路由和中间件栈，存储换成内存实现
func setupRouter(t *testing.T) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logging.InitTestLogger()

	mr := miniredis.RunT(t)
	viper.Set("redis.addr", mr.Addr())
	viper.Set("redis.password", "")
	repository.InitRedis()

	dsn := fmt.Sprintf("file:handlerdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Link{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repository.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	bundle, err := i18n.InitI18n([]string{
		"../../i18n/en.toml",
		"../../i18n/zh.toml",
	}, "en")
	if err != nil {
		t.Fatalf("init i18n: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.GlobalErrorMiddleware())
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.I18nMiddleware(bundle))

	r.GET("/healthz", HealthzHandler)

	api := r.Group("/api")
	{
		api.POST("/links", CreateLinkHandler)
		api.GET("/links", ListLinksHandler)
		api.GET("/links/:short_code", GetLinkHandler)
		api.PUT("/links/status/:id", UpdateLinkStatusHandler)
		api.PUT("/links/:id", UpdateLinkHandler)
	}

	r.NoRoute(RedirectHandler)

	return r, mr
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func createLink(t *testing.T, r *gin.Engine, shortCode, targetURL string) apiResponse {
	t.Helper()
	w, resp := doJSON(t, r, http.MethodPost, "/api/links",
		fmt.Sprintf(`{"short_code":%q,"target_url":%q}`, shortCode, targetURL), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create %q: status %d body %s", shortCode, w.Code, w.Body.String())
	}
	return resp
}

func waitForClicks(t *testing.T, shortCode string, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		link, err := service.GetLinkByCode(context.Background(), shortCode)
		if err == nil && link.Clicks == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	link, err := service.GetLinkByCode(context.Background(), shortCode)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Fatalf("clicks = %d, want %d", link.Clicks, want)
}

func TestCreateLinkReturnsCreatedRecord(t *testing.T) {
	r, _ := setupRouter(t)

	resp := createLink(t, r, "vibe", "example.com")
	if !resp.Success {
		t.Error("expected success envelope")
	}

	var link model.Link
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if link.ID == 0 {
		t.Error("expected assigned id")
	}
	if link.TargetURL != "https://example.com" {
		t.Errorf("target = %q, want scheme auto-added", link.TargetURL)
	}
	if link.CreatedAt.IsZero() {
		t.Error("expected timestamps")
	}
}

func TestCreateLinkInvalidBody(t *testing.T) {
	r, _ := setupRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing fields", `{}`},
		{"empty code", `{"short_code":"","target_url":"https://example.com"}`},
		{"empty url", `{"short_code":"abc","target_url":""}`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := doJSON(t, r, http.MethodPost, "/api/links", tc.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if resp.Success {
				t.Error("expected failure envelope")
			}
		})
	}
}

func TestCreateLinkDuplicate(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "dup", "https://first.example.com")

	w, resp := doJSON(t, r, http.MethodPost, "/api/links",
		`{"short_code":"dup","target_url":"https://second.example.com"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if resp.Message != "Short code already exists" {
		t.Errorf("message = %q", resp.Message)
	}

	// 记录保持第一次的 URL
	link, err := service.GetLinkByCode(context.Background(), "dup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if link.TargetURL != "https://first.example.com" {
		t.Errorf("stored target = %q", link.TargetURL)
	}
}

func TestCreateLinkDuplicateLocalizedMessage(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "dupzh", "https://example.com")

	_, resp := doJSON(t, r, http.MethodPost, "/api/links",
		`{"short_code":"dupzh","target_url":"https://example.com"}`,
		map[string]string{"Accept-Language": "zh"})
	if resp.Message != "短碼已存在" {
		t.Errorf("message = %q, want zh translation", resp.Message)
	}
}

func TestRedirectCountsClick(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "vibe", "example.com")

	req := httptest.NewRequest(http.MethodGet, "/vibe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com" {
		t.Errorf("location = %q", loc)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("cache-control = %q, redirect must not be cacheable", cc)
	}

	// 点击异步落库
	waitForClicks(t, "vibe", 1)
}

func TestRedirectAfterEarlyVisit(t *testing.T) {
	r, _ := setupRouter(t)

	// 注册前的访问留下空值缓存
	req := httptest.NewRequest(http.MethodGet, "/vibe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("pre-register status = %d, want 404", w.Code)
	}

	createLink(t, r, "vibe", "example.com")

	req = httptest.NewRequest(http.MethodGet, "/vibe", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("post-register status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://example.com" {
		t.Errorf("location = %q", loc)
	}
	waitForClicks(t, "vibe", 1)
}

func TestRedirectStoreError(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "vibe", "example.com")

	// 模拟存储故障
	sqlDB, err := repository.DB.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	_ = sqlDB.Close()

	req := httptest.NewRequest(http.MethodGet, "/vibe", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// 存储故障是 500，不能伪装成 404
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRedirectUnknownCode(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if body := w.Body.String(); body != "not found" {
		t.Errorf("body = %q", body)
	}
}

func TestRedirectIgnoresNonGet(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/whatever", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLinkByCode(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "peek", "https://example.com")

	w, resp := doJSON(t, r, http.MethodGet, "/api/links/peek", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var link model.Link
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if link.ShortCode != "peek" || link.Clicks != 0 {
		t.Errorf("link = %+v", link)
	}

	// 只读接口不产生点击
	stored, err := service.GetLinkByCode(context.Background(), "peek")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Clicks != 0 {
		t.Errorf("clicks = %d, detail lookup must not count", stored.Clicks)
	}
}

func TestGetLinkUnknown(t *testing.T) {
	r, _ := setupRouter(t)

	w, resp := doJSON(t, r, http.MethodGet, "/api/links/unknown", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if resp.Message != "Link not found" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestListLinksOrderedByClicks(t *testing.T) {
	r, _ := setupRouter(t)

	createLink(t, r, "one", "https://a.example.com")
	createLink(t, r, "two", "https://b.example.com")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/two", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	waitForClicks(t, "two", 3)

	w, resp := doJSON(t, r, http.MethodGet, "/api/links", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var page struct {
		Total int          `json:"total"`
		List  []model.Link `json:"list"`
	}
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || len(page.List) != 2 {
		t.Fatalf("total=%d len=%d", page.Total, len(page.List))
	}
	if page.List[0].ShortCode != "two" || page.List[1].ShortCode != "one" {
		t.Errorf("order = [%s, %s], want clicks desc",
			page.List[0].ShortCode, page.List[1].ShortCode)
	}
}

func TestListLinksBadParams(t *testing.T) {
	r, _ := setupRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/links?page=0", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("page=0: status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/links?size=1000", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("size=1000: status = %d, want 400", w.Code)
	}
}

func TestUpdateLinkTarget(t *testing.T) {
	r, _ := setupRouter(t)

	resp := createLink(t, r, "edit", "https://old.example.com")
	var link model.Link
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w, _ := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/links/%d", link.ID),
		`{"target_url":"new.example.com"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}

	stored, err := service.GetLinkByCode(context.Background(), "edit")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TargetURL != "https://new.example.com" {
		t.Errorf("target = %q", stored.TargetURL)
	}
}

func TestDisableLinkStopsRedirect(t *testing.T) {
	r, _ := setupRouter(t)

	resp := createLink(t, r, "halt", "https://example.com")
	var link model.Link
	if err := json.Unmarshal(resp.Data, &link); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w, _ := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/links/status/%d", link.ID),
		`{"status":1}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/halt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("redirect after disable: status = %d, want 404", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("status=%d body=%q", w.Code, w.Body.String())
	}
}
