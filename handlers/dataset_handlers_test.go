package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shoplens/api/metrics"
	"shoplens/api/models"
	"shoplens/api/store"
)

const fixtureCSV = `event_time,product_id,category_code,brand,price,user_id,view,purchase
2024-01-05 00:00:00 UTC,P1,a.b,X,10,U1,1,0
2024-01-05 00:00:00 UTC,P1,a.b,X,10,U1,0,1
2024-02-10 00:00:00 UTC,P2,a.c,Y,5,U2,5,0
`

// metrics registration is global, so tests share one instance.
var testMetrics = metrics.NewMetrics("shoplens_test")

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewDatasetHandlers(store.NewDatasetStore(), zap.NewNop(), testMetrics, 1<<20)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/datasets", h.Upload)
	api.GET("/datasets", h.List)
	api.DELETE("/datasets/:id", h.Delete)
	dataset := api.Group("/datasets/:id")
	dataset.GET("/summary", h.Summary)
	dataset.GET("/monthly-totals", h.MonthlyTotals)
	dataset.GET("/top-categories", h.TopCategories)
	dataset.GET("/at-risk", h.AtRiskProducts)
	dataset.GET("/daily-purchases", h.DailyPurchases)
	dataset.GET("/users/:userID/daily-purchases", h.UserDailyPurchases)
	dataset.GET("/categories", h.MainCategories)
	dataset.GET("/crosstab", h.CrossTab)
	return r
}

func zipUpload(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	w, err := zw.Create("events.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "events.zip")
	require.NoError(t, err)
	_, err = fw.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func uploadFixture(t *testing.T, r *gin.Engine) string {
	t.Helper()
	body, contentType := zipUpload(t, fixtureCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Dataset store.DatasetInfo   `json:"dataset"`
		Summary models.SummaryStats `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Dataset.ID)
	return resp.Dataset.ID
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndSummary(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	rec := get(r, "/api/datasets/"+id+"/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.SummaryStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, int64(6), stats.TotalViews)
	assert.Equal(t, int64(1), stats.TotalPurchases)
	assert.Equal(t, 2, stats.TotalBrands)
	assert.Equal(t, 1, stats.TotalCategories)
	assert.Equal(t, 2, stats.TotalSubcategories)
}

func TestUpload_BadArchive(t *testing.T) {
	r := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "events.zip")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a zip"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_BadData(t *testing.T) {
	r := newTestRouter(t)

	body, contentType := zipUpload(t, "event_time,product_id\n2024-01-05,P1\n")
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpload_MissingFileField(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownDataset(t *testing.T) {
	r := newTestRouter(t)
	rec := get(r, "/api/datasets/no-such-id/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonthlyTotalsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	rec := get(r, "/api/datasets/"+id+"/monthly-totals")
	require.Equal(t, http.StatusOK, rec.Code)

	var totals []models.MonthlyTotal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	require.Len(t, totals, 2)
	assert.Equal(t, models.MonthlyTotal{YearMonth: "2024-01", Views: 1, Purchases: 1}, totals[0])
	assert.Equal(t, models.MonthlyTotal{YearMonth: "2024-02", Views: 5, Purchases: 0}, totals[1])
}

func TestTopCategoriesEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	t.Run("views", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/top-categories?metric=view&limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var totals []models.CategoryTotal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
		require.Len(t, totals, 1)
		assert.Equal(t, models.CategoryTotal{CategoryCode: "a.c", Total: 5}, totals[0])
	})

	t.Run("unknown metric", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/top-categories?metric=revenue")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/top-categories?limit=0")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAtRiskEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	// P2 has ratio 5, P1 has 0.5; nothing clears the default threshold.
	rec := get(r, "/api/datasets/"+id+"/at-risk")
	require.Equal(t, http.StatusOK, rec.Code)
	var risks []models.ProductRisk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risks))
	assert.Empty(t, risks)

	rec = get(r, "/api/datasets/"+id+"/at-risk?threshold=4")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risks))
	require.Len(t, risks, 1)
	assert.Equal(t, "P2", risks[0].ProductID)
	assert.Equal(t, float64(5), risks[0].Ratio)
}

func TestUserDailyPurchasesEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	rec := get(r, "/api/datasets/"+id+"/users/U1/daily-purchases")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID string              `json:"userId"`
		Series []models.DailyTotal `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "U1", resp.UserID)
	require.Len(t, resp.Series, 1)
	assert.Equal(t, models.DailyTotal{Date: "2024-01-05", Purchases: 1}, resp.Series[0])
}

func TestCrossTabEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	t.Run("defaults to dataset bounds", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/crosstab?metric=view")
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []models.CrossTabRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "a.c", rows[0].CategoryCode)
		assert.Equal(t, int64(5), rows[0].Total)
	})

	t.Run("category filter", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/crosstab?metric=purchase&categories=a")
		require.Equal(t, http.StatusOK, rec.Code)

		var rows []models.CrossTabRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "a.b", rows[0].CategoryCode)
		assert.Equal(t, int64(1), rows[0].Total)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/crosstab?start=2024-03-01&end=2024-01-01")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date rejected", func(t *testing.T) {
		rec := get(r, "/api/datasets/"+id+"/crosstab?start=March-1st")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCategoriesEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	rec := get(r, "/api/datasets/"+id+"/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var cats []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Equal(t, []string{"a"}, cats)
}

func TestDeleteEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadFixture(t, r)

	req := httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = get(r, "/api/datasets/"+id+"/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEndpoint(t *testing.T) {
	r := newTestRouter(t)
	rec := get(r, "/api/datasets")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []store.DatasetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Empty(t, infos)

	uploadFixture(t, r)
	rec = get(r, "/api/datasets")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Len(t, infos, 1)
}
