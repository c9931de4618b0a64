package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/usecase"
)

type fakeService struct {
	validateErr error
	createErr   error
	createDelay time.Duration
	budget      time.Duration

	gotHypothesis string
	gotURL        string
	gotAmount     int
	gotItems      []usecase.UploadItem
}

func (f *fakeService) Validate(_ context.Context, hypothesis, articleURL string) (domain.ValidationResult, error) {
	f.gotHypothesis, f.gotURL = hypothesis, articleURL
	if f.validateErr != nil {
		return domain.ValidationResult{}, f.validateErr
	}
	return domain.ValidationResult{Verdict: domain.Verdict{Relevancy: 80, KeyTake: "supports", Validity: 70}}, nil
}

func (f *fakeService) ValidateArticle(_ context.Context, hypothesis, articleID string) (domain.ValidationResult, error) {
	if articleID == "missing" {
		return domain.ValidationResult{}, fmt.Errorf("article %s: %w", articleID, domain.ErrNotFound)
	}
	return domain.ValidationResult{Verdict: domain.Verdict{Relevancy: 10, KeyTake: "unrelated", Validity: 5}}, nil
}

func (f *fakeService) UploadArticles(ctx context.Context, urls []string) (domain.UploadReport, error) {
	items := make([]usecase.UploadItem, len(urls))
	for i, u := range urls {
		items[i] = usecase.UploadItem{URL: u}
	}
	return f.UploadItems(ctx, items)
}

func (f *fakeService) UploadItems(_ context.Context, items []usecase.UploadItem) (domain.UploadReport, error) {
	f.gotItems = items
	report := domain.UploadReport{FailedURLs: []string{}}
	for _, item := range items {
		if strings.Contains(item.URL, "bad") {
			report.Failed++
			report.FailedURLs = append(report.FailedURLs, item.URL)
			continue
		}
		report.Uploaded++
	}
	return report, nil
}

func (f *fakeService) CreateHypothesis(_ context.Context, hypothesis string, amount int) (domain.HypothesisReport, error) {
	f.gotHypothesis, f.gotAmount = hypothesis, amount
	time.Sleep(f.createDelay)
	if f.createErr != nil {
		return domain.HypothesisReport{}, f.createErr
	}
	return domain.HypothesisReport{
		Results:    []domain.ArticleVerdict{{ArticleURL: "https://pmc.ncbi.nlm.nih.gov/articles/PMC1/", Verdict: domain.Verdict{Relevancy: 90, KeyTake: "yes", Validity: 85}}},
		Failed:     1,
		FailedURLs: []string{"https://pmc.ncbi.nlm.nih.gov/articles/PMC2/"},
	}, nil
}

func (f *fakeService) BatchBudget(int) time.Duration { return f.budget }

type fakeCatalog struct {
	researches []domain.Research
	err        error
	gotFilter  domain.ResearchFilter
}

func (f *fakeCatalog) Researches(_ context.Context, filter domain.ResearchFilter) ([]domain.Research, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Research
	for _, r := range f.researches {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCatalog) EntityTypes(context.Context) ([]domain.EntityType, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.EntityType{{ID: 1, Name: "Disease"}, {ID: 3, Name: "Drug"}}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(svc Service, health Pinger) http.Handler {
	return newCatalogRouter(svc, &fakeCatalog{}, health)
}

func newCatalogRouter(svc Service, catalog CatalogService, health Pinger) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(svc, catalog, health, 1<<20, logger)
	return NewRouter(h, config.ServerConfig{CORSOrigins: []string{"*"}}, logger)
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeService{}, fakePinger{})
	for _, path := range []string{"/", "/health"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	}

	down := newTestRouter(&fakeService{}, fakePinger{err: errors.New("connection refused")})
	rr := httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", decodeBody[map[string]string](t, rr)["status"])
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rr := postJSON(t, newTestRouter(svc, nil), "/api/v1/validate",
		`{"hypothesis":"Rapamycin extends lifespan","article_url":"https://pmc.ncbi.nlm.nih.gov/articles/PMC1/"}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody[map[string]map[string]any](t, rr)
	assert.Equal(t, map[string]any{"relevancy": 80.0, "key_take": "supports", "validity": 70.0}, body["result"])
	assert.Equal(t, "Rapamycin extends lifespan", svc.gotHypothesis)
	assert.Equal(t, "https://pmc.ncbi.nlm.nih.gov/articles/PMC1/", svc.gotURL)
}

func TestValidateEndpointErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"missing field", nil, `{"hypothesis":"H"}`, http.StatusBadRequest},
		{"malformed", nil, `{"hypothesis":`, http.StatusBadRequest},
		{"empty body", nil, ``, http.StatusBadRequest},
		{"unavailable", fmt.Errorf("%w: %w", domain.ErrArticleUnavailable, &domain.FetchError{URL: "u", StatusCode: 404, Err: errors.New("gone")}), `{"hypothesis":"H","article_url":"https://x.org"}`, http.StatusUnprocessableEntity},
		{"llm", fmt.Errorf("%w: %w", domain.ErrValidationFailed, errors.New("rate limited")), `{"hypothesis":"H","article_url":"https://x.org"}`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := postJSON(t, newTestRouter(&fakeService{validateErr: tt.err}, nil), "/api/v1/validate", tt.body)
			assert.Equal(t, tt.want, rr.Code)
			assert.NotEmpty(t, decodeBody[errorBody](t, rr).Detail)
		})
	}
}

func TestValidateArticleEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeService{}, nil)
	rr := postJSON(t, router, "/api/v1/validate/article", `{"hypothesis":"H","article_id":"abc"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(t, router, "/api/v1/validate/article", `{"hypothesis":"H","article_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadEndpoint(t *testing.T) {
	t.Parallel()

	rr := postJSON(t, newTestRouter(&fakeService{}, nil), "/api/v1/articles/upload",
		`{"article_urls":["https://a.org/1","https://a.org/bad","https://a.org/2"]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[uploadResponse](t, rr)
	assert.Equal(t, uploadResponse{Uploaded: 2, Failed: 1, FailedURLs: []string{"https://a.org/bad"}}, body)

	rr = postJSON(t, newTestRouter(&fakeService{}, nil), "/api/v1/articles/upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateHypothesisEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rr := postJSON(t, newTestRouter(svc, nil), "/api/v1/hypotheses/create", `{"hypothesis":"H","articles_amount":5}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, svc.gotAmount)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	results := body["validation_results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "https://pmc.ncbi.nlm.nih.gov/articles/PMC1/", first["article"])
	assert.Equal(t, "yes", first["key_take"])
	assert.EqualValues(t, 1, body["failed_articles_amount"])

	failing := &fakeService{createErr: domain.Invalid("articles amount must be within 1..50, got 51")}
	rr = postJSON(t, newTestRouter(failing, nil), "/api/v1/hypotheses/create", `{"hypothesis":"H","articles_amount":51}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	failing = &fakeService{createErr: fmt.Errorf("%w: %w", domain.ErrDiscoveryFailed, errors.New("quota"))}
	rr = postJSON(t, newTestRouter(failing, nil), "/api/v1/hypotheses/create", `{"hypothesis":"H"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func workbookUpload(t *testing.T, filename string, rows [][]string) *http.Request {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Articles")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	var data bytes.Buffer
	require.NoError(t, f.Write(&data))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/upload/excel", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadExcelEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	req := workbookUpload(t, "articles.xlsx", [][]string{
		{"Title", "URL"},
		{"First", "https://a.org/1"},
		{"No link", ""},
		{"", "https://a.org/bad"},
	})
	rr := httptest.NewRecorder()
	newTestRouter(svc, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, uploadResponse{
		Uploaded:   1,
		Failed:     2,
		FailedURLs: []string{"https://a.org/bad", "row 3"},
	}, decodeBody[uploadResponse](t, rr))
	assert.Equal(t, []usecase.UploadItem{
		{URL: "https://a.org/1", Title: "First"},
		{URL: "https://a.org/bad"},
	}, svc.gotItems)
}

func TestUploadExcelRejectsBadInput(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeService{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, workbookUpload(t, "articles.csv", [][]string{{"URL"}}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, workbookUpload(t, "articles.xlsx", [][]string{{"Name"}, {"x"}}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/articles/upload/excel", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	newTestRouter(&fakeService{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/validate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBatchRequestOutlivesServerWriteTimeout(t *testing.T) {
	t.Parallel()

	post := func(svc *fakeService) (*http.Response, error) {
		ts := httptest.NewUnstartedServer(newTestRouter(svc, nil))
		ts.Config.WriteTimeout = 50 * time.Millisecond
		ts.Start()
		t.Cleanup(ts.Close)
		return ts.Client().Post(ts.URL+"/api/v1/hypotheses/create", "application/json",
			strings.NewReader(`{"hypothesis":"H","articles_amount":3}`))
	}

	resp, err := post(&fakeService{createDelay: 200 * time.Millisecond, budget: time.Second})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body createHypothesisResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Results, 1)

	// Without a budget the server write timeout cuts the response off.
	_, err = post(&fakeService{createDelay: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestResearchEndpoints(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{researches: []domain.Research{
		{ID: 1, PrimaryItem: "Ozempic", SecondaryItem: "Obesity"},
		{ID: 2, PrimaryItem: "Ozempic", SecondaryItem: "Diabetes Type 2"},
		{ID: 3, PrimaryItem: "GLP-1 receptor", SecondaryItem: "Alzheimer"},
	}}
	router := newCatalogRouter(&fakeService{}, catalog, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/researches?primary_item=ignored", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[researchListResponse](t, rr).Researches, 3)
	assert.Equal(t, domain.ResearchFilter{}, catalog.gotFilter)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/researches/search?primary_item=Ozempic&secondary_item=Obesity", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"researches":[{"id":1,"primary_item":"Ozempic","secondary_item":"Obesity"}]}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/researches/search?secondary_item=Psoriasis", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"researches":[]}`, rr.Body.String())

	down := newCatalogRouter(&fakeService{}, &fakeCatalog{err: errors.New("list researches: connection refused")}, nil)
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/researches", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Detail, "connection refused")
}

func TestEntityTypesEndpoint(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	newTestRouter(&fakeService{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/entity_types", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"entity_types":[{"id":1,"name":"Disease"},{"id":3,"name":"Drug"}]}`, rr.Body.String())
}
