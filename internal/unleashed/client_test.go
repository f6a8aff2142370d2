package unleashed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stockyard/api/internal/platform/config"
)

func testConfig(endpoint string) config.UnleashedConfig {
	return config.UnleashedConfig{
		Endpoint:     endpoint,
		APIID:        "api-id",
		APIKey:       "api-key",
		FetchTimeout: 5 * time.Second,
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.UnleashedConfig{Endpoint: "https://example.test"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBuildQueryFixedOrder(t *testing.T) {
	cases := []struct {
		name   string
		params QueryParams
		want   string
	}{
		{"empty", QueryParams{}, ""},
		{"page only", QueryParams{Page: 3}, "page=3"},
		{"page and size", QueryParams{Page: 2, PageSize: 50}, "page=2&pageSize=50"},
		{"all fields", QueryParams{Page: 1, PageSize: 200, ProductCode: "A1"}, "page=1&pageSize=200&productCode=A1"},
		{"code only", QueryParams{ProductCode: "B2"}, "productCode=B2"},
		{"code with space", QueryParams{ProductCode: "BOLT M8"}, "productCode=BOLT+M8"},
		{"code with reserved chars", QueryParams{ProductCode: "A&B=C"}, "productCode=A%26B%3DC"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildQuery(tc.params); got != tc.want {
				t.Fatalf("BuildQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	client, err := NewClient(testConfig("https://example.test"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	query := BuildQuery(QueryParams{Page: 2, PageSize: 50})
	first := client.Sign(query)
	for i := 0; i < 5; i++ {
		if got := client.Sign(query); got != first {
			t.Fatalf("signature changed between calls: %q vs %q", got, first)
		}
	}

	mac := hmac.New(sha256.New, []byte("api-key"))
	mac.Write([]byte("page=2&pageSize=50"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if first != want {
		t.Fatalf("signature = %q, want %q", first, want)
	}
}

func TestSignEmptyQuery(t *testing.T) {
	client, err := NewClient(testConfig("https://example.test"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("api-key"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if got := client.Sign(""); got != want {
		t.Fatalf("empty-query signature = %q, want %q", got, want)
	}
}

func TestFetchPageSendsSignedRequest(t *testing.T) {
	var gotPath, gotQuery, gotID, gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotID = r.Header.Get("api-auth-id")
		gotSig = r.Header.Get("api-auth-signature")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"ProductCode":"A1"}],"Pagination":{"NumberOfPages":4}}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	page, err := client.FetchPage(context.Background(), EndpointProducts, QueryParams{Page: 1, PageSize: 200})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}

	if gotPath != "/Products" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "page=1&pageSize=200" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotID != "api-id" {
		t.Fatalf("unexpected api-auth-id %q", gotID)
	}
	if gotSig != client.Sign("page=1&pageSize=200") {
		t.Fatalf("signature header mismatch")
	}
	if len(page.Records) != 1 || page.TotalPages != 4 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestFetchPageEncodesProductCode(t *testing.T) {
	var gotRawQuery, gotCode, gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawQuery = r.URL.RawQuery
		gotCode = r.URL.Query().Get("productCode")
		gotSig = r.Header.Get("api-auth-signature")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.FetchPage(context.Background(), EndpointProducts, QueryParams{Page: 1, ProductCode: "A&B C"}); err != nil {
		t.Fatalf("fetch page: %v", err)
	}

	if gotRawQuery != "page=1&productCode=A%26B+C" {
		t.Fatalf("raw query = %q, want encoded product code", gotRawQuery)
	}
	if gotCode != "A&B C" {
		t.Fatalf("decoded product code = %q, want original value", gotCode)
	}
	if gotSig != client.Sign("page=1&productCode=A%26B+C") {
		t.Fatal("signature must cover the encoded query string")
	}
}

func TestFetchPageNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid signature"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchPage(context.Background(), EndpointProducts, QueryParams{Page: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Body != "invalid signature" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestFetchPageTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.FetchTimeout = 20 * time.Millisecond
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.FetchPage(context.Background(), EndpointProducts, QueryParams{Page: 1})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestNormalizePageShapes(t *testing.T) {
	cases := []struct {
		name      string
		endpoint  Endpoint
		body      string
		records   int
		pageCount int
	}{
		{"bare array", EndpointProducts, `[{"ProductCode":"A"},{"ProductCode":"B"}]`, 2, 0},
		{"Items key", EndpointProducts, `{"Items":[{"ProductCode":"A"}]}`, 1, 0},
		{"lowercase items", EndpointProducts, `{"items":[{"code":"A"}]}`, 1, 0},
		{"Products key", EndpointProducts, `{"Products":[{"ProductCode":"A"}]}`, 1, 0},
		{"Warehouses key", EndpointWarehouses, `{"Warehouses":[{"WarehouseCode":"W"}]}`, 1, 0},
		{"empty Items with pagination", EndpointProducts, `{"Items":[],"Pagination":{"NumberOfPages":1}}`, 0, 1},
		{"lowercase pagination", EndpointProducts, `{"items":[],"pagination":{"numberOfPages":7}}`, 0, 7},
		{"TotalPages variant", EndpointProducts, `{"Items":[],"Pagination":{"TotalPages":9}}`, 0, 9},
		{"missing items", EndpointProducts, `{"Unrelated":true}`, 0, 0},
		{"null body", EndpointProducts, `null`, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := normalizePage(tc.endpoint, []byte(tc.body))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if len(page.Records) != tc.records {
				t.Fatalf("records = %d, want %d", len(page.Records), tc.records)
			}
			if page.TotalPages != tc.pageCount {
				t.Fatalf("total pages = %d, want %d", page.TotalPages, tc.pageCount)
			}
		})
	}
}
