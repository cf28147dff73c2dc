package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a function-field Client for helper tests.
type mockClient struct {
	queryFn     func(ctx context.Context, soql string, out any) error
	insertOneFn func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	updateOneFn func(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "00Q000000000001", nil
}

func (m *mockClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if m.updateOneFn != nil {
		return m.updateOneFn(ctx, sObjectName, id, fields)
	}
	return nil
}

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler, opts ...ClientOption) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf, opts...)
}

func TestSFClient_Query(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes": map[string]any{"type": "Lead"},
				"Id":         "00Qxx",
				"LastName":   "Doe",
				"Website":    "https://www.linkedin.com/in/jane",
			}},
		})
	}))

	var leads []Lead
	require.NoError(t, client.Query(context.Background(), "SELECT Id FROM Lead", &leads))
	require.Len(t, leads, 1)
	assert.Equal(t, "00Qxx", leads[0].ID)
	assert.Equal(t, "https://www.linkedin.com/in/jane", leads[0].Website)
}

func TestSFClient_InsertOne(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "00Qnew", "success": true, "errors": []any{}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	id, err := client.InsertOne(context.Background(), "Lead", map[string]any{"LastName": "Doe", "Company": "Individual"})
	require.NoError(t, err)
	assert.Equal(t, "00Qnew", id)
}

func TestSFClient_InsertOne_Failure(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "required field missing"}},
		})
	}))

	_, err := client.InsertOne(context.Background(), "Lead", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert Lead failed")
}

func TestSFClient_UpdateOne_DoesNotMutateFields(t *testing.T) {
	client := newTestSFClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	fields := map[string]any{"Status": "Working - Contacted"}
	require.NoError(t, client.UpdateOne(context.Background(), "Lead", "00Qxx", fields))
	assert.NotContains(t, fields, "Id")
}

func TestSFClient_RateLimitHonoursContext(t *testing.T) {
	client := newTestSFClient(t, http.NotFoundHandler(), WithRateLimit(0.001))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The first token is available immediately; the second wait needs ctx.
	_ = client.Query(context.Background(), "SELECT Id FROM Lead", &[]Lead{})
	err := client.Query(ctx, "SELECT Id FROM Lead", &[]Lead{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestDial_RequiresClientID(t *testing.T) {
	_, err := Dial(Creds{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
}
