package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvakame/bookgraph/internal/graph"
)

func newTestServer(t *testing.T, modify func(opts *Options)) *httptest.Server {
	t.Helper()

	es, err := graph.New(nil)
	require.NoError(t, err)

	opts := &Options{
		Schema:     es,
		Logger:     testr.New(t),
		Registry:   prometheus.NewRegistry(),
		Playground: true,
	}
	if modify != nil {
		modify(opts)
	}

	h, err := NewHandler(opts)
	require.NoError(t, err)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return ts
}

func postQuery(t *testing.T, ts *httptest.Server, body string, header http.Header) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+GraphQLPath, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(b)
}

func TestNewHandler_query(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := postQuery(t, ts, `{"query":"{ bookById(id: \"book-1\") { id name pageCount author { id firstName lastName } } }"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, heredoc.Doc(`
		{
		  "data": {
		    "bookById": {
		      "id": "book-1",
		      "name": "Harry Potter and the Philosopher's Stone",
		      "pageCount": 223,
		      "author": {
		        "id": "author-1",
		        "firstName": "Joanne",
		        "lastName": "Rowling"
		      }
		    }
		  }
		}
	`), body)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestNewHandler_getQuery(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + GraphQLPath + "?query=" + url.QueryEscape(`{ bookById(id: "nonexistent") { id } }`))
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"bookById":null}}`, string(b))
}

func TestNewHandler_requestID(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := postQuery(t, ts, `{"query":"{ allBooks { id } }"}`, http.Header{requestIDHeader: {"req-42"}})
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))
}

func TestNewHandler_complexityLimit(t *testing.T) {
	ts := newTestServer(t, func(opts *Options) {
		opts.ComplexityLimit = 3
	})

	_, body := postQuery(t, ts, `{"query":"{ allBooks { id name author { id } } }"}`, nil)
	assert.Contains(t, body, "exceeds the limit of 3")

	_, body = postQuery(t, ts, `{"query":"{ bookById(id: \"book-2\") { name } }"}`, nil)
	assert.JSONEq(t, `{"data":{"bookById":{"name":"Moby Dick"}}}`, body)
}

func TestNewHandler_metrics(t *testing.T) {
	ts := newTestServer(t, nil)

	postQuery(t, ts, `{"query":"query AllBooks { allBooks { id } }","operationName":"AllBooks"}`, nil)

	resp, err := ts.Client().Get(ts.URL + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `bookgraph_graphql_operation_total{operation_name="AllBooks",operation_type="query"} 1`)
}

func TestNewHandler_healthz(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + HealthzPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(b))
}

func TestNewHandler_playground(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, nil)

		resp, err := ts.Client().Get(ts.URL + PlaygroundPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, func(opts *Options) {
			opts.Playground = false
		})

		resp, err := ts.Client().Get(ts.URL + PlaygroundPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestNewHandler_cors(t *testing.T) {
	ts := newTestServer(t, func(opts *Options) {
		opts.CORSOrigins = []string{"https://books.example.com"}
	})

	resp, _ := postQuery(t, ts, `{"query":"{ allBooks { id } }"}`, http.Header{"Origin": {"https://books.example.com"}})
	assert.Equal(t, "https://books.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = postQuery(t, ts, `{"query":"{ allBooks { id } }"}`, http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewHandler_noSchema(t *testing.T) {
	_, err := NewHandler(&Options{})
	assert.Error(t, err)
}
