package http_recogniser

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/llm-privacy/anonymisation-api/lib"
	"github.com/llm-privacy/anonymisation-api/lib/recogniser"
)

type mockHttpClient struct {
	mock.Mock
}

func (m *mockHttpClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(httpClient lib.HttpClient) *presidio {
	return &presidio{
		url:        "http://detector:5002/analyze",
		healthUrl:  "http://detector:5002/health",
		httpClient: httpClient,
	}
}

func TestNewPresidioClientDerivesHealthUrl(t *testing.T) {
	client := NewPresidioClient(PresidioConfig{Url: "http://detector:5002/analyze"}).(*presidio)
	assert.Equal(t, "http://detector:5002/health", client.healthUrl)
}

func TestRecognise(t *testing.T) {
	httpClient := new(mockHttpClient)
	var sent *http.Request
	httpClient.On("Do", mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(0).(*http.Request)
	}).Return(response(http.StatusOK, `[
		{"entity_type":"PERSON","start":6,"end":9,"score":0.92}
	]`), nil)

	client := newTestClient(httpClient)
	candidates, err := client.Recognise(context.Background(), "Héllo Bob", "en")
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, "http://detector:5002/analyze", sent.URL.String())
	assert.Equal(t, "application/json", sent.Header.Get("Content-Type"))
	body, _ := io.ReadAll(sent.Body)
	assert.JSONEq(t, `{"text":"Héllo Bob","language":"en"}`, string(body))

	// rune offsets 6..9 map to byte offsets 7..10 past the two byte é
	require.Len(t, candidates, 1)
	assert.Equal(t, lib.Candidate{
		Text:       "Bob",
		Start:      7,
		End:        10,
		EntityType: "PERSON",
		Score:      0.92,
	}, candidates[0])
}

func TestRecogniseDropsOutOfRangeResults(t *testing.T) {
	httpClient := new(mockHttpClient)
	httpClient.On("Do", mock.Anything).Return(response(http.StatusOK, `[
		{"entity_type":"PERSON","start":-1,"end":3,"score":0.9},
		{"entity_type":"PERSON","start":2,"end":2,"score":0.9},
		{"entity_type":"PERSON","start":0,"end":99,"score":0.9},
		{"entity_type":"PERSON","start":0,"end":5,"score":0.9}
	]`), nil)

	candidates, err := newTestClient(httpClient).Recognise(context.Background(), "Alice here", "en")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Alice", candidates[0].Text)
}

func TestRecogniseDetectorDown(t *testing.T) {
	httpClient := new(mockHttpClient)
	httpClient.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := newTestClient(httpClient).Recognise(context.Background(), "some text", "en")
	assert.ErrorIs(t, err, recogniser.ErrUnavailable)
}

func TestRecogniseDetectorErrorStatus(t *testing.T) {
	httpClient := new(mockHttpClient)
	httpClient.On("Do", mock.Anything).Return(response(http.StatusInternalServerError, "boom"), nil)

	_, err := newTestClient(httpClient).Recognise(context.Background(), "some text", "en")
	assert.ErrorIs(t, err, recogniser.ErrUnavailable)
}

func TestRecogniseInvalidResponseBody(t *testing.T) {
	httpClient := new(mockHttpClient)
	httpClient.On("Do", mock.Anything).Return(response(http.StatusOK, "not json"), nil)

	_, err := newTestClient(httpClient).Recognise(context.Background(), "some text", "en")
	require.Error(t, err)
	assert.NotErrorIs(t, err, recogniser.ErrUnavailable)
}

func TestReady(t *testing.T) {
	httpClient := new(mockHttpClient)
	httpClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodGet && req.URL.String() == "http://detector:5002/health"
	})).Return(response(http.StatusOK, "ok"), nil).Once()
	assert.True(t, newTestClient(httpClient).Ready())

	down := new(mockHttpClient)
	down.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))
	assert.False(t, newTestClient(down).Ready())
}
