package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/trace"
)

func TestGenerateContent(t *testing.T) {
	doc := []byte{0x25, 0x50, 0x44, 0x46} // %PDF

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-pro:generateContent", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "score sheet")
		require.NotNil(t, req.Contents[0].Parts[1].InlineData)
		assert.Equal(t, "application/pdf", req.Contents[0].Parts[1].InlineData.MIMEType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(doc), req.Contents[0].Parts[1].InlineData.Data)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"horse_name\":"},{"text":"\"Bella\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1beta"}, srv.Client(), nil)
	text, err := c.GenerateContent(context.Background(), "tok-123",
		"Extract the dressage score sheet.", doc, "application/pdf", trace.New(nil))
	require.NoError(t, err)
	assert.Equal(t, `{"horse_name":"Bella"}`, text)
}

func TestGenerateContentOnlyFirstCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[
			{"content":{"parts":[{"text":"first"}]}},
			{"content":{"parts":[{"text":"second"}]}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, srv.Client(), nil)
	text, err := c.GenerateContent(context.Background(), "tok", "i", []byte("d"), "image/png", trace.New(nil))
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestGenerateContentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.GenerateContent(context.Background(), "tok", "i", []byte("d"), "image/png", trace.New(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUpstream))
	assert.Contains(t, err.Error(), "503")
}

func TestGenerateContentMissingContent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"empty parts", `{"candidates":[{"content":{"parts":[]}}]}`},
		{"whitespace text", `{"candidates":[{"content":{"parts":[{"text":"  \n"}]}}]}`},
		{"undecodable body", `<html>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, srv.Client(), nil)
			_, err := c.GenerateContent(context.Background(), "tok", "i", []byte("d"), "image/png", trace.New(nil))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMissingContent), "expected ErrMissingContent, got %v", err)
		})
	}
}
