package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/gemini"
	"poster-studio/internal/poster"
	"poster-studio/internal/wizard"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type stubService struct {
	editErr error
}

func (s *stubService) RequestProposals(context.Context, poster.Submission) ([]poster.Proposal, error) {
	var out []poster.Proposal
	for _, id := range []string{"a", "b", "c"} {
		out = append(out, poster.Proposal{ID: id, Title: id, Description: "d", CopyTitle: "t", CopySubtitle: "s", CopyBody: "b", VisualDirection: "v"})
	}
	return out, nil
}

func (s *stubService) RequestPosterImage(context.Context, poster.Proposal, poster.GenerationConfig, []dataurl.Image) (dataurl.Image, error) {
	return dataurl.Image{MimeType: "image/png", Data: pngBytes}, nil
}

func (s *stubService) RequestPosterEdit(context.Context, dataurl.Image, string) (dataurl.Image, error) {
	if s.editErr != nil {
		return dataurl.Image{}, s.editErr
	}
	return dataurl.Image{MimeType: "image/png", Data: pngBytes}, nil
}

func (s *stubService) RequestAnalysis(context.Context, dataurl.Image) (string, error) {
	return "fine", nil
}

func newTestServer(t *testing.T, svc *stubService) *httptest.Server {
	t.Helper()
	ctrl, err := wizard.New(wizard.Options{Service: svc, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s := New(Options{Wizard: ctrl, Logger: zerolog.Nop(), RequestTimeout: 5 * time.Second})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return srv
}

func submitForm(t *testing.T, name string, files map[string][]byte) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", name))
	require.NoError(t, mw.WriteField("styles", "Minimalist, Cinematic"))
	require.NoError(t, mw.WriteField("constraints", "Keep logo legible"))
	for filename, data := range files {
		fw, err := mw.CreateFormFile("product_images", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func do(t *testing.T, method, url, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeSnapshot(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestCatalogEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	resp, raw := do(t, http.MethodGet, srv.URL+"/api/catalog", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"aspectRatios"`)
	assert.Contains(t, string(raw), `"9:16"`)
}

func TestWizardFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	ct, body := submitForm(t, "Nova", map[string][]byte{"nova.png": pngBytes})
	resp, raw := do(t, http.MethodPost, srv.URL+"/api/submit", ct, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	snap := decodeSnapshot(t, raw)
	assert.Equal(t, "proposal", snap["step"])
	assert.Len(t, snap["proposals"], 3)
	submission := snap["submission"].(map[string]any)
	assert.Equal(t, []any{"Minimalist", "Cinematic"}, submission["styles"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/proposals/zzz/select", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = do(t, http.MethodPost, srv.URL+"/api/proposals/b/select", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	snap = decodeSnapshot(t, raw)
	assert.Equal(t, "final", snap["step"])
	assert.NotNil(t, snap["artifact"])

	resp, raw = do(t, http.MethodGet, srv.URL+"/api/poster/image?download=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("content-type"))
	assert.Contains(t, resp.Header.Get("content-disposition"), `filename="poster-v1.png"`)
	assert.Equal(t, pngBytes, raw)

	resp, raw = do(t, http.MethodPut, srv.URL+"/api/poster/config", "application/json",
		strings.NewReader(`{"aspectRatio":"7:3","imageSize":"1K","model":"standard"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, raw = do(t, http.MethodPost, srv.URL+"/api/poster/regenerate", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = do(t, http.MethodPost, srv.URL+"/api/poster/analyze", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fine", decodeSnapshot(t, raw)["analysis"])

	resp, raw = do(t, http.MethodPost, srv.URL+"/api/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "input", decodeSnapshot(t, raw)["step"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/poster/image", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitValidationErrors(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	ct, body := submitForm(t, "Nova", nil)
	resp, raw := do(t, http.MethodPost, srv.URL+"/api/submit", ct, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(raw, &apiErr))
	assert.NotEmpty(t, apiErr.Problems)

	ct, body = submitForm(t, "Nova", map[string][]byte{"spec.pdf": []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")})
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/submit", ct, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBackInInputIsConflict(t *testing.T) {
	srv := newTestServer(t, &stubService{})
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/back", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServiceRefusalSurfacesExplanation(t *testing.T) {
	svc := &stubService{editErr: &gemini.Error{Kind: gemini.KindNoImageReturned, Op: "edit", Explanation: "blocked by safety filter"}}
	srv := newTestServer(t, svc)

	ct, body := submitForm(t, "Nova", map[string][]byte{"nova.png": pngBytes})
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/submit", ct, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/proposals/a/select", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := do(t, http.MethodPost, srv.URL+"/api/poster/edit", "application/json", strings.NewReader(`{"instruction":"add fireworks"}`))
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(raw, &apiErr))
	assert.Equal(t, "blocked by safety filter", apiErr.Explanation)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&wizard.ValidationError{Subject: "submission"}, http.StatusBadRequest},
		{dataurl.ErrMalformedEncoding, http.StatusBadRequest},
		{wizard.ErrUnknownProposal, http.StatusNotFound},
		{wizard.ErrBusy, http.StatusConflict},
		{wizard.ErrStale, http.StatusConflict},
		{&gemini.Error{Kind: gemini.KindSchemaViolation}, http.StatusBadGateway},
		{&gemini.Error{Kind: gemini.KindService}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestWebsocketPushesState(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() stateMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg stateMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, wizard.StepInput, first.State.Step)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	next := read()
	assert.Greater(t, next.State.Generation, first.State.Generation)
}
