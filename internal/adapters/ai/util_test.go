package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain/completion"
	"switchboard/pkg/errors"
)

func TestParseImageDataURI(t *testing.T) {
	tests := []struct {
		uri, mediaType, data string
	}{
		{"data:image/png;base64,iVBORw0KGgo=", "image/png", "iVBORw0KGgo="},
		{"data:image/jpeg;base64,/9j/4AAQ", "image/jpeg", "/9j/4AAQ"},
		{"data:image/jpg;base64,/9j/", "image/jpeg", "/9j/"},
		{"data:image/GIF;base64,R0lGOD", "image/gif", "R0lGOD"},
		{"data:image/webp;base64,UklGR", "image/webp", "UklGR"},
		{"data:image/tiff;base64,SUkq", "image/jpeg", "SUkq"},
		{"data:;base64,AAAA", "image/jpeg", "AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			img, err := ParseImageDataURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.mediaType, img.MediaType)
			assert.Equal(t, tt.data, img.Data)
		})
	}
}

func TestParseImageDataURIRejects(t *testing.T) {
	for _, uri := range []string{"https://example.com/cat.png", "data:image/png;base64,", "data:image/png"} {
		_, err := ParseImageDataURI(uri)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, uri)
	}
}

func TestDeleteNoneValues(t *testing.T) {
	var in interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"a": null,
		"b": 1,
		"c": {"d": null, "e": "x"},
		"f": [null, {"g": null, "h": true}]
	}`), &in))

	out := DeleteNoneValues(in)

	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":1,"c":{"e":"x"},"f":[null,{"h":true}]}`, string(encoded))

	assert.Equal(t, "plain", DeleteNoneValues("plain"))
	assert.Nil(t, cleanSchema(nil))
}

func TestClassifyError(t *testing.T) {
	cause := errors.New("boom")

	err := ClassifyError("openai", "gpt-4o", http.StatusTooManyRequests, cause)
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.NotErrorIs(t, err, errors.ErrTransport)

	err = ClassifyError("openai", "gpt-4o", http.StatusBadGateway, cause)
	assert.ErrorIs(t, err, errors.ErrTransport)
	var te *errors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 502, te.StatusCode)
	assert.ErrorIs(t, err, cause)

	err = ClassifyError("openai", "gpt-4o", 0, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, errors.ErrTransport)

	// classified errors pass through untouched
	limited := &errors.RateLimitError{Provider: "openai", Err: cause}
	assert.Same(t, limited, ClassifyError("openai", "gpt-4o", 500, limited))

	assert.NoError(t, ClassifyError("openai", "gpt-4o", 500, nil))
}

func TestClassifyResponseRetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"7"}}}
	err := classifyResponse("anthropic", "claude", resp, errors.New("slow down"))

	var rl *errors.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestClientCacheSharesPerKey(t *testing.T) {
	cache := NewClientCache(DefaultClientConfig())

	a := cache.Get("https://api.openai.com/v1", "k1")
	b := cache.Get("https://api.openai.com/v1", "k1")
	c := cache.Get("https://api.openai.com/v1", "k2")
	d := cache.Get("https://api.groq.com/openai/v1", "k1")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.NotSame(t, a, d)
	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, 600*time.Second, a.Timeout)
}

func TestChunkQueueCloseStopsStream(t *testing.T) {
	closed := 0
	pulls := 0
	q := &chunkQueue{
		pending: []completion.Chunk{{ID: "first"}},
		pull: func() ([]completion.Chunk, error) {
			pulls++
			return []completion.Chunk{{ID: "more"}}, nil
		},
		closeFn: func() error { closed++; return nil },
	}

	c, err := q.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", c.ID)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.Equal(t, 1, closed)

	_, err = q.Recv()
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, pulls)
}
