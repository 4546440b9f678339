package app

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voiceline/signaling/internal/domain"
)

const finalizePath = "/api/audio/finalize"

// HTTPFinalizer notifies an external endpoint that a voice session ended.
// The request is fire-and-forget: issued from a detached goroutine, bounded
// by the client timeout, never retried; failures and the response body are
// discarded. An empty base URL disables the hook entirely.
type HTTPFinalizer struct {
	base   string
	client *http.Client
}

func NewHTTPFinalizer(base string, timeout time.Duration) *HTTPFinalizer {
	return &HTTPFinalizer{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFinalizer) RoomEmptied(room domain.RoomID) {
	if f.base == "" {
		return
	}
	target := f.base + finalizePath + "?roomId=" + url.QueryEscape(string(room))
	go func() {
		resp, err := f.client.Post(target, "application/json", nil)
		if err != nil {
			log.Debug().Err(err).Str("module", "app.finalize").Str("room", string(room)).Msg("finalize request failed")
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		log.Debug().Str("module", "app.finalize").Str("room", string(room)).Int("status", resp.StatusCode).Msg("finalize request done")
	}()
}
