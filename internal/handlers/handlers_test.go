// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorkit/parlor/internal/aiturn"
	"github.com/parlorkit/parlor/internal/auth"
	"github.com/parlorkit/parlor/internal/gamekit"
	"github.com/parlorkit/parlor/internal/games/pig"
	"github.com/parlorkit/parlor/internal/games/spades"
	"github.com/parlorkit/parlor/internal/room"
	"github.com/parlorkit/parlor/internal/state"
)

func TestMain(m *testing.M) {
	auth.Init()
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	registry := gamekit.NewRegistry()
	require.NoError(t, registry.Register(pig.New()))
	require.NoError(t, registry.Register(spades.New()))

	// The completion hook closes over the manager variable because the
	// manager itself needs the store.
	var rooms *room.Manager
	store := state.NewStore(state.NewMemoryRepository(), registry,
		state.WithRand(rand.New(rand.NewSource(7))),
		state.WithCompletion(func(ctx context.Context, roomID uuid.UUID, winners []int, reason string) error {
			return rooms.CompleteRoom(ctx, roomID, winners, reason)
		}))
	rooms = room.NewManager(room.NewMemoryRepository(), registry, store, room.DefaultConfig(),
		room.WithRand(rand.New(rand.NewSource(7))))
	processor := aiturn.NewProcessor(rooms, store, registry, logger)

	return NewServer(rooms, store, registry, processor, logger).Routes()
}

// client keeps the auth cookie across requests like a browser would.
type client struct {
	t      *testing.T
	mux    http.Handler
	cookie string
}

func (c *client) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, req)

	if sc := w.Result().Cookies(); len(sc) > 0 {
		c.cookie = sc[0].Name + "=" + sc[0].Value
	}
	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func TestListGames(t *testing.T) {
	c := &client{t: t, mux: newTestServer(t)}
	w, body := c.do("GET", "/games", nil)
	require.Equal(t, http.StatusOK, w.Code)
	games := body["games"].([]interface{})
	assert.Len(t, games, 2)
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	mux := newTestServer(t)
	alice := &client{t: t, mux: mux}

	w, body := alice.do("POST", "/room", map[string]interface{}{
		"game_id":  "pig",
		"settings": map[string]interface{}{"target_score": 50},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	code := body["room"].(map[string]interface{})["code"].(string)
	require.Len(t, code, 6)

	// A joiner without a token is minted a guest on the fly.
	w, body = alice.do("POST", "/room/"+code+"/join", map[string]interface{}{"display_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, alice.cookie)
	assert.Equal(t, float64(0), body["seat"].(map[string]interface{})["position"])

	// Rejoining with the cookie is idempotent.
	w, body = alice.do("POST", "/room/"+code+"/join", map[string]interface{}{"display_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["seat"].(map[string]interface{})["position"])

	w, body = alice.do("POST", "/room/"+code+"/ai", map[string]interface{}{"difficulty": "easy"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["seat"].(map[string]interface{})["is_ai"])

	w, body = alice.do("POST", "/room/"+code+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", body["room"].(map[string]interface{})["status"])

	// Starting twice conflicts.
	w, body = alice.do("POST", "/room/"+code+"/start", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "game_started", body["error"].(map[string]interface{})["kind"])

	w, body = alice.do("GET", "/room/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["room"].(map[string]interface{})["seats"], 2)
}

func TestJoinRejectsMalformedBody(t *testing.T) {
	mux := newTestServer(t)
	c := &client{t: t, mux: mux}
	_, body := c.do("POST", "/room", map[string]interface{}{"game_id": "pig"})
	code := body["room"].(map[string]interface{})["code"].(string)

	req := httptest.NewRequest("POST", "/room/"+code+"/join", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, "bad_request", decoded["error"].(map[string]interface{})["kind"])
}

func TestUnknownRoomAndGame(t *testing.T) {
	c := &client{t: t, mux: newTestServer(t)}

	w, body := c.do("POST", "/room", map[string]interface{}{"game_id": "chess"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "game_not_found", body["error"].(map[string]interface{})["kind"])

	w, body = c.do("GET", "/room/ZZZZZZ", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["error"].(map[string]interface{})["kind"])
}

// startPigRoom creates a pig room with one human and one bot and starts it.
func startPigRoom(t *testing.T, mux http.Handler) (*client, string) {
	t.Helper()
	human := &client{t: t, mux: mux}
	_, body := human.do("POST", "/room", map[string]interface{}{"game_id": "pig"})
	code := body["room"].(map[string]interface{})["code"].(string)
	w, _ := human.do("POST", "/room/"+code+"/join", map[string]interface{}{"display_name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = human.do("POST", "/room/"+code+"/ai", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = human.do("POST", "/room/"+code+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return human, code
}

func pollState(t *testing.T, c *client, code string) map[string]interface{} {
	t.Helper()
	w, body := c.do("GET", "/game/state/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["changed"])
	return body["state"].(map[string]interface{})
}

func TestStatePollAndEtag(t *testing.T) {
	mux := newTestServer(t)
	human, code := startPigRoom(t, mux)

	st := pollState(t, human, code)
	etag := st["etag"].(string)
	require.NotEmpty(t, etag)

	// Same etag: nothing new.
	w, body := human.do("GET", "/game/state/"+code+"?etag="+etag, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])
	assert.Nil(t, body["state"])
}

func TestMoveFlowOverHTTP(t *testing.T) {
	mux := newTestServer(t)
	human, code := startPigRoom(t, mux)

	st := pollState(t, human, code)
	etag := st["etag"].(string)

	// The opening gate only accepts the acknowledgment.
	w, body := human.do("POST", "/game/move/"+code, map[string]interface{}{
		"action": "roll", "etag": etag,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "out_of_phase", body["error"].(map[string]interface{})["kind"])

	w, body = human.do("POST", "/game/move/"+code, map[string]interface{}{
		"action": "continue", "etag": etag,
	})
	require.Equal(t, http.StatusOK, w.Code)
	newEtag := body["state"].(map[string]interface{})["etag"].(string)
	require.NotEqual(t, etag, newEtag)

	// Replaying against the stale etag is rejected with the winner's etag.
	w, body = human.do("POST", "/game/move/"+code, map[string]interface{}{
		"action": "roll", "etag": etag,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "stale_state", errObj["kind"])
	assert.Equal(t, newEtag, errObj["current_etag"])

	w, body = human.do("POST", "/game/move/"+code, map[string]interface{}{
		"action": "roll", "etag": newEtag,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMoveRequiresSeat(t *testing.T) {
	mux := newTestServer(t)
	human, code := startPigRoom(t, mux)
	st := pollState(t, human, code)

	stranger := &client{t: t, mux: mux}
	w, body := stranger.do("POST", "/game/move/"+code, map[string]interface{}{
		"action": "continue", "etag": st["etag"],
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_in_room", body["error"].(map[string]interface{})["kind"])
}

func TestAIStepEndpoint(t *testing.T) {
	mux := newTestServer(t)
	human, code := startPigRoom(t, mux)

	st := pollState(t, human, code)
	etag := st["etag"].(string)

	// Open the gate, then hold immediately to hand the turn to the bot.
	w, body := human.do("POST", "/game/move/"+code, map[string]interface{}{"action": "continue", "etag": etag})
	require.Equal(t, http.StatusOK, w.Code)
	etag = body["state"].(map[string]interface{})["etag"].(string)
	w, body = human.do("POST", "/game/move/"+code, map[string]interface{}{"action": "hold", "etag": etag})
	require.Equal(t, http.StatusOK, w.Code)
	version := body["state"].(map[string]interface{})["state_version"].(float64)

	w, body = human.do("POST", "/game/ai/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := body["state"].(map[string]interface{})["state_version"].(float64)
	assert.Equal(t, version+1, after, "one unit of AI work per invocation")
}

func TestForfeitOverHTTP(t *testing.T) {
	mux := newTestServer(t)
	human, code := startPigRoom(t, mux)

	w, body := human.do("POST", "/game/forfeit/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := body["state"].(map[string]interface{})["state"].(map[string]interface{})
	assert.Equal(t, true, st["game_over"])
	assert.Equal(t, "forfeit", st["end_reason"])

	// The room flips to completed via the store's completion hook.
	w, body = human.do("GET", "/room/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["room"].(map[string]interface{})["status"])
}
