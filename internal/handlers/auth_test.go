package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/media"
	"github.com/nkiryanov/videohub/internal/repository"
	"github.com/nkiryanov/videohub/internal/repository/postgres"
	"github.com/nkiryanov/videohub/internal/service/auth"
	"github.com/nkiryanov/videohub/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/videohub/internal/service/user"
	"github.com/nkiryanov/videohub/internal/testutil"
)

// In memory media store
type fakeMedia struct {
	mu      sync.Mutex
	n       int
	objects map[string]struct{}
}

func (m *fakeMedia) Upload(_ context.Context, f media.Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	url := fmt.Sprintf("https://media.example.com/media/%d-%s", m.n, f.Filename)
	m.objects[url] = struct{}{}
	return url, nil
}

func (m *fakeMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	return nil
}

func (m *fakeMedia) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type envelope struct {
	StatusCode int               `json:"statusCode"`
	Data       json.RawMessage   `json:"data"`
	Message    string            `json:"message"`
	Success    bool              `json:"success"`
	Errors     map[string]string `json:"errors"`
}

type apiClient struct {
	t   *testing.T
	url string
}

type apiResponse struct {
	*http.Response
	Body envelope
	Raw  string
}

func (r apiResponse) Cookie(name string) *http.Cookie {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (c apiClient) do(method string, path string, contentType string, body io.Reader, opts ...func(*http.Request)) apiResponse {
	c.t.Helper()

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.url+APIPrefix+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	_ = resp.Body.Close()

	var env envelope
	require.NoErrorf(c.t, json.Unmarshal(raw, &env), "response is not json envelope: %s", string(raw))
	return apiResponse{Response: resp, Body: env, Raw: string(raw)}
}

func (c apiClient) JSON(method string, path string, body string, opts ...func(*http.Request)) apiResponse {
	c.t.Helper()
	return c.do(method, path, "application/json", strings.NewReader(body), opts...)
}

func (c apiClient) Multipart(method string, path string, fields map[string]string, files map[string]string, opts ...func(*http.Request)) apiResponse {
	c.t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	for field, contentType := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s.png"`, field, field))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(c.t, err)
		_, err = part.Write([]byte("\x89PNG fake image"))
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	return c.do(method, path, mw.FormDataContentType(), buf, opts...)
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name string, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

// Run http server with production services inside transaction
func withAPI(t *testing.T, pool *pgxpool.Pool, fn func(api apiClient, storage repository.Storage, m *fakeMedia)) {
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

	testutil.WithTx(pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		m := &fakeMedia{objects: make(map[string]struct{})}

		tokens, err := tokenmanager.New(tokenmanager.Config{
			AccessSecret:  "test-access-secret",
			RefreshSecret: "test-refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
		})
		require.NoError(t, err, "token manager should be created without errors")

		authService, err := auth.NewService(auth.Config{Hasher: hasher}, tokens, storage.User())
		require.NoError(t, err, "auth service starting error", err)
		userService := user.NewService(hasher, storage, m, nil)

		srv := httptest.NewServer(NewRouter(authService, userService, logger.NewNoOpLogger()))
		defer srv.Close()

		fn(apiClient{t: t, url: srv.URL}, storage, m)
	})
}

func registerFields(username string) map[string]string {
	return map[string]string{
		"fullName": "Alice Liddell",
		"email":    username + "@example.com",
		"username": username,
		"password": "correct-password",
	}
}

var avatarOnly = map[string]string{"avatar": "image/png"}

func register(api apiClient, username string) {
	api.t.Helper()
	resp := api.Multipart(http.MethodPost, "/register", registerFields(username), avatarOnly)
	require.Equalf(api.t, http.StatusCreated, resp.StatusCode, "register failed: %s", resp.Raw)
}

func login(api apiClient, username string, password string) (apiResponse, tokensResponse) {
	api.t.Helper()
	resp := api.JSON(http.MethodPost, "/login", fmt.Sprintf(`{"username": %q, "password": %q}`, username, password))
	var data tokensResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(api.t, json.Unmarshal(resp.Body.Data, &data))
	}
	return resp, data
}

func Test_AuthAPI(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(api apiClient, storage repository.Storage, m *fakeMedia)) {
		withAPI(t, pg.Pool, fn)
	}

	t.Run("register", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, m *fakeMedia) {
				resp := api.Multipart(http.MethodPost, "/register", registerFields("alice"), map[string]string{
					"avatar":     "image/png",
					"coverImage": "image/jpeg",
				})

				require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
				require.True(t, resp.Body.Success)
				require.Equal(t, "User registered successfully", resp.Body.Message)

				var u map[string]any
				require.NoError(t, json.Unmarshal(resp.Body.Data, &u))
				assert.Equal(t, "alice", u["username"])
				assert.Equal(t, "alice@example.com", u["email"])
				assert.NotEmpty(t, u["avatar"])
				assert.NotEmpty(t, u["coverImage"])
				assert.NotContains(t, resp.Raw, "HashedPassword")
				assert.NotContains(t, resp.Raw, "password")
				assert.NotContains(t, resp.Raw, "refresh")
				assert.Equal(t, 2, m.Len())
				assert.Empty(t, resp.Cookies(), "register does not start session")
			})
		})

		t.Run("duplicate", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
				register(api, "alice")

				resp := api.Multipart(http.MethodPost, "/register", registerFields("alice"), avatarOnly)

				require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
				require.JSONEq(t, `{
						"statusCode": 409,
						"message": "User with email or username already exists",
						"success": false
					}`,
					resp.Raw,
				)
			})
		})

		t.Run("avatar missing", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
				resp := api.Multipart(http.MethodPost, "/register", registerFields("alice"), nil)

				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
				require.Equal(t, "Avatar is required", resp.Body.Message)
			})
		})

		t.Run("avatar is not an image", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
				resp := api.Multipart(http.MethodPost, "/register", registerFields("alice"), map[string]string{"avatar": "application/pdf"})

				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		})

		t.Run("invalid fields", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
				fields := registerFields("alice")
				fields["email"] = "not-an-email"
				delete(fields, "password")

				resp := api.Multipart(http.MethodPost, "/register", fields, avatarOnly)

				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
				require.Equal(t, map[string]string{
					"email":    "Invalid email address",
					"password": "This field is required",
				}, resp.Body.Errors)
			})
		})

		t.Run("not multipart", func(t *testing.T) {
			withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
				resp := api.JSON(http.MethodPost, "/register", `{"username": "alice"}`)

				require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		})
	})

	t.Run("login ok sets cookies", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")

			resp, tokens := login(api, "alice", "correct-password")

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
			require.Equal(t, "User logged in successfully", resp.Body.Message)
			require.NotEmpty(t, tokens.AccessToken)
			require.NotEmpty(t, tokens.RefreshToken)

			var data struct {
				User map[string]any `json:"user"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Data, &data))
			require.Equal(t, "alice", data.User["username"])

			for name, value := range map[string]string{
				auth.AccessCookieName:  tokens.AccessToken,
				auth.RefreshCookieName: tokens.RefreshToken,
			} {
				cookie := resp.Cookie(name)
				require.NotNil(t, cookie, "cookie %s has to be set", name)
				require.Equal(t, value, cookie.Value)
				require.True(t, cookie.HttpOnly, "token cookie should be HttpOnly")
				require.Equal(t, "/", cookie.Path)
				require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
			}
			require.InDelta(t, (24 * time.Hour).Seconds(), resp.Cookie(auth.RefreshCookieName).MaxAge, 2, "max age should be refresh TTL")
		})
	})

	t.Run("login by email", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")

			resp := api.JSON(http.MethodPost, "/login", `{"email": "alice@example.com", "password": "correct-password"}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
		})
	})

	t.Run("login wrong password", func(t *testing.T) {
		withTx(t, func(api apiClient, storage repository.Storage, _ *fakeMedia) {
			register(api, "alice")
			_, before := login(api, "alice", "correct-password")

			resp, _ := login(api, "alice", "wrong-password")

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
			require.JSONEq(t, `{
					"statusCode": 401,
					"message": "Invalid user credentials",
					"success": false
				}`,
				resp.Raw,
			)
			require.Empty(t, resp.Cookies(), "no cookies should be set on login error")

			u, err := storage.User().GetUserByLogin(t.Context(), "alice", "")
			require.NoError(t, err)
			require.Equal(t, before.RefreshToken, *u.RefreshToken, "stored refresh token unchanged")
		})
	})

	t.Run("login unknown user looks the same", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			resp, _ := login(api, "nobody", "correct-password")

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "Invalid user credentials", resp.Body.Message)
		})
	})

	t.Run("login missing fields", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			resp := api.JSON(http.MethodPost, "/login", `{}`)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, map[string]string{
				"username": "This field is required",
				"password": "This field is required",
			}, resp.Body.Errors)
		})
	})

	t.Run("refresh rotates and rejects replay", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")
			_, initial := login(api, "alice", "correct-password")

			resp := api.JSON(http.MethodPost, "/refresh-token", fmt.Sprintf(`{"refreshToken": %q}`, initial.RefreshToken))

			require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
			var next tokensResponse
			require.NoError(t, json.Unmarshal(resp.Body.Data, &next))
			require.NotEqual(t, initial.AccessToken, next.AccessToken)
			require.NotEqual(t, initial.RefreshToken, next.RefreshToken)
			require.Equal(t, next.RefreshToken, resp.Cookie(auth.RefreshCookieName).Value)

			resp = api.JSON(http.MethodPost, "/refresh-token", fmt.Sprintf(`{"refreshToken": %q}`, initial.RefreshToken))

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "Refresh token has been rotated or revoked", resp.Body.Message)
		})
	})

	t.Run("refresh from cookie", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")
			_, initial := login(api, "alice", "correct-password")

			resp := api.do(http.MethodPost, "/refresh-token", "", nil, withCookie(auth.RefreshCookieName, initial.RefreshToken))

			require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
		})
	})

	t.Run("refresh invalid", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")
			_, tokens := login(api, "alice", "correct-password")

			tests := []struct {
				name        string
				body        string
				wantMessage string
			}{
				{"no token", ``, "Unauthorized request"},
				{"garbage", `{"refreshToken": "garbage"}`, "Invalid refresh token"},
				{"access token", fmt.Sprintf(`{"refreshToken": %q}`, tokens.AccessToken), "Invalid refresh token"},
			}

			for _, tt := range tests {
				resp := api.JSON(http.MethodPost, "/refresh-token", tt.body)

				require.Equal(t, http.StatusUnauthorized, resp.StatusCode, tt.name)
				require.Equal(t, tt.wantMessage, resp.Body.Message, tt.name)
			}
		})
	})

	t.Run("refresh body too large", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			body := `{"refreshToken": "` + strings.Repeat("a", 2<<20) + `"}`

			resp := api.JSON(http.MethodPost, "/refresh-token", body)

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Contains(t, resp.Body.Message, "Request body is too large")
		})
	})

	t.Run("logout then refresh fails", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			register(api, "alice")
			_, tokens := login(api, "alice", "correct-password")

			resp := api.do(http.MethodPost, "/logout", "", nil, bearer(tokens.AccessToken))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", resp.Raw)
			for _, name := range []string{auth.AccessCookieName, auth.RefreshCookieName} {
				cookie := resp.Cookie(name)
				require.NotNil(t, cookie)
				require.Empty(t, cookie.Value)
				require.Negative(t, cookie.MaxAge, "cookie has to be cleared")
			}

			resp = api.JSON(http.MethodPost, "/refresh-token", fmt.Sprintf(`{"refreshToken": %q}`, tokens.RefreshToken))
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})

	t.Run("logout requires access token", func(t *testing.T) {
		withTx(t, func(api apiClient, _ repository.Storage, _ *fakeMedia) {
			resp := api.do(http.MethodPost, "/logout", "", nil)

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	})
}
