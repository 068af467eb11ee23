package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Config holds configuration for creating a Client.
type Config struct {
	// HomeserverURL is the base URL of the homeserver
	// (e.g. "https://matrix.example.org").
	HomeserverURL string
	// AccessToken authenticates every request.
	AccessToken string
	// UserID is the bot's fully-qualified user ID
	// (e.g. "@bot:example.org").
	UserID string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Client is a token-authenticated Matrix client. One Client serves the
// whole process; the sync loop in Listen delivers events serially on a
// single goroutine.
type Client struct {
	baseURL     string
	accessToken string
	userID      string
	httpClient  *http.Client
	logger      *slog.Logger

	mu             sync.RWMutex
	rooms          map[string]*Room
	pendingInvites []InviteEvent
	roomListeners  map[string][]MessageHandler
	inviteHandlers []InviteHandler
	leaveHandlers  []LeaveHandler
	nextBatch      string
}

// NewClient creates a Matrix client. It does not contact the server;
// call WhoAmI or InitialSync to validate credentials.
func NewClient(config Config) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("matrix: HomeserverURL is required")
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("matrix: AccessToken is required")
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("matrix: UserID is required")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("matrix: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       strings.TrimSuffix(config.HomeserverURL, "/"),
		accessToken:   config.AccessToken,
		userID:        config.UserID,
		httpClient:    httpClient,
		logger:        logger,
		rooms:         make(map[string]*Room),
		roomListeners: make(map[string][]MessageHandler),
	}, nil
}

// UserID returns the bot's own user ID.
func (c *Client) UserID() string {
	return c.userID
}

// doRequest performs an authenticated request and returns the response
// body. Non-2xx responses are parsed into *Error.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, reqBody any) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("matrix: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("matrix: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matrix: request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("matrix: failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		matrixErr := &Error{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, matrixErr); err != nil || matrixErr.Code == "" {
			matrixErr.Code = ErrCodeUnknown
			matrixErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, matrixErr
	}
	return respBody, nil
}

// WhoAmI validates the access token and returns the server's view of
// the authenticated user ID.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: whoami failed: %w", err)
	}
	var response struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// JoinRoom joins a room by ID or alias. The server resolves aliases;
// unknown references fail with a *JoinError.
func (c *Client) JoinRoom(ctx context.Context, ref string) (*Room, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(ref)
	body, err := c.doRequest(ctx, http.MethodPost, path, nil, struct{}{})
	if err != nil {
		return nil, &JoinError{Ref: ref, Err: err}
	}

	var response struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &JoinError{Ref: ref, Err: fmt.Errorf("failed to parse join response: %w", err)}
	}

	c.mu.Lock()
	room, ok := c.rooms[response.RoomID]
	if !ok {
		room = &Room{ID: response.RoomID}
		c.rooms[response.RoomID] = room
	}
	c.mu.Unlock()

	c.logger.Info("joined room", "ref", ref, "room_id", room.ID)
	return room, nil
}

// SendText sends a plain text message to a room. Fire-and-forget from
// the caller's perspective: failures are for logging, never retried.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	content := map[string]string{
		"msgtype": "m.text",
		"body":    text,
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) +
		"/send/m.room.message/" + uuid.NewString()
	if _, err := c.doRequest(ctx, http.MethodPut, path, nil, content); err != nil {
		return fmt.Errorf("matrix: send to %s failed: %w", roomID, err)
	}
	return nil
}

// JoinedMembers returns the currently joined members of a room, sorted
// by user ID.
func (c *Client) JoinedMembers(ctx context.Context, roomID string) ([]Member, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/joined_members"
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: joined members of %s failed: %w", roomID, err)
	}

	var response struct {
		Joined map[string]struct {
			DisplayName string `json:"display_name"`
		} `json:"joined"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse joined members response: %w", err)
	}

	members := make([]Member, 0, len(response.Joined))
	for userID, profile := range response.Joined {
		members = append(members, Member{UserID: userID, DisplayName: profile.DisplayName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// FindUser looks up a joined member of a room by user ID or display
// name, case-insensitively. Returns nil when no member matches.
func (c *Client) FindUser(ctx context.Context, roomID, idOrDisplayName string) (*Member, error) {
	members, err := c.JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if strings.EqualFold(members[i].UserID, idOrDisplayName) ||
			(members[i].DisplayName != "" && strings.EqualFold(members[i].DisplayName, idOrDisplayName)) {
			return &members[i], nil
		}
	}
	return nil, nil
}

// Presence returns a user's presence status ("online", "offline",
// "unavailable").
func (c *Client) Presence(ctx context.Context, userID string) (string, error) {
	path := "/_matrix/client/v3/presence/" + url.PathEscape(userID) + "/status"
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: presence of %s failed: %w", userID, err)
	}
	var response struct {
		Presence string `json:"presence"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse presence response: %w", err)
	}
	return response.Presence, nil
}
