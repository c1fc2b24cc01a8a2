package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/sse"
	"github.com/smart-daily/dailychat/internal/transport"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// Client calls the agent endpoints.
type Client struct {
	transport *transport.Client
	logger    *logger.Logger
}

// New creates an API client over t.
func New(t *transport.Client, log *logger.Logger) *Client {
	return &Client{
		transport: t,
		logger:    logger.OrNop(log).Named("api"),
	}
}

// Login exchanges a username and password for a credential and signs the
// authentication context in.
func (c *Client) Login(ctx context.Context, username, password string) (model.User, error) {
	data, err := json.Marshal(model.LoginRequest{Username: username, Password: password})
	if err != nil {
		return model.User{}, err
	}

	resp, err := c.transport.DoAnonymous(ctx, http.MethodPost, "/api/login", bytes.NewReader(data), "application/json")
	if err != nil {
		return model.User{}, err
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return model.User{}, fmt.Errorf("%w: status %d", auth.ErrAuthFailed, resp.StatusCode)
	}

	var out model.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.User{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	if err := c.transport.Auth().SignIn(out.Token, out.User); err != nil {
		return model.User{}, err
	}

	c.logger.Info("signed in", zap.Int("user_id", out.User.ID))
	return out.User, nil
}

// Logout tears down the authentication context.
func (c *Client) Logout() {
	c.transport.Auth().Logout()
}

// Confirm commits the pending report through the non-streaming path and
// returns the assistant reply. text is the confirmation the user typed.
func (c *Client) Confirm(ctx context.Context, sessionID model.SessionID, text string) (model.Message, error) {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodPost, "/api/chat", model.ConfirmRequest{
		Action:    model.ActionConfirm,
		SessionID: sessionID.Ptr(),
		Text:      text,
	})
	if err != nil {
		return model.Message{}, err
	}
	if !ok(resp) {
		return model.Message{}, decodeError("confirm", resp, body, "提交失败")
	}

	var out model.ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.Message{}, fmt.Errorf("failed to decode confirm response: %w", err)
	}

	msgType := out.Type
	if msgType == "" {
		msgType = model.TypeText
	}
	return model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   out.Content,
		Type:      msgType,
		Timestamp: time.Now(),
		Metadata:  out.Metadata,
	}, nil
}

// Stream opens a streamed chat request. The subscription ends when the
// agent closes the response or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req model.StreamRequest) (*sse.Subscription, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Do(ctx, http.MethodPost, "/api/chat/stream", bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, decodeError("stream", resp, body, "请求失败")
	}

	return sse.Subscribe(ctx, resp.Body, c.logger), nil
}

// CreateSession creates a persisted session.
func (c *Client) CreateSession(ctx context.Context, title string) (model.SessionInfo, error) {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodPost, "/api/sessions", model.CreateSessionRequest{Title: title})
	if err != nil {
		return model.SessionInfo{}, err
	}
	if !ok(resp) {
		return model.SessionInfo{}, decodeError("create session", resp, body, "创建会话失败")
	}

	var out model.SessionInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return model.SessionInfo{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return out, nil
}

// ListSessions lists the user's sessions. A non-array reply yields none.
func (c *Client) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodGet, "/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, decodeError("list sessions", resp, body, "加载会话失败")
	}

	var out []model.SessionInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return []model.SessionInfo{}, nil
	}
	return out, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id model.SessionID) error {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", id), nil)
	if err != nil {
		return err
	}
	if !ok(resp) {
		return decodeError("delete session", resp, body, "删除会话失败")
	}
	return nil
}

// LoadMessages fetches and rehydrates a session's persisted messages.
func (c *Client) LoadMessages(ctx context.Context, id model.SessionID) ([]model.Message, error) {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d/messages", id), nil)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		return nil, decodeError("load messages", resp, body, "加载消息失败")
	}

	var rows []model.MessageRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return RowsToMessages(rows), nil
}

// PreviewImport uploads an import file for parsing. Nothing is stored.
func (c *Client) PreviewImport(ctx context.Context, filename string, file io.Reader) (*model.PreviewResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	resp, err := c.transport.Do(ctx, http.MethodPost, "/api/import/preview", &buf, form.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrTransport, err)
	}
	if !ok(resp) {
		return nil, decodeError("import preview", resp, body, "解析失败")
	}

	var out model.PreviewResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return &out, nil
}

// ConfirmImport commits a previewed import. A rejected token yields an
// *Error wrapping ErrConfirmationToken.
func (c *Client) ConfirmImport(ctx context.Context, token string) (*model.ConfirmResult, error) {
	resp, body, err := c.transport.DoJSON(ctx, http.MethodPost, "/api/import/confirm", model.ImportConfirmRequest{Token: token})
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		apiErr := decodeError("import confirm", resp, body, "导入失败")
		if resp.StatusCode < http.StatusInternalServerError {
			apiErr.kind = ErrConfirmationToken
		}
		return nil, apiErr
	}

	var out model.ConfirmResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode import result: %w", err)
	}
	return &out, nil
}

// Internal rows written by the agent's data tooling.
const (
	systemRolePrefix = "system:"
	askerMarker      = "（注：提问者是"
)

// RowsToMessages rehydrates persisted rows. Internal system rows and
// duplicated asker rows are dropped; an unparsable assistant config yields
// empty metadata.
func RowsToMessages(rows []model.MessageRow) []model.Message {
	messages := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		if strings.HasPrefix(row.Role, systemRolePrefix) {
			continue
		}
		if row.Role == string(model.RoleUser) && strings.Contains(row.Content, askerMarker) {
			continue
		}

		ts := time.Unix(row.CreatedAt, 0)
		id := fmt.Sprintf("%d", row.ID)

		if row.Role == string(model.RoleUser) {
			msg := model.Message{
				ID:        id,
				Role:      model.RoleUser,
				Content:   row.Content,
				Timestamp: ts,
			}
			if md := parseConfig(row.Config); md.SupplementDate != "" {
				msg.Metadata = &model.Metadata{SupplementDate: md.SupplementDate}
			}
			messages = append(messages, msg)
			continue
		}

		md := parseConfig(row.Config)
		md.ThinkingDone = true

		msgType := model.MessageType(md.Type)
		if msgType == "" {
			msgType = model.TypeText
		}
		content := row.Content
		if content == "" {
			content = row.Response
		}

		messages = append(messages, model.Message{
			ID:        id,
			Role:      model.RoleAssistant,
			Content:   content,
			Type:      msgType,
			Timestamp: ts,
			Metadata:  md,
		})
	}
	return messages
}

func parseConfig(raw string) *model.Metadata {
	if raw == "" {
		return &model.Metadata{}
	}
	md, err := model.MetadataFromPayload(json.RawMessage(raw))
	if err != nil {
		return &model.Metadata{}
	}
	return md
}
