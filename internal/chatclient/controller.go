package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-chat/internal/models"
	"github.com/Vasu1712/scenyx-chat/internal/protocol"
)

const (
	DefaultTypingInterval = 2 * time.Second
	DefaultTypingTimeout  = 3 * time.Second
)

// Controller drives one user's chat session. Sent messages are not echoed
// locally; they appear when the server broadcasts them back.
type Controller struct {
	State *State
	// OnEvent, when set, sees every server event after it has been applied.
	OnEvent func(protocol.Envelope)

	TypingInterval time.Duration
	TypingTimeout  time.Duration

	baseURL string
	token   string
	http    *http.Client
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  uint64

	typingMu     sync.Mutex
	typingConv   string
	typingSentAt time.Time
	typingTimer  *time.Timer
	typingGen    uint64
}

// Dial opens the socket at baseURL (http or https) and authenticates with
// token. Call Run to start receiving events.
func Dial(ctx context.Context, baseURL, token string) (*Controller, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse server url")
	}
	wsURL := *u
	wsURL.Scheme = "ws"
	if u.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path += "/ws"
	wsURL.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial chat socket")
	}
	return &Controller{
		State:          NewState(),
		TypingInterval: DefaultTypingInterval,
		TypingTimeout:  DefaultTypingTimeout,
		baseURL:        u.String(),
		token:          token,
		http:           &http.Client{Timeout: 30 * time.Second},
		conn:           conn,
	}, nil
}

// Run applies server events until the socket closes or ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read chat socket")
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.WithError(err).Warn("ignoring malformed frame")
			continue
		}
		if err := c.State.Apply(env); err != nil {
			log.WithError(err).WithField("event", env.Event).Warn("failed to apply event")
		}
		if c.OnEvent != nil {
			c.OnEvent(env)
		}
	}
}

func (c *Controller) Close() error {
	c.stopTypingTimer()
	return c.conn.Close()
}

func (c *Controller) requestID() string {
	return strconv.FormatUint(atomic.AddUint64(&c.nextID, 1), 10)
}

func (c *Controller) send(in protocol.Inbound, requestID string) error {
	if err := in.Validate(); err != nil {
		return err
	}
	frame, err := protocol.EncodeInbound(in, requestID)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrapf(c.conn.WriteMessage(websocket.TextMessage, frame), "send %s", in.Kind())
}

// SetActive switches the open conversation: leave the previous room, join the
// new one, load its latest page and mark it read, in that order.
func (c *Controller) SetActive(ctx context.Context, convID string) error {
	if prev := c.State.Active(); prev != "" && prev != convID {
		if err := c.send(&protocol.LeaveRoom{ConversationID: prev}, ""); err != nil {
			return err
		}
	}
	if err := c.send(&protocol.JoinRoom{ConversationID: convID}, c.requestID()); err != nil {
		return err
	}
	c.State.SetActive(convID)
	page, err := c.FetchMessages(ctx, convID, time.Time{})
	if err != nil {
		return err
	}
	c.State.Load(convID, page)
	return c.send(&protocol.MarkRead{ConversationID: convID}, "")
}

// LoadOlder fetches the page before the oldest message held for the active
// conversation and reports how many messages it returned.
func (c *Controller) LoadOlder(ctx context.Context) (int, error) {
	convID := c.State.Active()
	if convID == "" {
		return 0, errors.New("no active conversation")
	}
	oldest, ok := c.State.Oldest(convID)
	if !ok {
		return 0, nil
	}
	page, err := c.FetchMessages(ctx, convID, oldest.CreatedAt)
	if err != nil {
		return 0, err
	}
	c.State.Load(convID, page)
	return len(page), nil
}

// SendMessage sends to the active conversation and returns the request id the
// delivery acknowledgement will carry.
func (c *Controller) SendMessage(content string, attachments []models.Attachment, replyTo string) (string, error) {
	convID := c.State.Active()
	if convID == "" {
		return "", errors.New("no active conversation")
	}
	msg := protocol.SendMessage{ConversationID: convID, Content: content, Attachments: attachments, ReplyTo: replyTo}
	requestID := c.requestID()
	c.State.addPending(requestID, msg)
	c.stopTypingTimer()
	return requestID, c.send(&msg, requestID)
}

// Retry resends a pending message under its original request id.
func (c *Controller) Retry(requestID string) error {
	p, ok := c.State.Pending(requestID)
	if !ok {
		return errors.Errorf("no pending message %s", requestID)
	}
	c.State.addPending(requestID, p.Message)
	return c.send(&p.Message, requestID)
}

// Typing is called on every keystroke. It re-asserts typing at most once per
// TypingInterval and sends stop_typing after TypingTimeout without a call.
func (c *Controller) Typing() error {
	convID := c.State.Active()
	if convID == "" {
		return nil
	}
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	now := time.Now()
	var err error
	if c.typingConv != convID || now.Sub(c.typingSentAt) >= c.TypingInterval {
		err = c.send(&protocol.Typing{ConversationID: convID}, "")
		c.typingSentAt = now
	}
	c.typingConv = convID
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingGen++
	gen := c.typingGen
	c.typingTimer = time.AfterFunc(c.TypingTimeout, func() {
		if err := c.expireTyping(gen); err != nil {
			log.WithError(err).Debug("failed to clear typing")
		}
	})
	return err
}

// expireTyping sends stop_typing unless a later keystroke re-armed the timer.
func (c *Controller) expireTyping(gen uint64) error {
	c.typingMu.Lock()
	if gen != c.typingGen {
		c.typingMu.Unlock()
		return nil
	}
	convID := c.typingConv
	c.clearTyping()
	c.typingMu.Unlock()
	return c.send(&protocol.StopTyping{ConversationID: convID}, "")
}

// StopTyping clears the typing signal now.
func (c *Controller) StopTyping() error {
	c.typingMu.Lock()
	convID := c.typingConv
	c.clearTyping()
	c.typingMu.Unlock()
	if convID == "" {
		return nil
	}
	return c.send(&protocol.StopTyping{ConversationID: convID}, "")
}

// stopTypingTimer forgets the typing state without telling the server, which
// clears it on send.
func (c *Controller) stopTypingTimer() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	c.clearTyping()
}

func (c *Controller) clearTyping() {
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingConv = ""
	c.typingSentAt = time.Time{}
}

func (c *Controller) CreateGroup(name string, memberIDs ...string) error {
	return c.send(&protocol.CreateGroup{Name: name, MemberIDs: memberIDs}, c.requestID())
}

func (c *Controller) AddMember(convID, userID string, role models.Role) error {
	return c.send(&protocol.AddMember{ConversationID: convID, UserID: userID, Role: role}, c.requestID())
}

func (c *Controller) RemoveMember(convID, userID string) error {
	return c.send(&protocol.RemoveMember{ConversationID: convID, UserID: userID}, c.requestID())
}

func (c *Controller) React(messageID, emoji string) error {
	return c.send(&protocol.AddReaction{MessageID: messageID, Emoji: emoji}, c.requestID())
}

func (c *Controller) Unreact(messageID, emoji string) error {
	return c.send(&protocol.RemoveReaction{MessageID: messageID, Emoji: emoji}, c.requestID())
}

// OpenThread loads a thread's replies and marks them read.
func (c *Controller) OpenThread(ctx context.Context, parentID string) error {
	var replies []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/v1/messages/"+url.PathEscape(parentID)+"/replies", nil, "", &replies); err != nil {
		return err
	}
	c.State.OpenThread(parentID, replies)
	return c.do(ctx, http.MethodPost, "/api/v1/messages/"+url.PathEscape(parentID)+"/thread/read", nil, "", nil)
}

func (c *Controller) FetchMessages(ctx context.Context, convID string, before time.Time) ([]models.Message, error) {
	q := url.Values{}
	if !before.IsZero() {
		q.Set("before", before.Format(time.RFC3339Nano))
	}
	path := "/api/v1/conversations/" + url.PathEscape(convID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page []models.Message
	err := c.do(ctx, http.MethodGet, path, nil, "", &page)
	return page, err
}

func (c *Controller) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var list []models.ConversationSummary
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, "", &list)
	return list, err
}

func (c *Controller) StartDirect(ctx context.Context, sellerID string) (*models.Conversation, error) {
	body, _ := json.Marshal(map[string]string{"sellerId": sellerID})
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/direct", bytes.NewReader(body), "application/json", &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		p.fn(pct)
	}
	return n, err
}

// Upload sends an attachment, tracking it under tempID until it completes,
// fails or is cancelled with CancelUpload.
func (c *Controller) Upload(ctx context.Context, tempID, name string, r io.Reader, size int64) (*models.Attachment, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.State.startUpload(tempID, name, cancel)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, &progressReader{r: r, total: size, fn: func(pct int) { c.State.uploadProgress(tempID, pct) }})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var att models.Attachment
	err := c.do(ctx, http.MethodPost, "/api/v1/uploads", pr, mw.FormDataContentType(), &att)
	pr.CloseWithError(err)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Wrap(models.ErrUpload, "upload cancelled")
		}
		c.State.finishUpload(tempID, nil, err)
		return nil, err
	}
	c.State.finishUpload(tempID, &att, nil)
	return &att, nil
}

func (c *Controller) CancelUpload(tempID string) bool {
	return c.State.CancelUpload(tempID)
}

// do performs an authenticated API call and decodes a JSON response into out.
func (c *Controller) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure protocol.ErrorPayload
		json.NewDecoder(resp.Body).Decode(&failure)
		return apiError(resp.StatusCode, failure.Message)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s %s", method, path)
}

func apiError(status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	var kind error
	switch status {
	case http.StatusUnauthorized:
		kind = models.ErrUnauthenticated
	case http.StatusForbidden:
		kind = models.ErrForbidden
	case http.StatusNotFound:
		kind = models.ErrNotFound
	case http.StatusBadRequest:
		kind = models.ErrInvalid
	case http.StatusRequestEntityTooLarge:
		kind = models.ErrUpload
	case http.StatusTooManyRequests:
		kind = models.ErrRateLimited
	default:
		return errors.Errorf("server returned %d: %s", status, message)
	}
	return errors.Wrap(kind, message)
}
