package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
)

var (
	// ErrNotConnected is returned by send operations on a session that has
	// not completed the handshake.
	ErrNotConnected = errors.New("session is not connected")
)

const (
	sessionDBFile   = "session.db"
	sessionMetaFile = "meta.json"
	eventQueueSize  = 256
)

// reconnectAttempt is the internal tick scheduled by the backoff policy.
type reconnectAttempt struct{}

// ConnectionController owns one connection to the chat network: its
// credential store, its lifecycle state machine, and the per-session event
// pipeline (extract, enrich, dispatch).
type ConnectionController struct {
	sessionID string
	numberID  string
	tenantID  string
	dir       string

	container *sqlstore.Container
	client    *whatsmeow.Client

	dispatcher *WebhookDispatcher
	extractor  *MessageExtractor
	media      *MediaStore
	profiles   *ProfileCache

	limiter *rate.Limiter
	backoff *ReconnectPolicy

	// onRemove is invoked on terminal logout so the registry drops the
	// session without the controller importing it.
	onRemove func(sessionID, numberID string)

	mu          sync.RWMutex
	status      models.SessionStatus
	qrCode      string
	phoneNumber string
	displayName string
	connectedAt *time.Time

	events          chan any
	done            chan struct{}
	runOnce         sync.Once
	closeOnce       sync.Once
	localDisconnect atomic.Bool
}

// newConnectionController opens (or creates) the per-session credential
// store under dir and prepares the whatsmeow client. It does not connect.
func newConnectionController(ctx context.Context, dir string, sessionID string, meta models.SessionMeta,
	dispatcher *WebhookDispatcher, media *MediaStore, profiles *ProfileCache, onRemove func(sessionID, numberID string)) (*ConnectionController, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	dsn := "file:" + filepath.Join(dir, sessionDBFile) + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil || device == nil {
		device = container.NewDevice()
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))
	// Reconnection is driven by our own backoff policy, not the library.
	client.EnableAutoReconnect = false

	c := &ConnectionController{
		sessionID:  sessionID,
		numberID:   meta.NumberID,
		tenantID:   meta.TenantID,
		dir:        dir,
		container:  container,
		client:     client,
		dispatcher: dispatcher,
		extractor:  NewMessageExtractor(container.LIDMap),
		media:      media,
		profiles:   profiles,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5),
		backoff:    NewReconnectPolicy(),
		onRemove:   onRemove,
		status:     models.StatusConnecting,
		events:     make(chan any, eventQueueSize),
		done:       make(chan struct{}),
	}

	client.AddEventHandler(c.enqueue)

	if err := c.writeMeta(meta); err != nil {
		log.Printf("⚠️  Failed to persist session metadata for %s: %v", sessionID, err)
	}

	return c, nil
}

// Start launches the event pipeline and begins connecting. A session
// without credentials goes through QR pairing first.
func (c *ConnectionController) Start(ctx context.Context) error {
	// A reconnect reuses the existing pipeline goroutine.
	c.runOnce.Do(func() {
		go c.run()
	})

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to open pairing channel: %w", err)
		}
		go func() {
			for item := range qrChan {
				c.enqueue(item)
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// run is the single goroutine that owns all state transitions for this
// session. Message events are processed in arrival order, which preserves
// per-chat ordering toward the webhook consumer.
func (c *ConnectionController) run() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

// enqueue feeds both whatsmeow callbacks and internal ticks into the
// pipeline. A full queue drops the event rather than blocking the socket
// reader.
func (c *ConnectionController) enqueue(ev any) {
	select {
	case c.events <- ev:
	default:
		log.Printf("⚠️  Event queue full for %s - dropping %T", c.sessionID, ev)
	}
}

func (c *ConnectionController) handleEvent(ev any) {
	switch e := ev.(type) {
	case whatsmeow.QRChannelItem:
		c.handleQRItem(e)

	case *events.Connected:
		c.handleConnected()

	case *events.PairSuccess:
		log.Printf("🔗 Pairing completed for %s (%s)", c.sessionID, e.ID.User)

	case *events.LoggedOut:
		c.handleLoggedOut()

	case *events.Disconnected:
		if c.localDisconnect.Load() {
			return
		}
		c.handleTransientDisconnect("stream closed")

	case *events.StreamReplaced:
		c.handleTransientDisconnect("stream replaced by another client")

	case *events.ConnectFailure:
		c.handleTransientDisconnect(fmt.Sprintf("connect failure: %s", e.Reason))

	case *events.KeepAliveTimeout:
		log.Printf("⚠️  Keepalive timeout for %s (errors=%d)", c.sessionID, e.ErrorCount)

	case reconnectAttempt:
		c.handleReconnectAttempt()

	case *events.Message:
		c.handleMessage(e)

	case *events.Receipt:
		c.handleReceipt(e)
	}
}

func (c *ConnectionController) handleQRItem(item whatsmeow.QRChannelItem) {
	switch item.Event {
	case "code":
		png, err := qrcode.Encode(item.Code, qrcode.Medium, 256)
		if err != nil {
			log.Printf("❌ Failed to render QR code for %s: %v", c.sessionID, err)
			return
		}
		payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

		c.mu.Lock()
		c.status = models.StatusQRCode
		c.qrCode = payload
		c.mu.Unlock()

		log.Printf("📱 QR code issued for %s", c.sessionID)
		c.emit("qr_code", map[string]any{"qrCode": payload})

	case whatsmeow.QRChannelSuccess.Event:
		log.Printf("✅ QR scanned for %s", c.sessionID)

	case whatsmeow.QRChannelTimeout.Event:
		// The pairing channel is consumed; reconnecting would never surface
		// a fresh code. Park the session so create() can restart pairing.
		log.Printf("⌛ QR pairing timed out for %s - disconnecting until the next create", c.sessionID)
		c.Disconnect()

	case "error":
		log.Printf("❌ QR pairing error for %s: %v", c.sessionID, item.Error)
	}
}

func (c *ConnectionController) handleConnected() {
	now := time.Now()
	phone := ""
	if c.client.Store.ID != nil {
		phone = c.client.Store.ID.User
	}
	name := c.client.Store.PushName

	c.mu.Lock()
	c.status = models.StatusConnected
	c.qrCode = ""
	c.phoneNumber = phone
	c.displayName = name
	c.connectedAt = &now
	c.mu.Unlock()

	c.backoff.Reset()
	if err := c.writeMeta(models.SessionMeta{NumberID: c.numberID, TenantID: c.tenantID, PhoneNumber: phone}); err != nil {
		log.Printf("⚠️  Failed to update session metadata for %s: %v", c.sessionID, err)
	}

	log.Printf("✅ Session %s connected as %s (%s)", c.sessionID, phone, name)
	c.emit("connected", map[string]any{"phoneNumber": phone, "pushName": name})
}

func (c *ConnectionController) handleTransientDisconnect(reason string) {
	c.mu.Lock()
	if c.status == models.StatusLoggedOut || c.status == models.StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = models.StatusReconnecting
	c.mu.Unlock()

	log.Printf("🔄 Session %s lost connection (%s) - scheduling reconnect", c.sessionID, reason)
	c.emit("reconnecting", nil)
	c.scheduleReconnect()
}

func (c *ConnectionController) scheduleReconnect() {
	delay := c.backoff.Next()
	log.Printf("⏳ Session %s reconnecting in %s", c.sessionID, delay.Round(time.Millisecond))
	time.AfterFunc(delay, func() {
		c.enqueue(reconnectAttempt{})
	})
}

func (c *ConnectionController) handleReconnectAttempt() {
	if c.Status() != models.StatusReconnecting {
		return
	}
	if err := c.client.Connect(); err != nil {
		log.Printf("⚠️  Reconnect failed for %s: %v", c.sessionID, err)
		c.scheduleReconnect()
	}
}

// handleLoggedOut is the terminal transition: the remote side revoked the
// pairing, so the credentials are erased and the session leaves the
// registry. No reconnection is ever attempted afterwards.
func (c *ConnectionController) handleLoggedOut() {
	c.mu.Lock()
	c.status = models.StatusLoggedOut
	c.qrCode = ""
	c.mu.Unlock()

	log.Printf("🚪 Session %s logged out remotely - erasing credentials", c.sessionID)
	c.emit("logged_out", nil)

	c.client.Disconnect()
	c.eraseCredentials()
	c.stop()

	if c.onRemove != nil {
		c.onRemove(c.sessionID, c.numberID)
	}
}

func (c *ConnectionController) handleMessage(evt *events.Message) {
	ctx := context.Background()

	cm := c.extractor.Extract(ctx, evt)
	if cm == nil {
		return
	}

	if isMediaKind(cm.Kind) {
		cm.Media = c.media.Acquire(ctx, c.client, evt.Message, evt.Info.ID, cm.Kind)
	}
	if cm.IsGroup {
		cm.GroupDisplayName = c.profiles.ResolveGroupName(ctx, c.client, evt.Info.Chat)
	}

	payload := structToMap(cm)
	if avatar := c.profiles.ResolveProfilePicture(ctx, c.client, evt.Info.Chat); avatar != nil {
		payload["profilePicture"] = *avatar
	}

	c.emit("message", payload)
}

func (c *ConnectionController) handleReceipt(evt *events.Receipt) {
	status := receiptStatus(evt.Type)
	if status == "" {
		return
	}
	chat := evt.Chat.ToNonAD().String()
	for _, id := range evt.MessageIDs {
		c.emit("message_status", map[string]any{
			"messageId": id,
			"remoteJid": chat,
			"status":    status,
		})
	}
}

func receiptStatus(t events.ReceiptType) string {
	switch t {
	case events.ReceiptTypeSender:
		return models.StatusSent
	case events.ReceiptTypeDelivered:
		return models.StatusDelivered
	case events.ReceiptTypeRead, events.ReceiptTypeReadSelf:
		return models.StatusRead
	default:
		return ""
	}
}

// SendText sends a plain text message. The session must be connected.
func (c *ConnectionController) SendText(ctx context.Context, to, text string) (string, error) {
	if c.Status() != models.StatusConnected {
		return "", ErrNotConnected
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	jid := composeJID(to)
	extra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}
	msg := &waE2E.Message{Conversation: proto.String(text)}

	if _, err := c.client.SendMessage(ctx, jid, msg, extra); err != nil {
		return "", err
	}

	c.emit("message_status", map[string]any{
		"messageId": extra.ID,
		"remoteJid": jid.String(),
		"status":    models.StatusSent,
	})
	return extra.ID, nil
}

// SendMedia uploads the payload to the network and sends it as the given
// kind (image, video, audio, document).
func (c *ConnectionController) SendMedia(ctx context.Context, req models.SendMediaRequest) (string, error) {
	if c.Status() != models.StatusConnected {
		return "", ErrNotConnected
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(req.Media)
	if err != nil {
		return "", fmt.Errorf("invalid media payload: %w", err)
	}

	mediaType, err := uploadType(req.Kind)
	if err != nil {
		return "", err
	}

	uploaded, err := c.client.Upload(ctx, data, mediaType)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	msg := buildMediaMessage(req, data, uploaded)
	jid := composeJID(req.To)
	extra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}

	if _, err := c.client.SendMessage(ctx, jid, msg, extra); err != nil {
		return "", err
	}

	c.emit("message_status", map[string]any{
		"messageId": extra.ID,
		"remoteJid": jid.String(),
		"status":    models.StatusSent,
	})
	return extra.ID, nil
}

// Disconnect closes the connection but keeps credentials and registration.
// No further events are emitted until an explicit reconnect.
func (c *ConnectionController) Disconnect() {
	c.localDisconnect.Store(true)

	c.mu.Lock()
	c.status = models.StatusDisconnected
	c.qrCode = ""
	c.mu.Unlock()

	c.emit("disconnected", nil)
	c.client.Disconnect()
	log.Printf("🔌 Session %s disconnected locally (credentials preserved)", c.sessionID)
}

// Reconnect resumes a locally disconnected session.
func (c *ConnectionController) Reconnect(ctx context.Context) error {
	c.localDisconnect.Store(false)

	c.mu.Lock()
	c.status = models.StatusConnecting
	c.mu.Unlock()

	return c.Start(ctx)
}

// destroy tears the session down. With erase set the credential directory
// is removed as well.
func (c *ConnectionController) destroy(erase bool) {
	c.localDisconnect.Store(true)
	c.client.Disconnect()
	c.stop()
	if erase {
		c.eraseCredentials()
	}
}

func (c *ConnectionController) eraseCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Store.Delete(ctx); err != nil {
		log.Printf("⚠️  Failed to delete device store for %s: %v", c.sessionID, err)
	}
	if err := c.container.Close(); err != nil {
		log.Printf("⚠️  Failed to close credential store for %s: %v", c.sessionID, err)
	}
	if err := os.RemoveAll(c.dir); err != nil {
		log.Printf("⚠️  Failed to remove credential directory for %s: %v", c.sessionID, err)
	}
}

func (c *ConnectionController) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Status returns the current lifecycle state.
func (c *ConnectionController) Status() models.SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Info returns a snapshot of the session for the control surface.
func (c *ConnectionController) Info() models.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return models.SessionInfo{
		SessionID:   c.sessionID,
		NumberID:    c.numberID,
		TenantID:    c.tenantID,
		Status:      c.status,
		QRCode:      c.qrCode,
		PhoneNumber: c.phoneNumber,
		DisplayName: c.displayName,
		ConnectedAt: c.connectedAt,
	}
}

func (c *ConnectionController) emit(event string, payload map[string]any) {
	c.dispatcher.Emit(c.sessionID, c.tenantID, event, payload)
}

func (c *ConnectionController) writeMeta(meta models.SessionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, sessionMetaFile), data, 0o644)
}

// composeJID turns a bare phone number or full JID string into a typed JID.
func composeJID(id string) types.JID {
	if strings.ContainsRune(id, '@') {
		if parsed, err := types.ParseJID(id); err == nil {
			return parsed
		}
	}
	id = strings.TrimPrefix(strings.TrimSpace(id), "+")
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

func uploadType(kind string) (whatsmeow.MediaType, error) {
	switch kind {
	case "image":
		return whatsmeow.MediaImage, nil
	case "video":
		return whatsmeow.MediaVideo, nil
	case "audio":
		return whatsmeow.MediaAudio, nil
	case "document":
		return whatsmeow.MediaDocument, nil
	default:
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}
}

func buildMediaMessage(req models.SendMediaRequest, data []byte, up whatsmeow.UploadResponse) *waE2E.Message {
	switch req.Kind {
	case "image":
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(req.MimeType),
			Caption:       proto.String(req.Caption),
			FileLength:    proto.Uint64(uint64(len(data))),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	case "video":
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(req.MimeType),
			Caption:       proto.String(req.Caption),
			FileLength:    proto.Uint64(uint64(len(data))),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	case "audio":
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(req.MimeType),
			FileLength:    proto.Uint64(uint64(len(data))),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(req.MimeType),
			FileName:      proto.String(req.Filename),
			Caption:       proto.String(req.Caption),
			FileLength:    proto.Uint64(uint64(len(data))),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	}
}
