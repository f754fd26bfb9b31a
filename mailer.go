package contacts

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"text/template"

	goerrors "github.com/goliatone/go-errors"
)

// Message is an outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Dispatcher delivers email. Delivery runs after the triggering state
// change has committed; a failure is logged, it never rolls anything back.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPDispatcher sends mail over SMTP with STARTTLS and plain auth.
type SMTPDispatcher struct {
	cfg    SMTPConfig
	logger Logger
	// send is swappable for tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPDispatcher(cfg SMTPConfig) *SMTPDispatcher {
	return &SMTPDispatcher{
		cfg:    cfg,
		logger: defLogger{},
		send:   smtp.SendMail,
	}
}

func (d *SMTPDispatcher) WithLogger(logger Logger) *SMTPDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before email send")
	default:
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)

	var auth smtp.Auth
	if d.cfg.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
	}

	if err := d.send(addr, auth, d.cfg.From, []string{msg.To}, encodeMessage(d.cfg.From, msg)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed").
			WithMetadata(map[string]any{"to": msg.To})
	}

	return nil
}

func encodeMessage(from string, msg Message) []byte {
	var b strings.Builder
	boundary := "gocontacts-alt"

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.TextBody)
	if msg.HTMLBody != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}

// AsyncDispatcher hands messages to a background worker. Failures are
// logged and dropped: notification delivery is best effort and never
// surfaces to the caller whose state change already committed.
type AsyncDispatcher struct {
	inner  Dispatcher
	queue  chan Message
	done   chan struct{}
	logger Logger

	mu     sync.Mutex
	closed bool
}

func NewAsyncDispatcher(inner Dispatcher, buffer int) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 64
	}

	d := &AsyncDispatcher{
		inner:  inner,
		queue:  make(chan Message, buffer),
		done:   make(chan struct{}),
		logger: defLogger{},
	}

	go d.worker()

	return d
}

func (d *AsyncDispatcher) WithLogger(logger Logger) *AsyncDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Send enqueues the message. When the queue is full or the dispatcher is
// closed the message is dropped and logged rather than blocking the
// request path.
func (d *AsyncDispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Error("mail dispatcher closed, dropping message to=%s subject=%q", msg.To, msg.Subject)
		return nil
	}

	select {
	case d.queue <- msg:
	default:
		d.logger.Error("mail queue full, dropping message to=%s subject=%q", msg.To, msg.Subject)
	}
	return nil
}

// Close stops accepting messages and waits for the worker to drain.
// Calling Close more than once is safe.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *AsyncDispatcher) worker() {
	defer close(d.done)
	for msg := range d.queue {
		if err := d.inner.Send(context.Background(), msg); err != nil {
			d.logger.Error("failed to send email to=%s: %v", msg.To, err)
		}
	}
}

var (
	_ Dispatcher = (*SMTPDispatcher)(nil)
	_ Dispatcher = (*AsyncDispatcher)(nil)
)

var verificationText = template.Must(template.New("verification_text").Parse(
	"Hi!\nPlease verify your email by clicking on the link: {{.Link}}\n"))

var verificationHTML = template.Must(template.New("verification_html").Parse(
	`<html><body><p>Hi!<br>Please verify your email by clicking the link below:<br><a href="{{.Link}}">Verify Email</a></p></body></html>`))

var passwordResetText = template.Must(template.New("reset_text").Parse(
	"Hi!\nWe received a request to reset your password. Follow the link to choose a new one: {{.Link}}\nIf you did not request this you can ignore this message.\n"))

var passwordResetHTML = template.Must(template.New("reset_html").Parse(
	`<html><body><p>Hi!<br>We received a request to reset your password.<br><a href="{{.Link}}">Reset Password</a><br>If you did not request this you can ignore this message.</p></body></html>`))

// VerificationEmail builds the signup confirmation message carrying the
// email_verification token link.
func VerificationEmail(to, link string) Message {
	return Message{
		To:       to,
		Subject:  "Verify your email",
		TextBody: renderTemplate(verificationText, link),
		HTMLBody: renderTemplate(verificationHTML, link),
	}
}

// PasswordResetEmail builds the recovery message carrying the
// password_reset token link.
func PasswordResetEmail(to, link string) Message {
	return Message{
		To:       to,
		Subject:  "Reset your password",
		TextBody: renderTemplate(passwordResetText, link),
		HTMLBody: renderTemplate(passwordResetHTML, link),
	}
}

func renderTemplate(t *template.Template, link string) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Link string }{Link: link}); err != nil {
		return ""
	}
	return buf.String()
}
