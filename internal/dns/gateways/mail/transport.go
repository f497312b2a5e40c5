package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

const (
	// DefaultPort is the implicit-TLS submission port.
	DefaultPort    = 465
	DefaultTimeout = 30 * time.Second
)

const (
	errHostRequired      = "smtp host is required"
	errSenderRequired    = "mail sender is required"
	errNoRecipients      = "at least one mail recipient is required"
	errInvalidSender     = "invalid sender %q: %w"
	errInvalidRecipients = "invalid recipients: %w"
	errClient            = "smtp client: %w"
	errSend              = "smtp send via %s:%d: %w"
)

// Dialer sends messages over a single SMTP session.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// NewClientFunc builds a Dialer for one send.
type NewClientFunc func(host string, opts ...gomail.Option) (Dialer, error)

// Options configures the SMTP transport.
type Options struct {
	// required parameters
	Host string
	// optional parameters
	Port     int
	Username string
	Password string
	Timeout  time.Duration
	// injectable for tests
	NewClient NewClientFunc
}

// Transport delivers plain-text mail over implicit TLS. Each Send opens a
// fresh session and closes it when the message is delivered.
type Transport struct {
	host      string
	port      int
	username  string
	password  string
	timeout   time.Duration
	newClient NewClientFunc
}

func defaultNewClient(host string, opts ...gomail.Option) (Dialer, error) {
	return gomail.NewClient(host, opts...)
}

// NewTransport validates opts and applies defaults.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf(errHostRequired)
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewClient == nil {
		opts.NewClient = defaultNewClient
	}
	return &Transport{
		host:      opts.Host,
		port:      opts.Port,
		username:  opts.Username,
		password:  opts.Password,
		timeout:   opts.Timeout,
		newClient: opts.NewClient,
	}, nil
}

// Send delivers one message with the given subject and body to recipients.
func (t *Transport) Send(ctx context.Context, recipients []string, sender, subject, body string) error {
	msg, err := buildMessage(recipients, sender, subject, body)
	if err != nil {
		return err
	}
	c, err := t.newClient(t.host, t.clientOptions()...)
	if err != nil {
		return fmt.Errorf(errClient, err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf(errSend, t.host, t.port, err)
	}
	return nil
}

func (t *Transport) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(t.port),
		gomail.WithSSL(),
		gomail.WithTimeout(t.timeout),
	}
	if t.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(t.username),
			gomail.WithPassword(t.password),
		)
	}
	return opts
}

func buildMessage(recipients []string, sender, subject, body string) (*gomail.Msg, error) {
	if sender == "" {
		return nil, fmt.Errorf(errSenderRequired)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf(errNoRecipients)
	}
	m := gomail.NewMsg()
	if err := m.From(sender); err != nil {
		return nil, fmt.Errorf(errInvalidSender, sender, err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf(errInvalidRecipients, err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetBodyString(gomail.TypeTextPlain, body)
	return m, nil
}
