// Package httpclient builds the resty clients used for outbound calls to the
// transcription service, media downloads and the messaging API.
package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Options configures a client.
type Options struct {
	Component    string        // Logged with retry messages
	Timeout      time.Duration // Whole-request timeout, including retries
	RetryMax     int           // Transport-level retries on connection errors and 5xx
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Secrets      []string // Masked in every log line, e.g. tokens carried in URLs
}

// DefaultOptions returns the settings used unless a caller overrides them.
func DefaultOptions(component string) Options {
	return Options{
		Component:    component,
		Timeout:      60 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
		UserAgent:    "superclaude/1.0",
	}
}

// New creates a resty client whose transport retries through retryablehttp.
func New(opts Options) *resty.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	log := logger.ComponentLogger(opts.Component).Sugar()
	redactor := NewRedactor(opts.Secrets...)
	retryClient.Logger = leveledLogger{log: log, redact: redactor}
	// Hand the final response back to the caller instead of a generic
	// "giving up" error so status codes stay visible.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(retryClient.StandardClient())
	client.SetLogger(restyLogger{log: log, redact: redactor})
	client.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return client
}

// Redactor masks secrets in strings and errors.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor returns a Redactor for the non-empty secrets.
func NewRedactor(secrets ...string) *Redactor {
	var pairs []string
	for _, s := range secrets {
		if s != "" {
			pairs = append(pairs, s, "<redacted>")
		}
	}
	if len(pairs) == 0 {
		return &Redactor{}
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// String returns s with every secret replaced.
func (r *Redactor) String(s string) string {
	if r == nil || r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}

// Error returns err with secrets removed from its message. errors.Is and
// errors.As still see the original chain.
func (r *Redactor) Error(err error) error {
	if err == nil || r == nil || r.replacer == nil {
		return err
	}
	msg := err.Error()
	if clean := r.String(msg); clean != msg {
		return &redactedError{msg: clean, err: err}
	}
	return err
}

func (r *Redactor) values(kv []interface{}) []interface{} {
	if r == nil || r.replacer == nil {
		return kv
	}
	out := make([]interface{}, len(kv))
	for i, v := range kv {
		switch x := v.(type) {
		case string:
			out[i] = r.String(x)
		case error:
			out[i] = r.String(x.Error())
		case fmt.Stringer:
			out[i] = r.String(x.String())
		default:
			out[i] = v
		}
	}
	return out
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// StripURL drops the request URL that net/http puts in transport errors,
// keeping the underlying cause.
func StripURL(err error) error {
	var ue *url.Error
	for errors.As(err, &ue) {
		err = ue.Err
	}
	return err
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log    *zap.SugaredLogger
	redact *Redactor
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, l.redact.values(kv)...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debugw(msg, l.redact.values(kv)...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, l.redact.values(kv)...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, l.redact.values(kv)...) }

// restyLogger adapts zap to resty.Logger.
type restyLogger struct {
	log    *zap.SugaredLogger
	redact *Redactor
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(l.redact.String(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(l.redact.String(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(l.redact.String(fmt.Sprintf(format, v...)))
}
