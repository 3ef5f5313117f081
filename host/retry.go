package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/model"
)

// Retry defaults.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 200 * time.Millisecond
)

type retryHost struct {
	h        Host
	attempts int
	backoff  time.Duration
}

// Retry wraps h so that transient failures are retried up to attempts
// times with a fixed backoff.  Not-found and context errors are final.
// When the attempts run out the last error is returned inside a
// model.RemoteDataError.
func Retry(h Host, attempts int, backoff time.Duration) Host {
	if attempts < 1 {
		attempts = 1
	}
	return &retryHost{h: h, attempts: attempts, backoff: backoff}
}

func transient(ctx context.Context, err error) bool {
	if err == nil || IsNotFound(err) || ctx.Err() != nil {
		return false
	}
	return err != context.Canceled && err != context.DeadlineExceeded
}

func (r *retryHost) do(ctx context.Context, op, path string, fn func() error) (err error) {
	for i := 1; i <= r.attempts; i++ {
		err = fn()
		if !transient(ctx, err) {
			return
		}
		log.WithFields(log.Fields{"op": op, "path": path, "attempt": i}).Debugf("transient host error: %v", err)
		if i == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff):
		}
	}
	return &model.RemoteDataError{
		Path:   path,
		Reason: fmt.Sprintf("%s failed after %d attempts", op, r.attempts),
		Err:    err,
	}
}

func (r *retryHost) Upload(ctx context.Context, path string, rd io.Reader) (err error) {
	buf, err := ioutil.ReadAll(rd)
	if err != nil {
		return
	}
	return r.do(ctx, "upload", path, func() error {
		return r.h.Upload(ctx, path, bytes.NewReader(buf))
	})
}

func (r *retryHost) Download(ctx context.Context, path string, w io.Writer) (err error) {
	var buf bytes.Buffer
	err = r.do(ctx, "download", path, func() error {
		buf.Reset()
		return r.h.Download(ctx, path, &buf)
	})
	if err != nil {
		return
	}
	_, err = io.Copy(w, &buf)
	return
}

func (r *retryHost) Exists(ctx context.Context, path string) (ok bool, err error) {
	err = r.do(ctx, "exists", path, func() (err error) {
		ok, err = r.h.Exists(ctx, path)
		return
	})
	return
}

func (r *retryHost) List(ctx context.Context, pattern string) (paths []string, err error) {
	err = r.do(ctx, "list", pattern, func() (err error) {
		paths, err = r.h.List(ctx, pattern)
		return
	})
	return
}

func (r *retryHost) Remove(ctx context.Context, pattern string) error {
	return r.do(ctx, "remove", pattern, func() error {
		return r.h.Remove(ctx, pattern)
	})
}
