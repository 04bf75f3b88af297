package health

import (
	"net/http"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Checker is implemented by anything that can report whether a component is healthy.
type Checker interface {
	Check() error
}

// StartupCompleteChecker reports unhealthy until MarkComplete has been called.
type StartupCompleteChecker struct {
	complete atomic.Bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{}
}

func (c *StartupCompleteChecker) MarkComplete() {
	c.complete.Store(true)
}

func (c *StartupCompleteChecker) Check() error {
	if c.complete.Load() {
		return nil
	}
	return errors.New("startup is not complete")
}

// FuncChecker adapts a plain function to the Checker interface.
type FuncChecker func() error

func (f FuncChecker) Check() error {
	return f()
}

// MultiChecker is healthy only if all of its checkers are healthy.
type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	var result *multierror.Error
	for _, checker := range mc.checkers {
		if err := checker.Check(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.checkers = append(mc.checkers, checker)
}

type httpHandler struct {
	checker Checker
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	err := h.checker.Check()
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.Warnf("Health check failed: %v", err)
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte(err.Error())); err != nil {
		log.Errorf("Failed to write health check response: %v", err)
	}
}

func SetupHttpMux(mux *http.ServeMux, checker Checker) {
	mux.Handle("/health", &httpHandler{checker: checker})
}
